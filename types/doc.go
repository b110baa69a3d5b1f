// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ScoreFlow 框架的全局共享类型定义。

# 概述

types 是框架最底层的公共包，不依赖任何内部包，为 processor、workflow、
config 等上层模块提供统一的错误契约，以避免循环依赖。

# 核心接口与类型

  - Error / ErrorCode：结构化错误体系，含处理器名称与底层原因

# 主要能力

  - 解析错误：UnknownProcessorError / CycleError
  - 错误工具链：GetErrorCode / IsCode（支持 errors.As 链式查找）
*/
package types
