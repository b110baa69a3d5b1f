// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
Package processor 定义数据采集与评分流水线中的处理器契约与注册表。

# 概述

处理器（Processor）是一个具名的异步工作单元：声明依赖、能力标记与预计耗时，
并通过 Execute 接收每次调用独立的配置，返回带成功标记、载荷、错误与警告的
Result。处理器本身对单次工作流保持无状态，所有调用参数均通过 Config 传入。

# 核心接口与类型

  - Processor：处理器接口（Metadata + Execute）
  - Metadata：不可变的处理器元数据（名称、版本、依赖、能力标记）
  - Result：单次执行结果（Success / Data / Errors / Warnings / Duration）
  - Config：单次调用配置（工作流 ID、参数、上游结果、进度回调）
  - Registry：并发安全的名称索引注册表（后注册者覆盖）
  - FuncProcessor：以函数实现的处理器适配器
  - CommandProcessor：以外部命令实现的处理器
*/
package processor
