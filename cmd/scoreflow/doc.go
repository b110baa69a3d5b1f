// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ScoreFlow 命令行入口。

# 概述

cmd/scoreflow 读取 YAML 流水线定义，将其中的处理器注册到引擎并执行工作流。
配置来自 YAML 文件与 SCOREFLOW_ 前缀的环境变量，日志使用 zap，
指标通过 Prometheus 暴露，追踪可选地导出到 OTLP。

# 子命令

  - plan：打印每个工作流解析后的处理器顺序
  - run：执行工作流并以 JSON 输出终态，任一工作流 FAILED 时退出码为 1
  - serve：执行工作流，同时保持运维端点直到收到 SIGINT/SIGTERM
  - version、health

# 装配

引擎的并发上限、默认流水线与降级策略取自 engine 配置；流水线定义中的
fallback 覆盖配置中的策略。启用 redis 时挂载状态镜像，启用 telemetry 时
工作流与处理器 span 导出到 OTLP 端点。
*/
package main
