// Package dsl 提供 YAML 声明式流水线定义，
// 支持变量插值、命令处理器声明、工作流声明与降级策略，
// 将定义解析为可注册的处理器与可执行的 WorkflowConfig。
package dsl
