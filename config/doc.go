// Package config 提供 ScoreFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// 环境变量形如 SCOREFLOW_ENGINE_MAX_CONCURRENT_WORKFLOWS。
// 包含引擎、运维服务、Redis 状态镜像、日志与遥测五个部分。
package config
