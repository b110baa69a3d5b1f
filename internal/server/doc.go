// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供工作流引擎的运维 HTTP 端点及其生命周期管理。

# 概述

Manager 封装 net/http.Server，负责监听、优雅关闭与异步错误传播。
Handlers 将引擎的查询与控制操作暴露为 JSON 接口：

  - GET  /health                       依赖探活（如 Redis 状态镜像）
  - GET  /metrics                      Prometheus 指标
  - GET  /stats                        引擎统计
  - GET  /workflows?status=running     工作流快照列表
  - GET  /workflows/{id}               单个工作流快照
  - POST /workflows/{id}/{action}      pause / resume / cancel

# 中间件

Recovery、OTelTracing、RequestLogger、Metrics 与基于 IP 的 RateLimiter
通过 Chain 组合，由 Handlers.Handler 按配置装配。
*/
package server
