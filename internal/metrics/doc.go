// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的工作流指标采集能力。

# 概述

Collector 实现 workflow.MetricsRecorder，由引擎在工作流开始、结束、
每次处理器执行与降级执行时回调。指标通过 promauto.With 注册到调用方
提供的 Registerer，测试中可使用独立的 Registry。

# 指标

  - workflows_started_total / workflows_finished_total{status}
  - workflow_duration_seconds{status}、workflows_active
  - processor_executions_total{processor,status}、processor_duration_seconds{processor}
  - fallback_executions_total{primary,fallback,status}
  - http_requests_total{method,path,status}、http_request_duration_seconds{method,path}
  - state_mirror_writes_total{result}
*/
package metrics
