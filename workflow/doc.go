// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供处理器流水线的编排与执行引擎。

# 概述

workflow 包负责把一组已注册的处理器按依赖关系排序，并以工作流为单位
顺序执行。每个工作流拥有独立的 WorkflowState，引擎通过全局信号量限制
同时运行的工作流数量，支持暂停、恢复与取消。

# 核心类型

  - Engine：工作流引擎，持有状态表与运行集合
  - Resolver：基于 DFS 的拓扑排序，检测环与未知处理器
  - WorkflowConfig：声明式工作流配置（处理器列表、跳过列表、参数）
  - WorkflowState：单次运行的状态快照
  - FallbackPolicy：主抓取阶段部分失败时触发的降级处理器链

# 状态机

	PENDING -> RUNNING -> COMPLETED | FAILED | CANCELLED
	RUNNING <-> PAUSED
	PAUSED  -> CANCELLED | FAILED

暂停与取消都是协作式的：正在执行的处理器会运行到结束，循环在下一个
检查点响应。暂停期间工作流继续占用并发槽位。

# 回调

进度回调与状态回调在工作流所在的 goroutine 中同步调用。回调中的 panic
会被记录并忽略，不影响工作流本身。
*/
package workflow
