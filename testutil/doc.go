// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 ScoreFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现相似的
测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 日志辅助: ObservedLogger 返回可断言的 zap 观察器
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor /
    WaitForChannel / WaitClosed
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/mocks: MockProcessor，支持固定结果、错误注入、延迟、闸门、
    panic 与子进度上报
  - testutil/fixtures: 预置的 lookup -> fetch -> filter -> score 流水线

# 使用示例

	ctx := testutil.TestContext(t)
	p := mocks.NewMockProcessor("fetch", "lookup").WithDelay(10 * time.Millisecond)
	reg := processor.NewRegistry()
	reg.MustRegister(p)
*/
package testutil
