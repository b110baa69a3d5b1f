// MockProcessor 的处理器测试模拟实现。
//
// 支持固定结果、错误注入、延迟、闸门阻塞与 panic 场景测试。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/scoreflow/processor"
)

// --- MockProcessor 结构 ---

// HookFunc 在每次执行开始时调用
type HookFunc func(ctx context.Context, cfg processor.Config)

// MockProcessor 是 processor.Processor 的模拟实现
type MockProcessor struct {
	mu sync.Mutex

	meta processor.Metadata

	// 默认行为
	data          map[string]any
	failure       string
	err           error
	warnings      []string
	delay         time.Duration
	gate          <-chan struct{}
	panicValue    any
	progressSteps int
	hook          HookFunc

	// 调用记录
	calls       []processor.Config
	started     chan struct{}
	startedOnce sync.Once
}

// --- 构造函数和 Builder 方法 ---

// NewMockProcessor 创建新的 MockProcessor，默认返回成功结果
func NewMockProcessor(name string, dependencies ...string) *MockProcessor {
	return &MockProcessor{
		meta: processor.Metadata{
			Name:         name,
			Description:  "Mock processor: " + name,
			Version:      "0.0.0",
			Type:         processor.TypeGeneric,
			Dependencies: append([]string(nil), dependencies...),
		},
		data:    map[string]any{},
		started: make(chan struct{}),
	}
}

// WithMetadata 修改处理器元数据
func (m *MockProcessor) WithMetadata(fn func(*processor.Metadata)) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.meta)
	return m
}

// WithData 设置成功结果的数据
func (m *MockProcessor) WithData(data map[string]any) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return m
}

// WithFailure 使处理器返回 Success=false 的结果
func (m *MockProcessor) WithFailure(msg string) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = msg
	return m
}

// WithError 使处理器返回错误
func (m *MockProcessor) WithError(err error) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithWarnings 设置结果中的警告
func (m *MockProcessor) WithWarnings(warnings ...string) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = warnings
	return m
}

// WithDelay 设置执行延迟，ctx 取消时提前返回
func (m *MockProcessor) WithDelay(d time.Duration) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithGate 使执行阻塞直到 gate 可读或关闭
func (m *MockProcessor) WithGate(gate <-chan struct{}) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	return m
}

// WithPanic 使执行时 panic
func (m *MockProcessor) WithPanic(v any) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicValue = v
	return m
}

// WithProgressSteps 执行时上报 n 次子进度
func (m *MockProcessor) WithProgressSteps(n int) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressSteps = n
	return m
}

// WithHook 设置执行开始时的钩子
func (m *MockProcessor) WithHook(fn HookFunc) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
	return m
}

// --- processor.Processor 实现 ---

// Metadata 实现 processor.Processor
func (m *MockProcessor) Metadata() processor.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.Clone()
}

// Execute 实现 processor.Processor
func (m *MockProcessor) Execute(ctx context.Context, cfg processor.Config) (*processor.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cfg)
	name := m.meta.Name
	hook, gate, delay := m.hook, m.gate, m.delay
	panicValue, steps := m.panicValue, m.progressSteps
	failure, err := m.failure, m.err
	warnings := append([]string(nil), m.warnings...)
	data := make(map[string]any, len(m.data))
	for k, v := range m.data {
		data[k] = v
	}
	m.mu.Unlock()

	m.startedOnce.Do(func() { close(m.started) })

	if hook != nil {
		hook(ctx, cfg)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panicValue != nil {
		panic(panicValue)
	}
	for i := 1; i <= steps; i++ {
		cfg.ReportProgress(i, steps, fmt.Sprintf("%s step %d/%d", name, i, steps))
	}
	if err != nil {
		return nil, err
	}

	var res *processor.Result
	if failure != "" {
		res = processor.NewFailureResult(name, "%s", failure)
		res.Data = data
	} else {
		res = processor.NewSuccessResult(name, data)
	}
	for _, w := range warnings {
		res.AddWarning(w)
	}
	return res, nil
}

// --- 调用记录查询 ---

// CallCount 返回执行次数
func (m *MockProcessor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls 返回每次执行收到的配置
func (m *MockProcessor) Calls() []processor.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]processor.Config(nil), m.calls...)
}

// LastCall 返回最后一次执行的配置
func (m *MockProcessor) LastCall() (processor.Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return processor.Config{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Started 在第一次执行开始时关闭
func (m *MockProcessor) Started() <-chan struct{} {
	return m.started
}
