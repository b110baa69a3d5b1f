package processor

import "context"

// ExecuteFunc 处理器函数类型
type ExecuteFunc func(ctx context.Context, cfg Config) (*Result, error)

// FuncProcessor adapts a function to the Processor interface.
type FuncProcessor struct {
	meta Metadata
	fn   ExecuteFunc
}

// NewFuncProcessor 创建函数处理器
func NewFuncProcessor(meta Metadata, fn ExecuteFunc) *FuncProcessor {
	return &FuncProcessor{meta: meta.Clone(), fn: fn}
}

func (p *FuncProcessor) Metadata() Metadata {
	return p.meta.Clone()
}

func (p *FuncProcessor) Execute(ctx context.Context, cfg Config) (*Result, error) {
	if p.fn == nil {
		return NewSuccessResult(p.meta.Name, nil), nil
	}
	return p.fn(ctx, cfg)
}
