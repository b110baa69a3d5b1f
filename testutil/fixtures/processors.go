// Package fixtures 提供预置的处理器与工作流测试数据。
package fixtures

import (
	"sort"

	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/testutil/mocks"
)

// Pipeline 是一组按名称索引的模拟处理器
type Pipeline map[string]*mocks.MockProcessor

// LinearPipeline 返回 lookup -> fetch -> filter -> score 链，
// 每个处理器依赖前一个。
func LinearPipeline() Pipeline {
	return Pipeline{
		"lookup": mocks.NewMockProcessor("lookup").WithData(map[string]any{"records": 10}),
		"fetch":  mocks.NewMockProcessor("fetch", "lookup").WithData(map[string]any{"fetched": 10, "failed_items": 0}),
		"filter": mocks.NewMockProcessor("filter", "fetch").WithData(map[string]any{"kept": 8}),
		"score":  mocks.NewMockProcessor("score", "filter").WithData(map[string]any{"scored": 8}),
	}
}

// Registry 把 pipeline 中的处理器按名称顺序注册到新注册表
func (p Pipeline) Registry(order ...string) *processor.Registry {
	reg := processor.NewRegistry()
	if len(order) == 0 {
		order = []string{"lookup", "fetch", "filter", "score"}
	}
	for _, name := range order {
		if m, ok := p[name]; ok {
			reg.MustRegister(m)
		}
	}
	rest := make([]string, 0, len(p))
	for name := range p {
		if !reg.Has(name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		reg.MustRegister(p[name])
	}
	return reg
}

// Metadata 构造最小元数据
func Metadata(name string, deps ...string) processor.Metadata {
	return processor.Metadata{
		Name:         name,
		Version:      "1.0.0",
		Type:         processor.TypeGeneric,
		Dependencies: deps,
	}
}
