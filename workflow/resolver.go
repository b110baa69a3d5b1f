package workflow

import (
	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/types"
)

// DefaultPipeline is the canonical full-pipeline order.
var DefaultPipeline = []string{
	"lookup",
	"fetch",
	"filter",
	"enrich",
	"classify",
	"score",
	"rank",
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// Resolver orders processors so every processor runs after its dependencies.
type Resolver struct {
	registry  *processor.Registry
	canonical []string
}

// ResolverOption 解析器选项
type ResolverOption func(*Resolver)

// WithCanonicalOrder overrides DefaultPipeline.
func WithCanonicalOrder(names []string) ResolverOption {
	return func(r *Resolver) {
		r.canonical = append([]string(nil), names...)
	}
}

// NewResolver creates a resolver backed by registry.
func NewResolver(registry *processor.Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:  registry,
		canonical: append([]string(nil), DefaultPipeline...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveExecutionOrder topologically sorts requested using a depth-first
// walk. Dependencies outside requested are treated as satisfied. Independent
// processors keep their request order.
func (r *Resolver) ResolveExecutionOrder(requested []string) ([]string, error) {
	inRequest := make(map[string]bool, len(requested))
	for _, name := range requested {
		inRequest[name] = true
	}

	state := make(map[string]visitState, len(requested))
	order := make([]string, 0, len(requested))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return types.CycleError(name)
		case visited:
			return nil
		}
		meta, ok := r.registry.Metadata(name)
		if !ok {
			return types.UnknownProcessorError(name)
		}
		state[name] = visiting
		for _, dep := range meta.Dependencies {
			if !inRequest[dep] {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range requested {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// DefaultExecutionOrder returns the canonical order filtered to processors
// present in the registry, preserving relative order.
func (r *Resolver) DefaultExecutionOrder() []string {
	out := make([]string, 0, len(r.canonical))
	for _, name := range r.canonical {
		if r.registry.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// CanonicalOrder returns the unfiltered canonical order.
func (r *Resolver) CanonicalOrder() []string {
	return append([]string(nil), r.canonical...)
}
