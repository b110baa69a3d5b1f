package processor

import (
	"context"
	"time"
)

// Type 处理器类别标签
type Type string

const (
	TypeFetcher    Type = "fetcher"
	TypeFilter     Type = "filter"
	TypeEnricher   Type = "enricher"
	TypeClassifier Type = "classifier"
	TypeScorer     Type = "scorer"
	TypeReporter   Type = "reporter"
	TypeGeneric    Type = "generic"
)

// Metadata describes a processor. It is fixed once the processor is built.
type Metadata struct {
	Name                string        `json:"name" yaml:"name"`
	Description         string        `json:"description,omitempty" yaml:"description"`
	Version             string        `json:"version,omitempty" yaml:"version"`
	Dependencies        []string      `json:"dependencies,omitempty" yaml:"depends_on"`
	Type                Type          `json:"type,omitempty" yaml:"type"`
	EstimatedDuration   time.Duration `json:"estimated_duration,omitempty" yaml:"estimated_duration"`
	RequiresNetwork     bool          `json:"requires_network" yaml:"requires_network"`
	RequiresCredentials bool          `json:"requires_credentials" yaml:"requires_credentials"`
	Parallelizable      bool          `json:"parallelizable" yaml:"parallelizable"`
}

// Clone returns a copy that does not share the dependency slice.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Dependencies != nil {
		out.Dependencies = append([]string(nil), m.Dependencies...)
	}
	return out
}

// DependsOn reports whether name is a declared dependency.
func (m Metadata) DependsOn(name string) bool {
	for _, dep := range m.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// ProgressFunc receives intra-processor progress.
type ProgressFunc func(current, total int, message string)

// Config is the per-invocation configuration handed to Execute.
type Config struct {
	WorkflowID      string
	WorkflowName    string
	ProcessorName   string
	Params          map[string]any
	ContinueOnError bool

	// Upstream holds results of processors that already completed in this
	// workflow, keyed by processor name.
	Upstream map[string]*Result

	// Progress may be nil.
	Progress ProgressFunc
}

// ReportProgress forwards to Progress when one is set.
func (c Config) ReportProgress(current, total int, message string) {
	if c.Progress != nil {
		c.Progress(current, total, message)
	}
}

// Param returns a workflow parameter.
func (c Config) Param(key string) (any, bool) {
	if c.Params == nil {
		return nil, false
	}
	v, ok := c.Params[key]
	return v, ok
}

// Processor is a named unit of work.
//
// Execute must not retain cfg. A non-nil error is treated the same as a
// result with Success=false.
type Processor interface {
	Metadata() Metadata
	Execute(ctx context.Context, cfg Config) (*Result, error)
}
