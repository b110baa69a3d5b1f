package workflow

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxConcurrentWorkflows bounds concurrent runs when no option is given.
const DefaultMaxConcurrentWorkflows = 3

// MetricsRecorder receives engine measurements.
type MetricsRecorder interface {
	RecordWorkflowStarted(workflowID string)
	RecordWorkflowFinished(status string, duration time.Duration)
	RecordProcessor(name string, success bool, duration time.Duration)
	RecordFallback(primary, fallback string, success bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordWorkflowStarted(string)                 {}
func (noopMetrics) RecordWorkflowFinished(string, time.Duration) {}
func (noopMetrics) RecordProcessor(string, bool, time.Duration)  {}
func (noopMetrics) RecordFallback(string, string, bool)          {}

// Option 引擎选项
type Option func(*Engine)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxConcurrentWorkflows sets the size of the global workflow limiter.
// Values below 1 are ignored.
func WithMaxConcurrentWorkflows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = int64(n)
		}
	}
}

// WithFallbackPolicy configures the primary stage and its fallbacks.
func WithFallbackPolicy(policy FallbackPolicy) Option {
	return func(e *Engine) {
		e.fallback = policy.normalized()
	}
}

// WithCanonicalPipeline sets the default execution order used when a
// workflow does not list processors.
func WithCanonicalPipeline(names []string) Option {
	return func(e *Engine) {
		if len(names) > 0 {
			e.resolverOpts = append(e.resolverOpts, WithCanonicalOrder(names))
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for workflow and processor spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
