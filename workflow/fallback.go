package workflow

import (
	"context"

	"go.uber.org/zap"
)

// DefaultFallbackCountKey is the payload key read from the primary result.
const DefaultFallbackCountKey = "failed_items"

// maxFallbacks is the depth of the fallback chain.
const maxFallbacks = 2

// FallbackPolicy names the primary extraction stage and the processors that
// run when its result reports items it could not process.
//
// The second fallback runs only after the first one succeeds. The primary is
// never re-run.
type FallbackPolicy struct {
	Primary    string   `json:"primary" yaml:"primary"`
	CountKey   string   `json:"count_key" yaml:"count_key"`
	Processors []string `json:"processors" yaml:"processors"`
}

// Enabled reports whether the policy has a primary and at least one fallback.
func (p FallbackPolicy) Enabled() bool {
	return p.Primary != "" && len(p.Processors) > 0
}

func (p FallbackPolicy) normalized() FallbackPolicy {
	out := FallbackPolicy{Primary: p.Primary, CountKey: p.CountKey}
	if out.CountKey == "" {
		out.CountKey = DefaultFallbackCountKey
	}
	for _, name := range p.Processors {
		if name == "" || name == p.Primary {
			continue
		}
		if len(out.Processors) == maxFallbacks {
			break
		}
		out.Processors = append(out.Processors, name)
	}
	return out
}

// maybeRunFallbacks is called after the primary stage succeeded. ok is false
// if a fallback ran and failed; stopped is true once the workflow was
// cancelled and the loop must return.
func (e *Engine) maybeRunFallbacks(ctx context.Context, run *workflowRun, primaryResult *runResult) (ok, stopped bool) {
	if !e.fallback.Enabled() || primaryResult.name != e.fallback.Primary {
		return true, false
	}
	pending, counted := primaryResult.result.Count(e.fallback.CountKey)
	if !counted || pending <= 0 {
		return true, false
	}

	e.logger.Info("primary stage reported unprocessed items, running fallbacks",
		zap.String("workflow_id", run.id),
		zap.String("primary", e.fallback.Primary),
		zap.Int64("pending", pending),
	)

	for _, name := range e.fallback.Processors {
		if run.cfg.skips(name) {
			e.logger.Debug("fallback skipped by workflow config",
				zap.String("workflow_id", run.id),
				zap.String("fallback", name),
			)
			return true, false
		}
		if _, registered := e.registry.Get(name); !registered {
			e.logger.Debug("fallback not registered",
				zap.String("workflow_id", run.id),
				zap.String("fallback", name),
			)
			return true, false
		}
		if e.isCompleted(run.id, name) {
			continue
		}
		if !e.checkpoint(ctx, run) {
			return false, true
		}

		res := e.invoke(ctx, run, name, true)
		success := e.record(run, res)
		e.metrics.RecordFallback(e.fallback.Primary, name, success)
		if !success {
			return false, false
		}
	}
	return true, false
}
