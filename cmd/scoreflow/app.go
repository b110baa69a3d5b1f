package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/scoreflow/config"
	"github.com/BaSui01/scoreflow/internal/metrics"
	"github.com/BaSui01/scoreflow/internal/server"
	"github.com/BaSui01/scoreflow/internal/statecache"
	"github.com/BaSui01/scoreflow/internal/telemetry"
	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/workflow"
	"github.com/BaSui01/scoreflow/workflow/dsl"
)

// app bundles the engine with its ambient services for one CLI invocation.
type app struct {
	cfg       *config.Config
	pipeline  *dsl.Pipeline
	engine    *workflow.Engine
	registry  *prometheus.Registry
	collector *metrics.Collector
	mirror    *statecache.Mirror
	otel      *telemetry.Providers
	logger    *zap.Logger
}

// newApp parses the pipeline and wires the engine. A Redis or telemetry
// failure is logged and the run continues without it.
func newApp(ctx context.Context, cfg *config.Config, pipelinePath string, vars map[string]string, logger *zap.Logger) (*app, error) {
	parser := dsl.NewParser(dsl.WithLogger(logger), dsl.WithVariables(vars))
	pipeline, err := parser.ParseFile(pipelinePath)
	if err != nil {
		return nil, err
	}

	procs := processor.NewRegistry()
	if err := pipeline.Register(procs); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		pipeline: pipeline,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector("scoreflow", a.registry, logger)

	a.otel, err = telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.otel = &telemetry.Providers{}
	}

	policy := fallbackPolicy(cfg.Engine.Fallback)
	if pipeline.Fallback != nil {
		policy = *pipeline.Fallback
	}

	a.engine = workflow.NewEngine(procs,
		workflow.WithLogger(logger),
		workflow.WithMaxConcurrentWorkflows(cfg.Engine.MaxConcurrentWorkflows),
		workflow.WithCanonicalPipeline(cfg.Engine.DefaultPipeline),
		workflow.WithFallbackPolicy(policy),
		workflow.WithMetrics(a.collector),
		workflow.WithTracer(a.otel.Tracer("github.com/BaSui01/scoreflow/workflow")),
	)
	a.engine.AddProgressCallback(func(id string, percent float64, message string) {
		logger.Debug("progress",
			zap.String("workflow_id", id),
			zap.Float64("percent", percent),
			zap.String("message", message),
		)
	})

	if cfg.Redis.Enabled {
		mirror, err := statecache.NewMirror(ctx, cfg.Redis, logger, statecache.WithRecorder(a.collector))
		if err != nil {
			logger.Warn("state mirror not available", zap.Error(err))
		} else {
			a.mirror = mirror
			mirror.Attach(a.engine)
		}
	}

	logger.Info("pipeline loaded",
		zap.String("pipeline", pipeline.Name),
		zap.Strings("processors", procs.List()),
		zap.Int("workflows", len(pipeline.Workflows)),
	)
	return a, nil
}

func fallbackPolicy(cfg config.FallbackConfig) workflow.FallbackPolicy {
	return workflow.FallbackPolicy{
		Primary:    cfg.Primary,
		CountKey:   cfg.CountKey,
		Processors: append([]string(nil), cfg.Processors...),
	}
}

// workflows returns the selected workflow configs. With no selection every
// defined workflow is returned, or one default-order workflow when the
// definition declares none.
func (a *app) workflows(ids []string) ([]workflow.WorkflowConfig, error) {
	if len(ids) == 0 {
		if len(a.pipeline.Workflows) == 0 {
			return []workflow.WorkflowConfig{{Name: a.pipeline.Name}}, nil
		}
		out := make([]workflow.WorkflowConfig, 0, len(a.pipeline.Workflows))
		for _, wf := range a.pipeline.Workflows {
			out = append(out, wf.Clone())
		}
		return out, nil
	}

	out := make([]workflow.WorkflowConfig, 0, len(ids))
	for _, id := range ids {
		wf, ok := a.pipeline.Workflow(id)
		if !ok {
			return nil, fmt.Errorf("workflow %q is not defined in pipeline %q", id, a.pipeline.Name)
		}
		out = append(out, wf)
	}
	return out, nil
}

type workflowPlan struct {
	workflowID string
	order      []string
}

func (a *app) plan(ids []string) ([]workflowPlan, error) {
	cfgs, err := a.workflows(ids)
	if err != nil {
		return nil, err
	}
	plans := make([]workflowPlan, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		order, err := a.engine.Plan(cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %q: %w", cfg.ID, err))
			continue
		}
		id := cfg.ID
		if id == "" {
			id = "default"
		}
		plans = append(plans, workflowPlan{workflowID: id, order: order})
	}
	return plans, errors.Join(errs...)
}

// runWorkflows starts every selected workflow at once; the engine's
// semaphore bounds how many actually run.
func (a *app) runWorkflows(ctx context.Context, ids []string) ([]*workflow.WorkflowState, error) {
	cfgs, err := a.workflows(ids)
	if err != nil {
		return nil, err
	}

	states := make([]*workflow.WorkflowState, len(cfgs))
	var g errgroup.Group
	for i, cfg := range cfgs {
		g.Go(func() error {
			states[i] = a.engine.RunWorkflow(ctx, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return states, nil
}

// serve runs the selected workflows with the ops endpoint up and keeps the
// endpoint alive until ctx ends.
func (a *app) serve(ctx context.Context, ids []string) error {
	if !a.cfg.Server.Enabled {
		states, err := a.runWorkflows(ctx, ids)
		if err != nil {
			return err
		}
		a.logSummary(states)
		return nil
	}

	var checks []server.HealthCheck
	if a.mirror != nil {
		checks = append(checks, server.HealthCheck{Name: "redis", Check: a.mirror.Ping})
	}
	handlers := server.NewHandlers(a.engine,
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}),
		a.logger, checks...)
	mgr := server.NewManager(handlers.Handler(ctx, a.cfg.Server, a.collector), server.ConfigFrom(a.cfg.Server), a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error {
		states, err := a.runWorkflows(gctx, ids)
		if err != nil {
			return err
		}
		a.logSummary(states)
		return nil
	})
	return g.Wait()
}

func (a *app) logSummary(states []*workflow.WorkflowState) {
	for _, st := range states {
		a.logger.Info("workflow result",
			zap.String("workflow_id", st.ID),
			zap.String("status", string(st.Status)),
			zap.Duration("duration", st.Duration()),
			zap.Strings("failed", st.FailedProcessors),
		)
	}
}

func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("close state mirror", zap.Error(err))
		}
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}
