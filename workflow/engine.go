package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/types"
)

const instrumentationName = "github.com/BaSui01/scoreflow/workflow"

// Engine runs workflows against a processor registry.
//
// Processors of one workflow run strictly one after another. Distinct
// workflows run concurrently, bounded by a global limiter; RunWorkflow blocks
// until a slot is free. The state map and the running set are guarded by mu.
type Engine struct {
	registry      *processor.Registry
	resolver      *Resolver
	resolverOpts  []ResolverOption
	fallback      FallbackPolicy
	maxConcurrent int64
	slots         *semaphore.Weighted
	metrics       MetricsRecorder
	tracer        trace.Tracer
	logger        *zap.Logger
	now           func() time.Time
	subs          *subscribers

	mu      sync.Mutex
	states  map[string]*WorkflowState
	order   []string
	running map[string]*runControl
}

// runControl is the cooperative control block of one active run.
type runControl struct {
	stop     chan struct{}
	stopOnce sync.Once
	paused   bool
	resume   chan struct{}
	done     chan struct{}
}

func newRunControl() *runControl {
	return &runControl{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (c *runControl) signalStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// workflowRun carries the per-run loop position.
type workflowRun struct {
	id    string
	cfg   WorkflowConfig
	ctl   *runControl
	index int
	total int
	span  trace.Span
}

type runResult struct {
	name     string
	result   *processor.Result
	start    time.Time
	end      time.Time
	fallback bool
}

// NewEngine 创建工作流引擎
func NewEngine(registry *processor.Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = processor.NewRegistry()
	}
	e := &Engine{
		registry:      registry,
		maxConcurrent: DefaultMaxConcurrentWorkflows,
		metrics:       noopMetrics{},
		tracer:        otel.Tracer(instrumentationName),
		logger:        zap.NewNop(),
		now:           time.Now,
		states:        make(map[string]*WorkflowState),
		running:       make(map[string]*runControl),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	e.resolver = NewResolver(registry, e.resolverOpts...)
	e.slots = semaphore.NewWeighted(e.maxConcurrent)
	e.subs = &subscribers{logger: e.logger}
	return e
}

// Registry returns the engine's processor registry.
func (e *Engine) Registry() *processor.Registry {
	return e.registry
}

// Resolver returns the engine's dependency resolver.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// AddProgressCallback registers a progress subscriber.
func (e *Engine) AddProgressCallback(fn ProgressCallback) {
	e.subs.addProgress(fn)
}

// AddStatusCallback registers a status subscriber.
func (e *Engine) AddStatusCallback(fn StatusCallback) {
	e.subs.addStatus(fn)
}

// =============================================================================
// 生命周期
// =============================================================================

// CreateWorkflow registers a PENDING workflow, or returns the existing one
// with the same ID.
func (e *Engine) CreateWorkflow(cfg WorkflowConfig) *WorkflowState {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getOrCreateLocked(cfg).Clone()
}

func (e *Engine) getOrCreateLocked(cfg WorkflowConfig) *WorkflowState {
	if st, ok := e.states[cfg.ID]; ok {
		return st
	}
	st := newWorkflowState(cfg, e.now())
	e.states[cfg.ID] = st
	e.order = append(e.order, cfg.ID)
	return st
}

// RunWorkflow executes a workflow and returns its terminal state.
//
// If a workflow with the same ID exists it is resumed rather than recreated:
// a terminal workflow is returned as is, a workflow whose loop is still active
// is resumed if paused and awaited, and a pending one is started. Faults
// during execution never escape; they end the workflow in FAILED.
func (e *Engine) RunWorkflow(ctx context.Context, cfg WorkflowConfig) *WorkflowState {
	cfg = cfg.withDefaults()

	e.mu.Lock()
	st := e.getOrCreateLocked(cfg)
	id := st.ID
	if st.Status.IsTerminal() {
		snap := st.Clone()
		e.mu.Unlock()
		return snap
	}
	if ctl, active := e.running[id]; active {
		e.mu.Unlock()
		e.ResumeWorkflow(id)
		select {
		case <-ctl.done:
		case <-ctx.Done():
		}
		snap, _ := e.GetWorkflowState(id)
		return snap
	}
	ctl := newRunControl()
	e.running[id] = ctl
	cfg = st.Config
	e.mu.Unlock()

	run := &workflowRun{id: id, cfg: cfg, ctl: ctl}
	defer close(ctl.done)

	if err := e.acquireSlot(ctx, ctl); err != nil {
		e.cancel(id, ctl, "cancelled while waiting for a workflow slot")
		snap, _ := e.GetWorkflowState(id)
		return snap
	}
	defer e.slots.Release(1)

	e.execute(ctx, run)

	snap, _ := e.GetWorkflowState(id)
	return snap
}

// acquireSlot waits for the global limiter, giving up on ctx or CancelWorkflow.
func (e *Engine) acquireSlot(ctx context.Context, ctl *runControl) error {
	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctl.stop:
			cancel()
		case <-acqCtx.Done():
		}
	}()
	return e.slots.Acquire(acqCtx, 1)
}

// execute is the top-level recovery barrier around the processor loop.
func (e *Engine) execute(ctx context.Context, run *workflowRun) {
	ctx, run.span = e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", run.id),
		attribute.String("workflow.name", run.cfg.Name),
	))
	started := false
	defer func() {
		if r := recover(); r != nil {
			err := types.NewError(types.ErrWorkflowPanic, fmt.Sprintf("workflow fault: %v", r))
			e.logger.Error("workflow loop panicked",
				zap.String("workflow_id", run.id),
				zap.Error(err),
				zap.Stack("stack"),
			)
			e.fail(run, types.ErrWorkflowPanic, err.Error())
		}
		e.release(run)
		snap, _ := e.GetWorkflowState(run.id)
		if started && snap != nil {
			e.metrics.RecordWorkflowFinished(string(snap.Status), snap.Duration())
		}
		if snap != nil && snap.Status == StatusFailed {
			run.span.SetStatus(codes.Error, strings.Join(snap.Errors, "; "))
		}
		run.span.End()
	}()

	if !e.start(run) {
		return
	}
	started = true
	e.metrics.RecordWorkflowStarted(run.id)
	e.loop(ctx, run)
}

// start moves the workflow to RUNNING. It returns false when the workflow was
// cancelled before it got a slot.
func (e *Engine) start(run *workflowRun) bool {
	e.mu.Lock()
	st := e.states[run.id]
	if _, ok := e.running[run.id]; !ok || st.Status.IsTerminal() {
		e.mu.Unlock()
		return false
	}
	if st.Status != StatusRunning {
		if err := st.transition(StatusRunning, e.now()); err != nil {
			e.mu.Unlock()
			panic(err)
		}
	}
	e.mu.Unlock()

	e.logger.Info("workflow started",
		zap.String("workflow_id", run.id),
		zap.String("name", run.cfg.Name),
	)
	e.subs.notifyStatus(run.id, StatusRunning, map[string]any{"name": run.cfg.Name})
	return true
}

// Plan returns the processors a run of cfg would execute: the explicit list
// or the default order, minus skipped names, in dependency order. Fallbacks
// are not included.
func (e *Engine) Plan(cfg WorkflowConfig) ([]string, error) {
	requested := cfg.ProcessorsToRun
	if len(requested) == 0 {
		requested = e.resolver.DefaultExecutionOrder()
	}
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		if !cfg.skips(name) {
			names = append(names, name)
		}
	}
	return e.resolver.ResolveExecutionOrder(names)
}

func (e *Engine) loop(ctx context.Context, run *workflowRun) {
	order, err := e.Plan(run.cfg)
	if err != nil {
		code := types.GetErrorCode(err)
		if code == "" {
			code = types.ErrWorkflowPanic
		}
		e.logger.Warn("workflow plan rejected",
			zap.String("workflow_id", run.id),
			zap.Error(err),
		)
		e.fail(run, code, err.Error())
		return
	}

	run.total = len(order)
	e.logger.Debug("execution order resolved",
		zap.String("workflow_id", run.id),
		zap.Strings("order", order),
	)

	for i, name := range order {
		if !e.checkpoint(ctx, run) {
			return
		}
		if e.isCompleted(run.id, name) {
			continue
		}
		run.index = i
		e.publishProgress(run.id, float64(i)/float64(run.total)*100, "Running "+name)

		res := e.invoke(ctx, run, name, false)
		ok := e.record(run, res)
		if ok {
			var stopped bool
			ok, stopped = e.maybeRunFallbacks(ctx, run, res)
			if stopped {
				return
			}
		}
		if !ok && !run.cfg.ContinueOnError {
			e.fail(run, types.ErrProcessorFailed, "")
			return
		}
	}

	// A pause that arrived during the last processor holds the run here.
	if !e.checkpoint(ctx, run) {
		return
	}
	e.complete(run)
}

// checkpoint is evaluated before every invocation and once before completion. It blocks
// while the workflow is paused and returns false once it was cancelled.
func (e *Engine) checkpoint(ctx context.Context, run *workflowRun) bool {
	for {
		if ctx.Err() != nil {
			e.cancel(run.id, run.ctl, "context cancelled: "+ctx.Err().Error())
			return false
		}

		e.mu.Lock()
		_, running := e.running[run.id]
		paused := run.ctl.paused
		resume := run.ctl.resume
		e.mu.Unlock()

		if !running {
			return false
		}
		if !paused {
			return true
		}

		e.logger.Debug("workflow paused at checkpoint", zap.String("workflow_id", run.id))
		select {
		case <-resume:
		case <-run.ctl.stop:
		case <-ctx.Done():
		}
	}
}

// invoke runs one processor and normalises its outcome into a Result.
func (e *Engine) invoke(ctx context.Context, run *workflowRun, name string, fallback bool) *runResult {
	e.mu.Lock()
	st := e.states[run.id]
	st.CurrentProcessor = name
	upstream := make(map[string]*processor.Result, len(st.CompletedProcessors))
	for _, done := range st.CompletedProcessors {
		upstream[done] = st.Results[done].Clone()
	}
	e.mu.Unlock()

	out := &runResult{name: name, start: e.now(), fallback: fallback}

	p, ok := e.registry.Get(name)
	if !ok {
		out.result = processor.NewFailureResult(name, "processor %s is not registered", name)
		out.end = e.now()
		return out
	}

	ctx, span := e.tracer.Start(ctx, "processor.execute", trace.WithAttributes(
		attribute.String("workflow.id", run.id),
		attribute.String("processor.name", name),
		attribute.Bool("processor.fallback", fallback),
	))
	defer span.End()

	index, total := run.index, run.total
	cfg := processor.Config{
		WorkflowID:      run.id,
		WorkflowName:    run.cfg.Name,
		ProcessorName:   name,
		Params:          run.cfg.Clone().Params,
		ContinueOnError: run.cfg.ContinueOnError,
		Upstream:        upstream,
		Progress: func(current, subTotal int, message string) {
			if total == 0 || subTotal <= 0 {
				return
			}
			frac := float64(current) / float64(subTotal)
			if frac < 0 {
				frac = 0
			} else if frac > 1 {
				frac = 1
			}
			e.publishProgress(run.id, (float64(index)+frac)/float64(total)*100, message)
		},
	}

	e.logger.Info("processor started",
		zap.String("workflow_id", run.id),
		zap.String("processor", name),
		zap.Bool("fallback", fallback),
	)

	res, err := p.Execute(ctx, cfg)
	out.end = e.now()
	if res == nil {
		res = processor.NewSuccessResult(name, nil)
		if err == nil {
			res.AddError("processor returned no result")
		}
	}
	if err != nil {
		res.AddError(err.Error())
	}
	if !res.Success && len(res.Errors) == 0 {
		res.Errors = append(res.Errors, "processor reported failure")
	}
	if res.Processor == "" {
		res.Processor = name
	}
	if res.Duration == 0 {
		res.Duration = out.end.Sub(out.start)
	}
	out.result = res

	if !res.Success {
		span.SetStatus(codes.Error, strings.Join(res.Errors, "; "))
	}
	e.metrics.RecordProcessor(name, res.Success, res.Duration)
	e.logger.Info("processor finished",
		zap.String("workflow_id", run.id),
		zap.String("processor", name),
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
		zap.Int("warnings", len(res.Warnings)),
	)
	return out
}

// record stores the outcome and returns whether the processor succeeded.
func (e *Engine) record(run *workflowRun, out *runResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[run.id]
	st.History = append(st.History, newExecutionRecord(out.name, out.start, out.end, out.result, out.fallback))
	if !st.Status.IsTerminal() {
		st.CurrentProcessor = ""
	}
	for _, w := range out.result.Warnings {
		st.Warnings = append(st.Warnings, out.name+": "+w)
	}
	if out.result.Success {
		st.markCompleted(out.name, out.result)
		return true
	}
	st.markFailed(out.name, out.result)
	st.addError(types.ErrProcessorFailed,
		fmt.Sprintf("processor %s failed: %s", out.name, strings.Join(out.result.Errors, "; ")))
	return false
}

// complete ends a loop that ran to the end.
func (e *Engine) complete(run *workflowRun) {
	e.mu.Lock()
	st := e.states[run.id]
	if st.Status.IsTerminal() {
		e.mu.Unlock()
		return
	}
	final := StatusCompleted
	if len(st.FailedProcessors) > 0 && !run.cfg.ContinueOnError {
		final = StatusFailed
	}
	if err := st.transition(final, e.now()); err != nil {
		e.mu.Unlock()
		panic(err)
	}
	extra := terminalExtra(st)
	e.mu.Unlock()

	e.publishProgress(run.id, 100, "Workflow "+string(final))
	e.logger.Info("workflow finished",
		zap.String("workflow_id", run.id),
		zap.String("status", string(final)),
		zap.Any("completed", extra["completed"]),
		zap.Any("failed", extra["failed"]),
	)
	e.subs.notifyStatus(run.id, final, extra)
}

// fail ends the workflow in FAILED. msg is recorded as a workflow error when
// not empty.
func (e *Engine) fail(run *workflowRun, code types.ErrorCode, msg string) {
	e.mu.Lock()
	st := e.states[run.id]
	if st.Status.IsTerminal() {
		e.mu.Unlock()
		return
	}
	if msg != "" {
		st.addError(code, msg)
	}
	if err := st.transition(StatusFailed, e.now()); err != nil {
		// FAILED is reachable from every non-terminal status.
		st.Status = StatusFailed
	}
	extra := terminalExtra(st)
	extra["error"] = strings.Join(st.Errors, "; ")
	e.mu.Unlock()

	e.logger.Warn("workflow failed",
		zap.String("workflow_id", run.id),
		zap.String("code", string(code)),
		zap.String("error", msg),
	)
	e.subs.notifyStatus(run.id, StatusFailed, extra)
}

// release drops the run from the running set if it still owns the slot.
func (e *Engine) release(run *workflowRun) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctl, ok := e.running[run.id]; ok && ctl == run.ctl {
		delete(e.running, run.id)
	}
}

func terminalExtra(st *WorkflowState) map[string]any {
	return map[string]any{
		"completed": len(st.CompletedProcessors),
		"failed":    len(st.FailedProcessors),
		"duration":  st.Duration(),
	}
}

// publishProgress stores and publishes progress. Values below the last
// published percentage are raised to it.
func (e *Engine) publishProgress(id string, percent float64, message string) {
	e.mu.Lock()
	st, ok := e.states[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent < st.Progress {
		percent = st.Progress
	}
	st.Progress = percent
	st.ProgressMessage = message
	e.mu.Unlock()

	e.subs.notifyProgress(id, percent, message)
}

func (e *Engine) isCompleted(id, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	return ok && st.IsCompleted(name)
}

// =============================================================================
// 控制操作
// =============================================================================

// CancelWorkflow stops a running workflow at its next checkpoint. It returns
// false if the workflow is not in the running set.
func (e *Engine) CancelWorkflow(id string) bool {
	e.mu.Lock()
	ctl, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	return e.cancel(id, ctl, "cancelled by request")
}

func (e *Engine) cancel(id string, ctl *runControl, reason string) bool {
	e.mu.Lock()
	current, ok := e.running[id]
	if !ok || current != ctl {
		e.mu.Unlock()
		return false
	}
	delete(e.running, id)
	ctl.signalStop()

	st, tracked := e.states[id]
	if !tracked || st.Status.IsTerminal() {
		e.mu.Unlock()
		return true
	}
	st.addError(types.ErrWorkflowCancelled, "workflow cancelled: "+reason)
	if err := st.transition(StatusCancelled, e.now()); err != nil {
		e.mu.Unlock()
		return true
	}
	extra := terminalExtra(st)
	extra["reason"] = reason
	e.mu.Unlock()

	e.logger.Info("workflow cancelled",
		zap.String("workflow_id", id),
		zap.String("reason", reason),
	)
	e.subs.notifyStatus(id, StatusCancelled, extra)
	return true
}

// PauseWorkflow suspends a RUNNING workflow at its next checkpoint. The
// processor currently executing, if any, runs to completion.
func (e *Engine) PauseWorkflow(id string) bool {
	e.mu.Lock()
	ctl, running := e.running[id]
	st, tracked := e.states[id]
	if !running || !tracked || st.Status != StatusRunning {
		e.mu.Unlock()
		return false
	}
	if err := st.transition(StatusPaused, e.now()); err != nil {
		e.mu.Unlock()
		return false
	}
	ctl.paused = true
	ctl.resume = make(chan struct{})
	progress := st.Progress
	e.mu.Unlock()

	e.logger.Info("workflow paused", zap.String("workflow_id", id))
	e.subs.notifyStatus(id, StatusPaused, map[string]any{"progress": progress})
	return true
}

// ResumeWorkflow continues a PAUSED workflow from its next unprocessed step.
func (e *Engine) ResumeWorkflow(id string) bool {
	e.mu.Lock()
	st, tracked := e.states[id]
	if !tracked || st.Status != StatusPaused {
		e.mu.Unlock()
		return false
	}
	if err := st.transition(StatusRunning, e.now()); err != nil {
		e.mu.Unlock()
		return false
	}
	ctl, ok := e.running[id]
	if ok && ctl.paused {
		ctl.paused = false
		close(ctl.resume)
	}
	progress := st.Progress
	e.mu.Unlock()

	e.logger.Info("workflow resumed", zap.String("workflow_id", id))
	e.subs.notifyStatus(id, StatusRunning, map[string]any{"progress": progress, "resumed": true})
	return true
}

// =============================================================================
// 查询
// =============================================================================

// GetWorkflowState returns a snapshot of the workflow.
func (e *Engine) GetWorkflowState(id string) (*WorkflowState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// ListWorkflows returns snapshots in creation order, optionally filtered by
// status.
func (e *Engine) ListWorkflows(statuses ...WorkflowStatus) []*WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*WorkflowState, 0, len(e.order))
	for _, id := range e.order {
		st := e.states[id]
		if len(statuses) > 0 && !containsStatus(statuses, st.Status) {
			continue
		}
		out = append(out, st.Clone())
	}
	return out
}

// Wait blocks until the workflow's active run finishes or ctx is done.
func (e *Engine) Wait(ctx context.Context, id string) error {
	e.mu.Lock()
	ctl, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ctl.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func containsStatus(list []WorkflowStatus, s WorkflowStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
