package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/testutil"
	"github.com/BaSui01/scoreflow/testutil/mocks"
)

var testPolicy = FallbackPolicy{
	Primary:    "fetch",
	Processors: []string{"fetch_mirror", "fetch_archive"},
}

type fallbackFixture struct {
	fetch   *mocks.MockProcessor
	mirror  *mocks.MockProcessor
	archive *mocks.MockProcessor
	score   *mocks.MockProcessor
	reg     *processor.Registry
}

func newFallbackFixture(failedItems any) *fallbackFixture {
	f := &fallbackFixture{
		fetch:   mocks.NewMockProcessor("fetch").WithData(map[string]any{"fetched": 7, "failed_items": failedItems}),
		mirror:  mocks.NewMockProcessor("fetch_mirror", "fetch"),
		archive: mocks.NewMockProcessor("fetch_archive", "fetch"),
		score:   mocks.NewMockProcessor("score", "fetch"),
		reg:     processor.NewRegistry(),
	}
	f.reg.MustRegister(f.fetch, f.mirror, f.archive, f.score)
	return f
}

func (f *fallbackFixture) run(t *testing.T, cfg WorkflowConfig, opts ...Option) *WorkflowState {
	t.Helper()
	opts = append([]Option{WithFallbackPolicy(testPolicy)}, opts...)
	e := newTestEngine(t, f.reg, opts...)
	if len(cfg.ProcessorsToRun) == 0 {
		cfg.ProcessorsToRun = []string{"fetch", "score"}
	}
	return e.RunWorkflow(testutil.TestContext(t), cfg)
}

func TestFallback_RunsChainWhenPrimaryReportsFailures(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	metrics := &recordingMetrics{}
	st := f.run(t, WorkflowConfig{}, WithMetrics(metrics))

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, []string{"fetch", "fetch_mirror", "fetch_archive", "score"}, st.CompletedProcessors)
	assert.Equal(t, []string{"fetch", "fetch_mirror", "fetch_archive", "score"}, historyOrder(st))
	assert.Equal(t, 1, f.fetch.CallCount())

	mirror := st.FindRecords("fetch_mirror")
	require.Len(t, mirror, 1)
	assert.True(t, mirror[0].Fallback)
	assert.False(t, st.FindRecords("fetch")[0].Fallback)

	cfg, ok := f.mirror.LastCall()
	require.True(t, ok)
	assert.Contains(t, cfg.Upstream, "fetch")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"fetch>fetch_mirror:ok", "fetch>fetch_archive:ok"}, metrics.fallbacks)
}

func TestFallback_CountSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		count    any
		expected bool
	}{
		{name: "zero", count: 0, expected: false},
		{name: "negative", count: -2, expected: false},
		{name: "missing", count: nil, expected: false},
		{name: "non numeric", count: "three", expected: false},
		{name: "int64", count: int64(1), expected: true},
		{name: "float", count: 2.0, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFallbackFixture(tt.count)
			st := f.run(t, WorkflowConfig{})

			assert.Equal(t, StatusCompleted, st.Status)
			called := 0
			if tt.expected {
				called = 1
			}
			assert.Equal(t, called, f.mirror.CallCount())
			assert.Equal(t, called, f.archive.CallCount())
		})
	}
}

func TestFallback_SecondRunsOnlyAfterFirstSucceeds(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	f.mirror.WithFailure("mirror unreachable")
	st := f.run(t, WorkflowConfig{})

	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, []string{"fetch"}, st.CompletedProcessors)
	assert.Equal(t, []string{"fetch_mirror"}, st.FailedProcessors)
	assert.Equal(t, 0, f.archive.CallCount())
	assert.Equal(t, 0, f.score.CallCount())
}

func TestFallback_FailureWithContinueOnError(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	f.mirror.WithFailure("mirror unreachable")
	st := f.run(t, WorkflowConfig{ContinueOnError: true})

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, []string{"fetch", "score"}, st.CompletedProcessors)
	assert.Equal(t, []string{"fetch_mirror"}, st.FailedProcessors)
	assert.Equal(t, 0, f.archive.CallCount())
}

func TestFallback_HonoursSkipList(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	st := f.run(t, WorkflowConfig{ProcessorsToSkip: []string{"fetch_mirror"}})

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 0, f.mirror.CallCount())
	assert.Equal(t, 0, f.archive.CallCount())
}

func TestFallback_UnregisteredStopsChain(t *testing.T) {
	t.Parallel()

	fetch := mocks.NewMockProcessor("fetch").WithData(map[string]any{"failed_items": 4})
	archive := mocks.NewMockProcessor("fetch_archive")
	reg := processor.NewRegistry()
	reg.MustRegister(fetch, archive)

	e := newTestEngine(t, reg, WithFallbackPolicy(testPolicy))
	st := e.RunWorkflow(testutil.TestContext(t), WorkflowConfig{ProcessorsToRun: []string{"fetch"}})

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 0, archive.CallCount())
}

func TestFallback_NotTriggeredWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	f.fetch.WithFailure("timeout")
	st := f.run(t, WorkflowConfig{ContinueOnError: true})

	assert.Equal(t, []string{"fetch"}, st.FailedProcessors)
	assert.Equal(t, 0, f.mirror.CallCount())
}

func TestFallback_AlreadyCompletedIsNotRepeated(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	st := f.run(t, WorkflowConfig{ProcessorsToRun: []string{"fetch", "fetch_mirror", "score"}})

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 1, f.mirror.CallCount())
	assert.Equal(t, 1, f.archive.CallCount())
}

func TestFallback_DisabledByDefault(t *testing.T) {
	t.Parallel()

	f := newFallbackFixture(3)
	e := newTestEngine(t, f.reg)
	st := e.RunWorkflow(testutil.TestContext(t), WorkflowConfig{ProcessorsToRun: []string{"fetch", "score"}})

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 0, f.mirror.CallCount())
}

func TestFallbackPolicy_Normalized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		policy   FallbackPolicy
		expected FallbackPolicy
		enabled  bool
	}{
		{
			name:     "defaults count key",
			policy:   FallbackPolicy{Primary: "fetch", Processors: []string{"m"}},
			expected: FallbackPolicy{Primary: "fetch", CountKey: DefaultFallbackCountKey, Processors: []string{"m"}},
			enabled:  true,
		},
		{
			name:     "drops primary and empty names and caps the chain",
			policy:   FallbackPolicy{Primary: "fetch", CountKey: "misses", Processors: []string{"", "fetch", "a", "b", "c"}},
			expected: FallbackPolicy{Primary: "fetch", CountKey: "misses", Processors: []string{"a", "b"}},
			enabled:  true,
		},
		{
			name:     "no primary",
			policy:   FallbackPolicy{Processors: []string{"a"}},
			expected: FallbackPolicy{CountKey: DefaultFallbackCountKey, Processors: []string{"a"}},
			enabled:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.normalized()
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.enabled, got.Enabled())
		})
	}
}

// --- 生命周期 ---

func TestFallback_NotRunAfterCancelDuringPrimary(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFallbackFixture(3)
	f.fetch.WithGate(gate)
	metrics := &recordingMetrics{}
	e := newTestEngine(t, f.reg, WithFallbackPolicy(testPolicy), WithMetrics(metrics))

	done := runAsync(testutil.TestContext(t), e, WorkflowConfig{ID: "wf", ProcessorsToRun: []string{"fetch", "score"}})
	require.True(t, testutil.WaitClosed(f.fetch.Started(), waitTimeout))
	require.True(t, e.CancelWorkflow("wf"))
	close(gate)

	st := awaitState(t, done)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.Equal(t, []string{"fetch"}, st.CompletedProcessors)
	assert.Equal(t, []string{"fetch"}, historyOrder(st))
	assert.Equal(t, 0, f.mirror.CallCount())
	assert.Equal(t, 0, f.archive.CallCount())
	assert.Equal(t, 0, f.score.CallCount())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Empty(t, metrics.fallbacks)
}

func TestFallback_WaitsForResumeAfterPauseDuringPrimary(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFallbackFixture(3)
	f.fetch.WithGate(gate)
	e := newTestEngine(t, f.reg, WithFallbackPolicy(testPolicy))

	done := runAsync(testutil.TestContext(t), e, WorkflowConfig{ID: "wf", ProcessorsToRun: []string{"fetch", "score"}})
	require.True(t, testutil.WaitClosed(f.fetch.Started(), waitTimeout))
	require.True(t, e.PauseWorkflow("wf"))
	close(gate)

	testutil.AssertEventuallyTrue(t, func() bool {
		st, _ := e.GetWorkflowState("wf")
		return st.IsCompleted("fetch")
	}, waitTimeout)
	time.Sleep(50 * time.Millisecond)
	snap, _ := e.GetWorkflowState("wf")
	assert.Equal(t, StatusPaused, snap.Status)
	assert.Equal(t, 0, f.mirror.CallCount())

	require.True(t, e.ResumeWorkflow("wf"))
	st := awaitState(t, done)

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, []string{"fetch", "fetch_mirror", "fetch_archive", "score"}, historyOrder(st))
	assert.Equal(t, 1, f.fetch.CallCount())
}
