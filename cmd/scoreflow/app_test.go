package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/scoreflow/config"
	"github.com/BaSui01/scoreflow/workflow"
)

const testPipeline = `
version: "1"
name: cli-test
variables:
  region:
    type: string
    default: eu
processors:
  lookup:
    kind: static
    type: fetcher
    config:
      data:
        records: 4
  fetch:
    kind: static
    type: fetcher
    depends_on: [lookup]
    config:
      data:
        fetched: 2
        failed_items: 2
  fetch_mirror:
    kind: static
    type: fetcher
    depends_on: [fetch]
  score:
    kind: static
    type: scorer
    depends_on: [fetch]
  broken:
    kind: static
    config:
      fail: upstream returned 500
workflows:
  - id: daily
    name: daily ${region}
    processors: [score, lookup, fetch]
  - id: flaky
    processors: [lookup, broken]
`

func writePipeline(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testApp(t *testing.T, vars map[string]string) *app {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Enabled = false
	a, err := newApp(context.Background(), cfg, writePipeline(t, testPipeline), vars, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })
	return a
}

// --- flags ---

func TestVarsFlag(t *testing.T) {
	v := varsFlag{}
	require.NoError(t, v.Set("region=us"))
	require.NoError(t, v.Set(" limit =10=x"))
	assert.Equal(t, varsFlag{"region": "us", "limit": "10=x"}, v)

	assert.Error(t, v.Set("novalue"))
	assert.Error(t, v.Set("=x"))
}

func TestCommonFlags_SelectedWorkflows(t *testing.T) {
	c := commonFlags{workflowIDs: " daily, ,flaky"}
	assert.Equal(t, []string{"daily", "flaky"}, c.selectedWorkflows())
	assert.Nil(t, (&commonFlags{}).selectedWorkflows())
}

// --- app ---

func TestApp_Plan(t *testing.T) {
	a := testApp(t, nil)

	plans, err := a.plan([]string{"daily"})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "daily", plans[0].workflowID)
	assert.Equal(t, []string{"lookup", "fetch", "score"}, plans[0].order)

	_, err = a.plan([]string{"nightly"})
	assert.ErrorContains(t, err, `workflow "nightly" is not defined`)
}

func TestApp_RunWithConfigFallback(t *testing.T) {
	a := testApp(t, map[string]string{"region": "us"})

	states, err := a.runWorkflows(context.Background(), []string{"daily"})
	require.NoError(t, err)
	require.Len(t, states, 1)
	st := states[0]

	assert.Equal(t, workflow.StatusCompleted, st.Status)
	assert.Equal(t, "daily us", st.Config.Name)
	// fetch_archive is not registered, so the chain stops after the mirror.
	assert.Equal(t, []string{"lookup", "fetch", "fetch_mirror", "score"}, st.CompletedProcessors)
	n, err := testutil.GatherAndCount(a.registry, "scoreflow_workflows_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApp_RunAllAndReport(t *testing.T) {
	a := testApp(t, nil)

	states, err := a.runWorkflows(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, workflow.StatusCompleted, states[0].Status)
	assert.Equal(t, workflow.StatusFailed, states[1].Status)
	assert.Equal(t, []string{"broken"}, states[1].FailedProcessors)

	var buf bytes.Buffer
	assert.Equal(t, 1, reportStates(&buf, states))

	var decoded []workflow.WorkflowState
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 2)

	buf.Reset()
	assert.Equal(t, 0, reportStates(&buf, states[:1]))
}

func TestApp_ServeWithoutEndpoint(t *testing.T) {
	a := testApp(t, nil)
	require.NoError(t, a.serve(context.Background(), []string{"daily"}))

	stats := a.engine.GetWorkflowStatistics()
	assert.Equal(t, 1, stats.StatusCounts[workflow.StatusCompleted])
}

func TestNewApp_InvalidPipeline(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := newApp(context.Background(), cfg, writePipeline(t, "name: x\n"), nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// --- commands ---

func TestRunPlanCommand(t *testing.T) {
	var out bytes.Buffer
	code := runPlan([]string{"-pipeline", writePipeline(t, testPipeline), "-workflow", "daily"}, &out)
	require.Equal(t, 0, code)
	assert.Equal(t, "daily: lookup -> fetch -> score\n", out.String())
}

func TestRunPlanCommand_MissingPipeline(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, runPlan(nil, &out))
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "ScoreFlow dev")
}

// --- logger ---

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger = initLogger(config.LogConfig{Level: "nonsense"})
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
