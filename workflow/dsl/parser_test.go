package dsl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/types"
	"github.com/BaSui01/scoreflow/workflow"
)

const samplePipeline = `
version: "1"
name: nightly-scoring
description: score yesterday's records
variables:
  region:
    type: string
    default: eu
  limit:
    type: int
    default: 50
  token:
    type: string
processors:
  lookup:
    kind: static
    type: fetcher
    config:
      data:
        records: 3
  fetch:
    type: fetcher
    depends_on: [lookup]
    requires_network: true
    estimated_duration: 30s
    timeout: 2m
    command: ["fetcher", "--region", "${region}"]
    env:
      FETCH_LIMIT: "${limit}"
  fetch_mirror:
    kind: static
    depends_on: [fetch]
  score:
    kind: static
    type: scorer
    depends_on: [fetch]
    config:
      data:
        scored: 3
workflows:
  - id: daily
    name: daily ${region}
    processors: [score, lookup, fetch]
    params:
      limit: ${limit}
      label: "run-${region}"
      nested:
        - ${region}
  - id: quick
    skip: [fetch]
    continue_on_error: true
fallback:
  primary: fetch
  processors: [fetch_mirror]
metadata:
  owner: data-team
`

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	p, err := NewParser().Parse([]byte(samplePipeline))
	require.NoError(t, err)

	assert.Equal(t, "nightly-scoring", p.Name)
	assert.Equal(t, "1", p.Version)
	assert.Equal(t, "data-team", p.Metadata["owner"])
	assert.Equal(t, map[string]interface{}{"region": "eu", "limit": 50}, p.Variables)

	names := make([]string, 0, len(p.Processors))
	for _, proc := range p.Processors {
		names = append(names, proc.Metadata().Name)
	}
	assert.Equal(t, []string{"fetch", "fetch_mirror", "lookup", "score"}, names)

	fetch := p.Processors[0]
	meta := fetch.Metadata()
	assert.Equal(t, []string{"lookup"}, meta.Dependencies)
	assert.Equal(t, processor.TypeFetcher, meta.Type)
	assert.True(t, meta.RequiresNetwork)
	assert.Equal(t, 30*time.Second, meta.EstimatedDuration)
	assert.IsType(t, &processor.CommandProcessor{}, fetch)

	assert.Equal(t, processor.TypeGeneric, p.Processors[1].Metadata().Type)

	require.Len(t, p.Workflows, 2)
	daily, ok := p.Workflow("daily")
	require.True(t, ok)
	assert.Equal(t, "daily eu", daily.Name)
	assert.Equal(t, []string{"score", "lookup", "fetch"}, daily.ProcessorsToRun)
	assert.Equal(t, 50, daily.Params["limit"])
	assert.Equal(t, "run-eu", daily.Params["label"])
	assert.Equal(t, []interface{}{"eu"}, daily.Params["nested"])

	quick, ok := p.Workflow("quick")
	require.True(t, ok)
	assert.True(t, quick.ContinueOnError)
	assert.Equal(t, []string{"fetch"}, quick.ProcessorsToSkip)

	_, ok = p.Workflow("missing")
	assert.False(t, ok)

	require.NotNil(t, p.Fallback)
	assert.Equal(t, workflow.FallbackPolicy{Primary: "fetch", Processors: []string{"fetch_mirror"}}, *p.Fallback)
}

func TestParser_VariableOverrides(t *testing.T) {
	t.Parallel()

	p, err := NewParser(WithVariables(map[string]string{"region": "us", "limit": "7", "token": "abc"})).
		Parse([]byte(samplePipeline))
	require.NoError(t, err)

	daily, _ := p.Workflow("daily")
	assert.Equal(t, "daily us", daily.Name)
	assert.Equal(t, 7, daily.Params["limit"])
	assert.Equal(t, "abc", p.Variables["token"])
}

func TestParser_VariableErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overrides map[string]string
		doc       string
	}{
		{
			name:      "bad int override",
			overrides: map[string]string{"limit": "many"},
			doc:       samplePipeline,
		},
		{
			name:      "undefined override",
			overrides: map[string]string{"nope": "x"},
			doc:       samplePipeline,
		},
		{
			name: "required variable missing",
			doc: `
version: "1"
name: p
variables:
  token: {type: string, required: true}
processors:
  a: {kind: static}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(WithVariables(tt.overrides)).Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidDefinition))
		})
	}
}

func TestParser_InvalidDocuments(t *testing.T) {
	t.Parallel()

	_, err := NewParser().Parse([]byte("version: [unterminated"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidDefinition))

	_, err = NewParser().Parse([]byte(`
version: "1"
name: p
processors:
  a: {kind: teleport}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown kind "teleport"`)
}

func TestParser_RegisterFactory(t *testing.T) {
	t.Parallel()

	parser := NewParser()
	var seen ProcessorDef
	parser.RegisterFactory("echo", func(meta processor.Metadata, def ProcessorDef) (processor.Processor, error) {
		seen = def
		return processor.NewFuncProcessor(meta, nil), nil
	})

	p, err := parser.Parse([]byte(`
version: "1"
name: p
variables:
  greeting: {type: string, default: hi}
processors:
  a:
    kind: echo
    config:
      message: "${greeting} there"
`))
	require.NoError(t, err)
	require.Len(t, p.Processors, 1)
	assert.Equal(t, "hi there", seen.Config["message"])
}

func TestPipeline_RegisterAndRun(t *testing.T) {
	t.Parallel()

	p, err := NewParser().Parse([]byte(`
version: "1"
name: static-only
processors:
  lookup:
    kind: static
    config:
      data: {records: 2}
  score:
    kind: static
    depends_on: [lookup]
    config:
      fail: "model missing"
workflows:
  - id: wf
    continue_on_error: true
`))
	require.NoError(t, err)

	reg := processor.NewRegistry()
	require.NoError(t, p.Register(reg))
	assert.Equal(t, []string{"lookup", "score"}, reg.List())

	cfg, _ := p.Workflow("wf")
	st := workflow.NewEngine(reg).RunWorkflow(context.Background(), cfg)
	assert.Equal(t, workflow.StatusCompleted, st.Status)
	assert.Equal(t, []string{"lookup"}, st.CompletedProcessors)
	assert.Equal(t, []string{"score"}, st.FailedProcessors)
	assert.Equal(t, 2, st.Results["lookup"].Data["records"])
	assert.Equal(t, []string{"model missing"}, st.Results["score"].Errors)
}

func TestParser_ParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePipeline), 0o600))

	p, err := NewParser().ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, p.Workflows, 2)

	_, err = NewParser().ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
