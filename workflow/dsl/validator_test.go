package dsl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validDSL() *PipelineDSL {
	return &PipelineDSL{
		Version: "1",
		Name:    "p",
		Variables: map[string]VariableDef{
			"region": {Type: "string", Default: "eu"},
		},
		Processors: map[string]ProcessorDef{
			"fetch":        {Command: []string{"fetch", "${region}"}, Type: "fetcher"},
			"fetch_mirror": {Kind: KindStatic, DependsOn: []string{"fetch"}},
			"score":        {Kind: KindStatic, DependsOn: []string{"fetch"}, Timeout: "5s"},
		},
		Workflows: []WorkflowDef{{ID: "a", Processors: []string{"score"}}},
		Fallback:  &FallbackDef{Primary: "fetch", Processors: []string{"fetch_mirror"}},
	}
}

func TestValidator_Valid(t *testing.T) {
	t.Parallel()

	errs := NewValidator(KindCommand, KindStatic).Validate(validDSL())
	assert.Empty(t, errs)
}

func TestValidator_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(d *PipelineDSL)
		want   string
	}{
		{"missing version", func(d *PipelineDSL) { d.Version = "" }, "version is required"},
		{"missing name", func(d *PipelineDSL) { d.Name = "" }, "name is required"},
		{"no processors", func(d *PipelineDSL) { d.Processors = nil; d.Workflows = nil; d.Fallback = nil }, "at least one processor"},
		{"unknown kind", func(d *PipelineDSL) { d.Processors["x"] = ProcessorDef{Kind: "grpc"} }, `unknown kind "grpc"`},
		{"command missing", func(d *PipelineDSL) { d.Processors["x"] = ProcessorDef{} }, "requires command"},
		{"bad type", func(d *PipelineDSL) { d.Processors["x"] = ProcessorDef{Kind: KindStatic, Type: "oracle"} }, `invalid type "oracle"`},
		{"bad duration", func(d *PipelineDSL) { d.Processors["x"] = ProcessorDef{Kind: KindStatic, Timeout: "soon"} }, `invalid timeout "soon"`},
		{"unknown dependency", func(d *PipelineDSL) {
			d.Processors["x"] = ProcessorDef{Kind: KindStatic, DependsOn: []string{"ghost"}}
		}, `dependency "ghost" does not exist`},
		{"workflow id missing", func(d *PipelineDSL) { d.Workflows = append(d.Workflows, WorkflowDef{}) }, "id is required"},
		{"duplicate workflow", func(d *PipelineDSL) { d.Workflows = append(d.Workflows, WorkflowDef{ID: "a"}) }, "duplicate workflow ID: a"},
		{"workflow unknown processor", func(d *PipelineDSL) { d.Workflows[0].Processors = []string{"ghost"} }, `processor "ghost" does not exist`},
		{"workflow unknown skip", func(d *PipelineDSL) { d.Workflows[0].Skip = []string{"ghost"} }, `skipped processor "ghost"`},
		{"fallback without primary", func(d *PipelineDSL) { d.Fallback.Primary = "" }, "primary is required"},
		{"fallback too long", func(d *PipelineDSL) {
			d.Fallback.Processors = []string{"fetch_mirror", "score", "x"}
		}, "at most 2 processors"},
		{"fallback self", func(d *PipelineDSL) { d.Fallback.Processors = []string{"fetch"} }, "cannot be its own fallback"},
		{"bad variable type", func(d *PipelineDSL) { d.Variables["n"] = VariableDef{Type: "list"} }, `invalid type "list"`},
		{"undefined variable", func(d *PipelineDSL) {
			d.Workflows[0].Params = map[string]interface{}{"q": []interface{}{"${missing}"}}
		}, `variable "missing" not defined`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDSL()
			tt.mutate(d)
			errs := NewValidator(KindCommand, KindStatic).Validate(d)
			var msgs []string
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.want)
		})
	}
}

func TestExtractVariableRefs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, extractVariableRefs("x ${a} y ${b}"))
	assert.Nil(t, extractVariableRefs("no refs"))
	assert.Nil(t, extractVariableRefs("${unterminated"))
}
