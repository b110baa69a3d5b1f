package dsl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/scoreflow/processor"
)

// maxFallbackProcessors mirrors the depth of the engine's fallback chain.
const maxFallbackProcessors = 2

// Validator DSL 验证器
type Validator struct {
	kinds map[string]bool
}

// NewValidator 创建验证器，kinds 为允许的处理器类型
func NewValidator(kinds ...string) *Validator {
	v := &Validator{kinds: map[string]bool{}}
	for _, k := range kinds {
		v.kinds[k] = true
	}
	return v
}

// Validate 验证 DSL 定义
func (v *Validator) Validate(dsl *PipelineDSL) []error {
	var errs []error

	// 基础字段验证
	if dsl.Version == "" {
		errs = append(errs, fmt.Errorf("version is required"))
	}
	if dsl.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if len(dsl.Processors) == 0 {
		errs = append(errs, fmt.Errorf("processors must have at least one processor"))
	}

	for _, name := range sortedKeys(dsl.Processors) {
		def := dsl.Processors[name]
		errs = append(errs, v.validateProcessor(name, &def, dsl)...)
	}

	// 收集所有工作流 ID
	workflowIDs := make(map[string]bool)
	for i, wf := range dsl.Workflows {
		if wf.ID == "" {
			errs = append(errs, fmt.Errorf("workflows[%d]: id is required", i))
			continue
		}
		if workflowIDs[wf.ID] {
			errs = append(errs, fmt.Errorf("duplicate workflow ID: %s", wf.ID))
		}
		workflowIDs[wf.ID] = true
	}
	for _, wf := range dsl.Workflows {
		errs = append(errs, v.validateWorkflow(&wf, dsl)...)
	}

	if dsl.Fallback != nil {
		errs = append(errs, v.validateFallback(dsl.Fallback, dsl)...)
	}

	// 验证变量定义与插值引用
	errs = append(errs, v.validateVariables(dsl)...)

	return errs
}

// validateProcessor 验证单个处理器
func (v *Validator) validateProcessor(name string, def *ProcessorDef, dsl *PipelineDSL) []error {
	var errs []error

	if strings.TrimSpace(name) == "" {
		errs = append(errs, fmt.Errorf("processor name must not be empty"))
	}

	kind := def.kind()
	if len(v.kinds) > 0 && !v.kinds[kind] {
		errs = append(errs, fmt.Errorf("processor %s: unknown kind %q", name, kind))
	}
	if kind == KindCommand && len(def.Command) == 0 {
		errs = append(errs, fmt.Errorf("processor %s: command processor requires command", name))
	}

	if def.Type != "" && !validTypes[processor.Type(def.Type)] {
		errs = append(errs, fmt.Errorf("processor %s: invalid type %q", name, def.Type))
	}

	for _, field := range []struct{ label, value string }{
		{"estimated_duration", def.EstimatedDuration},
		{"timeout", def.Timeout},
	} {
		if field.value == "" {
			continue
		}
		if d, err := time.ParseDuration(field.value); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("processor %s: invalid %s %q", name, field.label, field.value))
		}
	}

	// 验证依赖存在
	for _, dep := range def.DependsOn {
		if _, ok := dsl.Processors[dep]; !ok {
			errs = append(errs, fmt.Errorf("processor %s: dependency %q does not exist", name, dep))
		}
	}

	return errs
}

// validateWorkflow 验证单个工作流
func (v *Validator) validateWorkflow(wf *WorkflowDef, dsl *PipelineDSL) []error {
	var errs []error
	for _, name := range wf.Processors {
		if _, ok := dsl.Processors[name]; !ok {
			errs = append(errs, fmt.Errorf("workflow %s: processor %q does not exist", wf.ID, name))
		}
	}
	for _, name := range wf.Skip {
		if _, ok := dsl.Processors[name]; !ok {
			errs = append(errs, fmt.Errorf("workflow %s: skipped processor %q does not exist", wf.ID, name))
		}
	}
	return errs
}

// validateFallback 验证降级策略
func (v *Validator) validateFallback(fb *FallbackDef, dsl *PipelineDSL) []error {
	var errs []error
	if fb.Primary == "" {
		errs = append(errs, fmt.Errorf("fallback: primary is required"))
	} else if _, ok := dsl.Processors[fb.Primary]; !ok {
		errs = append(errs, fmt.Errorf("fallback: primary %q does not exist", fb.Primary))
	}
	if len(fb.Processors) == 0 {
		errs = append(errs, fmt.Errorf("fallback: at least one processor is required"))
	}
	if len(fb.Processors) > maxFallbackProcessors {
		errs = append(errs, fmt.Errorf("fallback: at most %d processors are allowed, got %d", maxFallbackProcessors, len(fb.Processors)))
	}
	seen := map[string]bool{}
	for _, name := range fb.Processors {
		if name == fb.Primary {
			errs = append(errs, fmt.Errorf("fallback: primary %q cannot be its own fallback", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("fallback: duplicate processor %q", name))
		}
		seen[name] = true
		if _, ok := dsl.Processors[name]; !ok {
			errs = append(errs, fmt.Errorf("fallback: processor %q does not exist", name))
		}
	}
	return errs
}

// validateVariables 验证变量类型与插值引用
func (v *Validator) validateVariables(dsl *PipelineDSL) []error {
	var errs []error

	for _, name := range sortedKeys(dsl.Variables) {
		def := dsl.Variables[name]
		if def.Type != "" && !validVariableTypes[def.Type] {
			errs = append(errs, fmt.Errorf("variable %s: invalid type %q", name, def.Type))
		}
	}

	check := func(owner, s string) {
		for _, ref := range extractVariableRefs(s) {
			if _, ok := dsl.Variables[ref]; !ok {
				errs = append(errs, fmt.Errorf("%s: variable %q not defined", owner, ref))
			}
		}
	}

	for _, name := range sortedKeys(dsl.Processors) {
		def := dsl.Processors[name]
		owner := "processor " + name
		for _, arg := range def.Command {
			check(owner, arg)
		}
		for _, key := range sortedKeys(def.Env) {
			check(owner, def.Env[key])
		}
		check(owner, def.Dir)
	}
	for _, wf := range dsl.Workflows {
		owner := "workflow " + wf.ID
		check(owner, wf.Name)
		walkStrings(wf.Params, func(s string) { check(owner, s) })
	}

	return errs
}

var validTypes = map[processor.Type]bool{
	processor.TypeFetcher:    true,
	processor.TypeFilter:     true,
	processor.TypeEnricher:   true,
	processor.TypeClassifier: true,
	processor.TypeScorer:     true,
	processor.TypeReporter:   true,
	processor.TypeGeneric:    true,
}

var validVariableTypes = map[string]bool{
	"string": true, "int": true, "float": true, "bool": true,
}

// extractVariableRefs 提取 ${var} 引用
func extractVariableRefs(s string) []string {
	var refs []string
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		refs = append(refs, s[start+2:start+end])
		s = s[start+end+1:]
	}
	return refs
}

// walkStrings visits every string inside nested maps and slices.
func walkStrings(v any, fn func(string)) {
	switch val := v.(type) {
	case string:
		fn(val)
	case map[string]interface{}:
		for _, k := range sortedKeys(val) {
			walkStrings(val[k], fn)
		}
	case []interface{}:
		for _, item := range val {
			walkStrings(item, fn)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
