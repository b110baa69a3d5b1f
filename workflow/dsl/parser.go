package dsl

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/types"
	"github.com/BaSui01/scoreflow/workflow"
)

// 内置处理器类型
const (
	KindCommand = "command"
	KindStatic  = "static"
)

// ProcessorFactory 根据定义构建处理器。def 中的字符串已完成变量插值。
type ProcessorFactory func(meta processor.Metadata, def ProcessorDef) (processor.Processor, error)

// Pipeline 解析后的流水线
type Pipeline struct {
	Name        string
	Description string
	Version     string
	Variables   map[string]interface{}
	// Processors 按名称排序
	Processors []processor.Processor
	Workflows  []workflow.WorkflowConfig
	// Fallback 为 nil 时使用进程配置中的策略
	Fallback *workflow.FallbackPolicy
	Metadata map[string]interface{}
}

// Register 将所有处理器注册到 registry
func (p *Pipeline) Register(registry *processor.Registry) error {
	for _, proc := range p.Processors {
		if err := registry.Register(proc); err != nil {
			return fmt.Errorf("register processor: %w", err)
		}
	}
	return nil
}

// Workflow 按 ID 查找工作流
func (p *Pipeline) Workflow(id string) (workflow.WorkflowConfig, bool) {
	for _, wf := range p.Workflows {
		if wf.ID == id {
			return wf.Clone(), true
		}
	}
	return workflow.WorkflowConfig{}, false
}

// Parser DSL 解析器
type Parser struct {
	// factories 处理器类型注册表（kind -> 工厂函数）
	factories map[string]ProcessorFactory
	// overrides 命令行覆盖的变量值
	overrides map[string]string
	logger    *zap.Logger
}

// ParserOption 解析器选项
type ParserOption func(*Parser)

// WithLogger 设置命令处理器使用的 logger
func WithLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithVariables 覆盖变量值，值按变量类型转换
func WithVariables(values map[string]string) ParserOption {
	return func(p *Parser) {
		for k, v := range values {
			p.overrides[k] = v
		}
	}
}

// NewParser 创建 DSL 解析器
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		factories: make(map[string]ProcessorFactory),
		overrides: make(map[string]string),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.registerBuiltinKinds()
	return p
}

// RegisterFactory 注册自定义处理器类型
func (p *Parser) RegisterFactory(kind string, factory ProcessorFactory) {
	p.factories[kind] = factory
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*Pipeline, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	return p.Parse(data)
}

// Parse 从 YAML 字节解析 DSL
func (p *Parser) Parse(data []byte) (*Pipeline, error) {
	var dsl PipelineDSL
	if err := yaml.Unmarshal(data, &dsl); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "parse YAML").WithCause(err)
	}

	// 1. 验证 DSL
	if err := p.validate(&dsl); err != nil {
		return nil, err
	}

	// 2. 解析变量，构建插值上下文
	vars, err := p.resolveVariables(dsl.Variables)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "resolve variables").WithCause(err)
	}

	// 3. 构建处理器与工作流
	pipeline := &Pipeline{
		Name:        dsl.Name,
		Description: dsl.Description,
		Version:     dsl.Version,
		Variables:   vars,
		Metadata:    dsl.Metadata,
	}
	for _, name := range sortedKeys(dsl.Processors) {
		proc, err := p.buildProcessor(name, dsl.Processors[name], vars)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidDefinition, "build processor "+name).WithCause(err).WithProcessor(name)
		}
		pipeline.Processors = append(pipeline.Processors, proc)
	}
	for _, wf := range dsl.Workflows {
		pipeline.Workflows = append(pipeline.Workflows, p.buildWorkflow(wf, vars))
	}
	if dsl.Fallback != nil {
		pipeline.Fallback = &workflow.FallbackPolicy{
			Primary:    dsl.Fallback.Primary,
			CountKey:   dsl.Fallback.CountKey,
			Processors: append([]string(nil), dsl.Fallback.Processors...),
		}
	}

	return pipeline, nil
}

// validate 验证 DSL
func (p *Parser) validate(dsl *PipelineDSL) error {
	kinds := make([]string, 0, len(p.factories))
	for k := range p.factories {
		kinds = append(kinds, k)
	}
	errs := NewValidator(kinds...).Validate(dsl)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return types.NewError(types.ErrInvalidDefinition, "validation errors: "+strings.Join(msgs, "; "))
	}
	return nil
}

// resolveVariables 解析变量：默认值，然后覆盖值
func (p *Parser) resolveVariables(varDefs map[string]VariableDef) (map[string]interface{}, error) {
	vars := make(map[string]interface{})
	for _, name := range sortedKeys(varDefs) {
		def := varDefs[name]
		if raw, ok := p.overrides[name]; ok {
			v, err := convertVariable(def.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("variable %s: %w", name, err)
			}
			vars[name] = v
			continue
		}
		if def.Default != nil {
			vars[name] = def.Default
			continue
		}
		if def.Required {
			return nil, fmt.Errorf("variable %s is required", name)
		}
	}
	for name := range p.overrides {
		if _, ok := varDefs[name]; !ok {
			return nil, fmt.Errorf("variable %s is not defined", name)
		}
	}
	return vars, nil
}

func convertVariable(typ, raw string) (interface{}, error) {
	switch typ {
	case "int":
		return strconv.Atoi(raw)
	case "float":
		return strconv.ParseFloat(raw, 64)
	case "bool":
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}

// interpolate 变量插值（替换 ${var_name}）
func (p *Parser) interpolate(template string, vars map[string]interface{}) string {
	result := template
	for name, value := range vars {
		placeholder := "${" + name + "}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", value))
	}
	return result
}

// interpolateValue 对参数值插值。值恰为单个 ${var} 时保留变量的类型。
func (p *Parser) interpolateValue(v interface{}, vars map[string]interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if refs := extractVariableRefs(val); len(refs) == 1 && val == "${"+refs[0]+"}" {
			if typed, ok := vars[refs[0]]; ok {
				return typed
			}
		}
		return p.interpolate(val, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = p.interpolateValue(item, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = p.interpolateValue(item, vars)
		}
		return out
	default:
		return v
	}
}

// buildProcessor 从定义构建处理器
func (p *Parser) buildProcessor(name string, def ProcessorDef, vars map[string]interface{}) (processor.Processor, error) {
	meta := processor.Metadata{
		Name:                name,
		Description:         def.Description,
		Version:             def.Version,
		Dependencies:        append([]string(nil), def.DependsOn...),
		Type:                processor.Type(def.Type),
		RequiresNetwork:     def.RequiresNetwork,
		RequiresCredentials: def.RequiresCredentials,
		Parallelizable:      def.Parallelizable,
	}
	if meta.Type == "" {
		meta.Type = processor.TypeGeneric
	}
	if def.EstimatedDuration != "" {
		d, err := time.ParseDuration(def.EstimatedDuration)
		if err != nil {
			return nil, fmt.Errorf("estimated_duration: %w", err)
		}
		meta.EstimatedDuration = d
	}

	resolved := def
	resolved.Command = make([]string, len(def.Command))
	for i, arg := range def.Command {
		resolved.Command[i] = p.interpolate(arg, vars)
	}
	if def.Env != nil {
		resolved.Env = make(map[string]string, len(def.Env))
		for k, v := range def.Env {
			resolved.Env[k] = p.interpolate(v, vars)
		}
	}
	resolved.Dir = p.interpolate(def.Dir, vars)
	if def.Config != nil {
		resolved.Config, _ = p.interpolateValue(def.Config, vars).(map[string]interface{})
	}

	factory, ok := p.factories[def.kind()]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", def.kind())
	}
	return factory(meta, resolved)
}

// buildWorkflow 从定义构建工作流配置
func (p *Parser) buildWorkflow(def WorkflowDef, vars map[string]interface{}) workflow.WorkflowConfig {
	cfg := workflow.WorkflowConfig{
		ID:               def.ID,
		Name:             p.interpolate(def.Name, vars),
		ProcessorsToRun:  append([]string(nil), def.Processors...),
		ProcessorsToSkip: append([]string(nil), def.Skip...),
		ContinueOnError:  def.ContinueOnError,
	}
	if def.Params != nil {
		cfg.Params, _ = p.interpolateValue(def.Params, vars).(map[string]interface{})
	}
	return cfg
}

func (d ProcessorDef) kind() string {
	if d.Kind == "" {
		return KindCommand
	}
	return d.Kind
}

// registerBuiltinKinds 注册内置处理器类型
func (p *Parser) registerBuiltinKinds() {
	p.RegisterFactory(KindCommand, func(meta processor.Metadata, def ProcessorDef) (processor.Processor, error) {
		spec := processor.CommandSpec{Command: def.Command, Env: def.Env, Dir: def.Dir}
		if def.Timeout != "" {
			d, err := time.ParseDuration(def.Timeout)
			if err != nil {
				return nil, fmt.Errorf("timeout: %w", err)
			}
			spec.Timeout = d
		}
		return processor.NewCommandProcessor(meta, spec, p.logger)
	})

	// static 返回 config.data 作为结果；config.fail 非空时返回失败结果
	p.RegisterFactory(KindStatic, func(meta processor.Metadata, def ProcessorDef) (processor.Processor, error) {
		data, _ := def.Config["data"].(map[string]interface{})
		fail, _ := def.Config["fail"].(string)
		return processor.NewFuncProcessor(meta, func(_ context.Context, cfg processor.Config) (*processor.Result, error) {
			if fail != "" {
				return processor.NewFailureResult(cfg.ProcessorName, "%s", fail), nil
			}
			out := make(map[string]interface{}, len(data))
			for k, v := range data {
				out[k] = v
			}
			return processor.NewSuccessResult(cfg.ProcessorName, out), nil
		}), nil
	})
}
