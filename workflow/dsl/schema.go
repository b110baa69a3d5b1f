package dsl

// PipelineDSL 流水线 DSL 顶层结构
type PipelineDSL struct {
	// Version DSL 版本
	Version string `yaml:"version" json:"version"`
	// Name 流水线名称
	Name string `yaml:"name" json:"name"`
	// Description 流水线描述
	Description string `yaml:"description" json:"description"`

	// Variables 全局变量定义
	Variables map[string]VariableDef `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Processors 处理器定义，键为处理器名称
	Processors map[string]ProcessorDef `yaml:"processors" json:"processors"`

	// Workflows 工作流定义
	Workflows []WorkflowDef `yaml:"workflows,omitempty" json:"workflows,omitempty"`

	// Fallback 覆盖进程配置中的降级策略
	Fallback *FallbackDef `yaml:"fallback,omitempty" json:"fallback,omitempty"`

	// Metadata 元数据
	Metadata map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// VariableDef 变量定义
type VariableDef struct {
	Type        string      `yaml:"type" json:"type"`                                   // string, int, float, bool
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`         // 默认值
	Description string      `yaml:"description,omitempty" json:"description,omitempty"` // 描述
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`       // 是否必填
}

// ProcessorDef 处理器定义
type ProcessorDef struct {
	Kind                string   `yaml:"kind,omitempty" json:"kind,omitempty"` // command（默认）, static, 或通过 RegisterFactory 注册的类型
	Description         string   `yaml:"description,omitempty" json:"description,omitempty"`
	Version             string   `yaml:"version,omitempty" json:"version,omitempty"`
	Type                string   `yaml:"type,omitempty" json:"type,omitempty"` // fetcher, filter, enricher, classifier, scorer, reporter, generic
	DependsOn           []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	RequiresNetwork     bool     `yaml:"requires_network,omitempty" json:"requires_network,omitempty"`
	RequiresCredentials bool     `yaml:"requires_credentials,omitempty" json:"requires_credentials,omitempty"`
	Parallelizable      bool     `yaml:"parallelizable,omitempty" json:"parallelizable,omitempty"`
	EstimatedDuration   string   `yaml:"estimated_duration,omitempty" json:"estimated_duration,omitempty"` // Go duration，如 "30s"

	// command 类型
	Command []string          `yaml:"command,omitempty" json:"command,omitempty"` // 支持 ${variable} 插值
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`         // 支持 ${variable} 插值
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty"`
	Timeout string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Config 其他类型的自由配置
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// WorkflowDef 工作流定义
type WorkflowDef struct {
	ID              string                 `yaml:"id" json:"id"`
	Name            string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Params          map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"` // 字符串值支持 ${variable} 插值
	Processors      []string               `yaml:"processors,omitempty" json:"processors,omitempty"`
	Skip            []string               `yaml:"skip,omitempty" json:"skip,omitempty"`
	ContinueOnError bool                   `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
}

// FallbackDef 降级策略定义
type FallbackDef struct {
	Primary    string   `yaml:"primary" json:"primary"`
	CountKey   string   `yaml:"count_key,omitempty" json:"count_key,omitempty"`
	Processors []string `yaml:"processors" json:"processors"`
}
