package processor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Environment variables exported to command processors.
const (
	EnvWorkflowID = "SCOREFLOW_WORKFLOW_ID"
	EnvProcessor  = "SCOREFLOW_PROCESSOR"
	EnvParams     = "SCOREFLOW_PARAMS"
)

// commandWaitDelay bounds how long Run waits for orphaned children holding
// the output pipes after the context is done.
const commandWaitDelay = 500 * time.Millisecond

// maxStderrLine is the longest stderr line kept as a warning.
const maxStderrLine = 1024 * 1024

// CommandSpec describes the external command behind a CommandProcessor.
type CommandSpec struct {
	Command []string          `json:"command" yaml:"command"`
	Env     map[string]string `json:"env,omitempty" yaml:"env"`
	Dir     string            `json:"dir,omitempty" yaml:"dir"`
	Timeout time.Duration     `json:"timeout,omitempty" yaml:"timeout"`
}

// CommandProcessor runs an external command once per invocation.
//
// A stdout that parses as a JSON object becomes the result payload; anything
// else is stored under "output". Each non-empty stderr line is a warning.
type CommandProcessor struct {
	meta   Metadata
	spec   CommandSpec
	logger *zap.Logger
}

// NewCommandProcessor 创建命令处理器
func NewCommandProcessor(meta Metadata, spec CommandSpec, logger *zap.Logger) (*CommandProcessor, error) {
	if meta.Name == "" {
		return nil, fmt.Errorf("processor: name is required")
	}
	if len(spec.Command) == 0 || strings.TrimSpace(spec.Command[0]) == "" {
		return nil, fmt.Errorf("processor %s: command is required", meta.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandProcessor{
		meta:   meta.Clone(),
		spec:   spec,
		logger: logger.With(zap.String("component", "command_processor"), zap.String("processor", meta.Name)),
	}, nil
}

func (p *CommandProcessor) Metadata() Metadata {
	return p.meta.Clone()
}

func (p *CommandProcessor) Execute(ctx context.Context, cfg Config) (*Result, error) {
	start := time.Now()
	if p.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.spec.Timeout)
		defer cancel()
	}

	params, err := json.Marshal(cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.spec.Command[0], p.spec.Command[1:]...)
	cmd.Dir = p.spec.Dir
	cmd.WaitDelay = commandWaitDelay
	cmd.Env = append(os.Environ(),
		EnvWorkflowID+"="+cfg.WorkflowID,
		EnvProcessor+"="+p.meta.Name,
		EnvParams+"="+string(params),
	)
	for k, v := range p.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.Debug("running command", zap.Strings("command", p.spec.Command))
	runErr := cmd.Run()

	result := NewSuccessResult(p.meta.Name, parseCommandOutput(stdout.Bytes()))
	scanner := bufio.NewScanner(&stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			result.AddWarning(line)
		}
	}
	if err := scanner.Err(); err != nil {
		result.AddWarning(fmt.Sprintf("stderr truncated: %v", err))
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			result.AddError(fmt.Sprintf("command timed out after %s", p.spec.Timeout))
		case errors.As(runErr, &exitErr):
			result.AddError(fmt.Sprintf("command exited with code %d", exitErr.ExitCode()))
		default:
			result.AddError(fmt.Sprintf("command failed: %v", runErr))
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

func parseCommandOutput(out []byte) map[string]any {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(trimmed, &data); err == nil && data != nil {
		return data
	}
	return map[string]any{"output": string(trimmed)}
}
