package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/scoreflow/processor"
	"github.com/BaSui01/scoreflow/types"
)

// WorkflowStatus 工作流状态
type WorkflowStatus string

const (
	StatusPending   WorkflowStatus = "pending"
	StatusRunning   WorkflowStatus = "running"
	StatusPaused    WorkflowStatus = "paused"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
	StatusCancelled WorkflowStatus = "cancelled"
)

// AllStatuses lists every status in state-machine order.
var AllStatuses = []WorkflowStatus{
	StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled,
}

var allowedTransitions = map[WorkflowStatus][]WorkflowStatus{
	StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCancelled, StatusFailed},
}

// IsTerminal returns true for COMPLETED, FAILED and CANCELLED.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive returns true for RUNNING and PAUSED.
func (s WorkflowStatus) IsActive() bool {
	return s == StatusRunning || s == StatusPaused
}

// CanTransitionTo reports whether the state machine allows s → next.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WorkflowConfig 工作流配置
//
// Params is passed through to processors untouched.
type WorkflowConfig struct {
	ID               string         `json:"id" yaml:"id"`
	Name             string         `json:"name" yaml:"name"`
	Params           map[string]any `json:"params,omitempty" yaml:"params"`
	ProcessorsToRun  []string       `json:"processors_to_run,omitempty" yaml:"processors"`
	ProcessorsToSkip []string       `json:"processors_to_skip,omitempty" yaml:"skip"`
	ContinueOnError  bool           `json:"continue_on_error" yaml:"continue_on_error"`
}

// Clone returns a copy that shares nothing mutable at the top level.
func (c WorkflowConfig) Clone() WorkflowConfig {
	out := c
	if c.Params != nil {
		out.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	out.ProcessorsToRun = append([]string(nil), c.ProcessorsToRun...)
	out.ProcessorsToSkip = append([]string(nil), c.ProcessorsToSkip...)
	return out
}

// withDefaults fills in a generated ID and a fallback name.
func (c WorkflowConfig) withDefaults() WorkflowConfig {
	out := c.Clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Name == "" {
		out.Name = out.ID
	}
	return out
}

// skips reports whether name is listed in ProcessorsToSkip.
func (c WorkflowConfig) skips(name string) bool {
	for _, s := range c.ProcessorsToSkip {
		if s == name {
			return true
		}
	}
	return false
}

// WorkflowState is the engine-owned record of one workflow run. Values
// returned by the engine are snapshots.
type WorkflowState struct {
	ID                  string                       `json:"id"`
	Config              WorkflowConfig               `json:"config"`
	Status              WorkflowStatus               `json:"status"`
	CreatedAt           time.Time                    `json:"created_at"`
	StartedAt           *time.Time                   `json:"started_at,omitempty"`
	EndedAt             *time.Time                   `json:"ended_at,omitempty"`
	Progress            float64                      `json:"progress"`
	ProgressMessage     string                       `json:"progress_message,omitempty"`
	CurrentProcessor    string                       `json:"current_processor,omitempty"`
	CompletedProcessors []string                     `json:"completed_processors"`
	FailedProcessors    []string                     `json:"failed_processors"`
	Results             map[string]*processor.Result `json:"results"`
	History             []ExecutionRecord            `json:"history,omitempty"`
	Errors              []string                     `json:"errors,omitempty"`
	Warnings            []string                     `json:"warnings,omitempty"`
	// FailureCode is the category of the first workflow-level error.
	FailureCode types.ErrorCode `json:"failure_code,omitempty"`
}

func newWorkflowState(cfg WorkflowConfig, now time.Time) *WorkflowState {
	return &WorkflowState{
		ID:                  cfg.ID,
		Config:              cfg,
		Status:              StatusPending,
		CreatedAt:           now,
		CompletedProcessors: []string{},
		FailedProcessors:    []string{},
		Results:             make(map[string]*processor.Result),
	}
}

// Duration returns EndedAt-StartedAt, or zero if either is unset.
func (s *WorkflowState) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// IsCompleted reports whether name finished successfully.
func (s *WorkflowState) IsCompleted(name string) bool {
	return contains(s.CompletedProcessors, name)
}

// IsFailed reports whether name is recorded as failed.
func (s *WorkflowState) IsFailed(name string) bool {
	return contains(s.FailedProcessors, name)
}

// Clone 深拷贝状态快照
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.Config = s.Config.Clone()
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.CompletedProcessors = append([]string{}, s.CompletedProcessors...)
	out.FailedProcessors = append([]string{}, s.FailedProcessors...)
	out.Results = make(map[string]*processor.Result, len(s.Results))
	for k, v := range s.Results {
		out.Results[k] = v.Clone()
	}
	out.History = append([]ExecutionRecord(nil), s.History...)
	out.Errors = append([]string(nil), s.Errors...)
	out.Warnings = append([]string(nil), s.Warnings...)
	return &out
}

// transition moves the state forward. EndedAt is stamped once, on entry to a
// terminal status; StartedAt on the first entry to RUNNING.
func (s *WorkflowState) transition(next WorkflowStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("workflow %s: %s -> %s not allowed", s.ID, s.Status, next))
	}
	s.Status = next
	if next == StatusRunning && s.StartedAt == nil {
		t := now
		s.StartedAt = &t
	}
	if next.IsTerminal() {
		t := now
		s.EndedAt = &t
		s.CurrentProcessor = ""
	}
	return nil
}

func (s *WorkflowState) markCompleted(name string, res *processor.Result) {
	s.FailedProcessors = remove(s.FailedProcessors, name)
	if !contains(s.CompletedProcessors, name) {
		s.CompletedProcessors = append(s.CompletedProcessors, name)
	}
	s.Results[name] = res
}

func (s *WorkflowState) markFailed(name string, res *processor.Result) {
	s.CompletedProcessors = remove(s.CompletedProcessors, name)
	if !contains(s.FailedProcessors, name) {
		s.FailedProcessors = append(s.FailedProcessors, name)
	}
	s.Results[name] = res
}

func (s *WorkflowState) addError(code types.ErrorCode, msg string) {
	s.Errors = append(s.Errors, msg)
	if s.FailureCode == "" {
		s.FailureCode = code
	}
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

func remove(list []string, name string) []string {
	for i, v := range list {
		if v == name {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
