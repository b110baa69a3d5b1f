package workflow

import (
	"time"

	"github.com/BaSui01/scoreflow/processor"
)

// ExecutionStatus represents the outcome of one processor invocation
type ExecutionStatus string

const (
	// ExecutionStatusCompleted indicates the processor reported success
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the processor reported failure
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// ExecutionRecord records the execution of a single processor
type ExecutionRecord struct {
	Processor string          `json:"processor"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	// Fallback is set when the invocation was triggered by a primary stage.
	Fallback bool `json:"fallback,omitempty"`
	Errors   int  `json:"errors,omitempty"`
	Warnings int  `json:"warnings,omitempty"`
}

// newExecutionRecord builds a record from a finished invocation
func newExecutionRecord(name string, start, end time.Time, res *processor.Result, fallback bool) ExecutionRecord {
	rec := ExecutionRecord{
		Processor: name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Status:    ExecutionStatusFailed,
		Fallback:  fallback,
	}
	if res != nil {
		if res.Success {
			rec.Status = ExecutionStatusCompleted
		}
		rec.Errors = len(res.Errors)
		rec.Warnings = len(res.Warnings)
	}
	return rec
}

// FindRecords returns the records for a processor in execution order
func (s *WorkflowState) FindRecords(name string) []ExecutionRecord {
	var out []ExecutionRecord
	for _, rec := range s.History {
		if rec.Processor == name {
			out = append(out, rec)
		}
	}
	return out
}
