package workflow

import "time"

// Statistics summarises the engine's workflows.
type Statistics struct {
	TotalWorkflows       int                    `json:"total_workflows"`
	ActiveWorkflows      int                    `json:"active_workflows"`
	StatusCounts         map[WorkflowStatus]int `json:"status_counts"`
	AvailableProcessors  []string               `json:"available_processors"`
	AverageExecutionTime time.Duration          `json:"average_execution_time"`
}

// GetWorkflowStatistics returns counts per status, the size of the running
// set and the mean duration of COMPLETED workflows.
func (e *Engine) GetWorkflowStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		TotalWorkflows:      len(e.states),
		ActiveWorkflows:     len(e.running),
		StatusCounts:        make(map[WorkflowStatus]int, len(AllStatuses)),
		AvailableProcessors: e.registry.List(),
	}
	for _, s := range AllStatuses {
		stats.StatusCounts[s] = 0
	}

	var total time.Duration
	var completed int
	for _, st := range e.states {
		stats.StatusCounts[st.Status]++
		if st.Status == StatusCompleted {
			total += st.Duration()
			completed++
		}
	}
	if completed > 0 {
		stats.AverageExecutionTime = total / time.Duration(completed)
	}
	return stats
}
