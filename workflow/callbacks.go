package workflow

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ProgressCallback receives workflow progress in percent (0-100).
type ProgressCallback func(workflowID string, percent float64, message string)

// StatusCallback receives status transitions. extra carries context such as
// the failure reason or processor counts and may be nil.
type StatusCallback func(workflowID string, status WorkflowStatus, extra map[string]any)

// subscribers holds the callback lists. Callbacks run synchronously on the
// goroutine that executes the workflow loop, so a slow subscriber slows the
// workflow. A panicking subscriber is logged and skipped.
type subscribers struct {
	mu       sync.RWMutex
	progress []ProgressCallback
	status   []StatusCallback
	logger   *zap.Logger
}

func (s *subscribers) addProgress(fn ProgressCallback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, fn)
}

func (s *subscribers) addStatus(fn StatusCallback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = append(s.status, fn)
}

func (s *subscribers) notifyProgress(id string, percent float64, message string) {
	s.mu.RLock()
	callbacks := s.progress
	s.mu.RUnlock()
	for i, fn := range callbacks {
		s.safeCall("progress", i, id, func() { fn(id, percent, message) })
	}
}

func (s *subscribers) notifyStatus(id string, status WorkflowStatus, extra map[string]any) {
	s.mu.RLock()
	callbacks := s.status
	s.mu.RUnlock()
	for i, fn := range callbacks {
		s.safeCall("status", i, id, func() { fn(id, status, extra) })
	}
}

func (s *subscribers) safeCall(kind string, index int, id string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked",
				zap.String("kind", kind),
				zap.Int("index", index),
				zap.String("workflow_id", id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	call()
}
