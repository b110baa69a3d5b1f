package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/scoreflow/config"
	"github.com/BaSui01/scoreflow/types"
	"github.com/BaSui01/scoreflow/workflow"
)

// WorkflowService is the part of the engine the ops endpoint reads and steers.
type WorkflowService interface {
	GetWorkflowStatistics() workflow.Statistics
	ListWorkflows(statuses ...workflow.WorkflowStatus) []*workflow.WorkflowState
	GetWorkflowState(id string) (*workflow.WorkflowState, bool)
	PauseWorkflow(id string) bool
	ResumeWorkflow(id string) bool
	CancelWorkflow(id string) bool
}

// HealthCheck is an optional dependency probe reported by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Response 统一响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// 🎯 路由
// =============================================================================

// Handlers 运维端点处理器
type Handlers struct {
	service WorkflowService
	metrics http.Handler
	checks  []HealthCheck
	logger  *zap.Logger
}

// NewHandlers 创建处理器。metrics 通常为 promhttp.HandlerFor 的结果，为 nil 时不挂载 /metrics。
func NewHandlers(service WorkflowService, metrics http.Handler, logger *zap.Logger, checks ...HealthCheck) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		service: service,
		metrics: metrics,
		checks:  checks,
		logger:  logger.With(zap.String("component", "ops_handlers")),
	}
}

// Routes 返回路由表
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /workflows", h.handleList)
	mux.HandleFunc("GET /workflows/{id}", h.handleGet)
	mux.HandleFunc("POST /workflows/{id}/{action}", h.handleAction)
	return mux
}

// Handler 返回带中间件的完整处理链。recorder 为 nil 时不记录 HTTP 指标，
// RateLimitRPS 为 0 时不限流。
func (h *Handlers) Handler(ctx context.Context, cfg config.ServerConfig, recorder HTTPRecorder) http.Handler {
	mws := []Middleware{Recovery(h.logger), OTelTracing(), RequestLogger(h.logger)}
	if recorder != nil {
		mws = append(mws, Metrics(recorder))
	}
	if cfg.RateLimitRPS > 0 {
		mws = append(mws, RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, h.logger))
	}
	return Chain(h.Routes(), mws...)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			checks[c.Name] = err.Error()
			healthy = false
			continue
		}
		checks[c.Name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, Response{
		Success:   healthy,
		Data:      map[string]any{"status": status, "checks": checks},
		Timestamp: time.Now(),
	})
}

func (h *Handlers) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, h.service.GetWorkflowStatistics())
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []workflow.WorkflowStatus
	for _, s := range r.URL.Query()["status"] {
		status := workflow.WorkflowStatus(s)
		if !isKnownStatus(status) {
			writeError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown workflow status: "+s)
			return
		}
		statuses = append(statuses, status)
	}
	writeSuccess(w, h.service.ListWorkflows(statuses...))
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := h.service.GetWorkflowState(id)
	if !ok {
		writeError(w, http.StatusNotFound, string(types.ErrWorkflowNotFound), "workflow not found: "+id)
		return
	}
	writeSuccess(w, st)
}

func (h *Handlers) handleAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	var apply func(string) bool
	switch action {
	case "pause":
		apply = h.service.PauseWorkflow
	case "resume":
		apply = h.service.ResumeWorkflow
	case "cancel":
		apply = h.service.CancelWorkflow
	default:
		writeError(w, http.StatusNotFound, "UNKNOWN_ACTION", "unknown action: "+action)
		return
	}

	if _, ok := h.service.GetWorkflowState(id); !ok {
		writeError(w, http.StatusNotFound, string(types.ErrWorkflowNotFound), "workflow not found: "+id)
		return
	}
	if !apply(id) {
		st, _ := h.service.GetWorkflowState(id)
		writeError(w, http.StatusConflict, string(types.ErrInvalidTransition),
			action+" not applicable to workflow in status "+string(st.Status))
		return
	}

	h.logger.Info("workflow action applied", zap.String("workflow_id", id), zap.String("action", action))
	st, _ := h.service.GetWorkflowState(id)
	writeSuccess(w, st)
}

func isKnownStatus(s workflow.WorkflowStatus) bool {
	for _, known := range workflow.AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// =============================================================================
// 🔧 响应辅助函数
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now()})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}
