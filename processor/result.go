package processor

import (
	"fmt"
	"math"
	"time"
)

// Result is produced exactly once per processor invocation.
type Result struct {
	Success   bool           `json:"success"`
	Processor string         `json:"processor"`
	Data      map[string]any `json:"data,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// NewSuccessResult 创建成功结果
func NewSuccessResult(name string, data map[string]any) *Result {
	if data == nil {
		data = make(map[string]any)
	}
	return &Result{Success: true, Processor: name, Data: data}
}

// NewFailureResult 创建失败结果
func NewFailureResult(name string, format string, args ...any) *Result {
	return &Result{
		Success:   false,
		Processor: name,
		Data:      make(map[string]any),
		Errors:    []string{fmt.Sprintf(format, args...)},
	}
}

// AddError appends an error and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Success = false
}

// AddWarning appends a warning without changing Success.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Clone copies the slices and the top level of Data.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Data != nil {
		out.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = v
		}
	}
	out.Errors = append([]string(nil), r.Errors...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}

// Count reads an integer counter from Data. JSON-decoded numbers arrive as
// float64, YAML and Go callers usually use int. Fractional values round up so
// any positive amount stays positive; unsigned values clamp at MaxInt64.
func (r *Result) Count(key string) (int64, bool) {
	if r == nil || r.Data == nil {
		return 0, false
	}
	switch v := r.Data[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return clampUint(uint64(v)), true
	case uint32:
		return int64(v), true
	case uint64:
		return clampUint(v), true
	case float32:
		return ceilFloat(float64(v))
	case float64:
		return ceilFloat(v)
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func clampUint(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func ceilFloat(v float64) (int64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, false
	case v >= math.MaxInt64:
		return math.MaxInt64, true
	case v <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(math.Ceil(v)), true
}
