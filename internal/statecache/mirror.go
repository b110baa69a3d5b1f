// Package statecache mirrors workflow snapshots into Redis.
// This package is internal and should not be imported by external projects.
package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/scoreflow/config"
	"github.com/BaSui01/scoreflow/workflow"
)

// ErrNotFound 快照不存在或已过期
var ErrNotFound = errors.New("workflow snapshot not found")

// WriteRecorder receives the outcome of every snapshot write.
type WriteRecorder interface {
	RecordMirrorWrite(ok bool)
}

// =============================================================================
// 💾 状态镜像
// =============================================================================

// Mirror 将工作流状态快照写入 Redis
//
// 键布局：
//
//	<prefix>workflow:<id>        JSON 快照，带 TTL
//	<prefix>status:<status>      该状态下的工作流 ID 集合
type Mirror struct {
	redis    *redis.Client
	prefix   string
	ttl      time.Duration
	timeout  time.Duration
	recorder WriteRecorder
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Option 镜像选项
type Option func(*Mirror)

// WithRecorder 设置写入结果记录器
func WithRecorder(r WriteRecorder) Option {
	return func(m *Mirror) { m.recorder = r }
}

// WithWriteTimeout 设置订阅回调中单次写入的超时
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Mirror) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewMirror 创建状态镜像并检查连接
func NewMirror(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger, opts ...Option) (*Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Mirror{
		redis:   client,
		prefix:  cfg.KeyPrefix,
		ttl:     cfg.TTL,
		timeout: 2 * time.Second,
		logger:  logger.With(zap.String("component", "statecache")),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info("state mirror initialized",
		zap.String("addr", cfg.Addr),
		zap.String("prefix", cfg.KeyPrefix),
		zap.Duration("ttl", cfg.TTL),
	)
	return m, nil
}

func (m *Mirror) workflowKey(id string) string {
	return m.prefix + "workflow:" + id
}

func (m *Mirror) statusKey(status workflow.WorkflowStatus) string {
	return m.prefix + "status:" + string(status)
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Save 写入快照并把 ID 移到当前状态的索引集合
func (m *Mirror) Save(ctx context.Context, st *workflow.WorkflowState) (err error) {
	defer func() {
		if m.recorder != nil {
			m.recorder.RecordMirrorWrite(err == nil)
		}
	}()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("state mirror is closed")
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow snapshot: %w", err)
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.workflowKey(st.ID), data, m.ttl)
		for _, s := range workflow.AllStatuses {
			if s != st.Status {
				pipe.SRem(ctx, m.statusKey(s), st.ID)
			}
		}
		pipe.SAdd(ctx, m.statusKey(st.Status), st.ID)
		return nil
	})
	if err != nil {
		m.logger.Error("snapshot write failed", zap.String("workflow_id", st.ID), zap.Error(err))
		return fmt.Errorf("snapshot write failed: %w", err)
	}
	return nil
}

// Get 读取快照
func (m *Mirror) Get(ctx context.Context, id string) (*workflow.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("state mirror is closed")
	}

	val, err := m.redis.Get(ctx, m.workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot read failed: %w", err)
	}
	return decode(val)
}

// ListByStatus 返回某状态下仍未过期的快照。过期快照的 ID 会从索引中清除。
func (m *Mirror) ListByStatus(ctx context.Context, status workflow.WorkflowStatus) ([]*workflow.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("state mirror is closed")
	}

	ids, err := m.redis.SMembers(ctx, m.statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("status index read failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = m.workflowKey(id)
	}
	vals, err := m.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot read failed: %w", err)
	}

	var (
		out   []*workflow.WorkflowState
		stale []any
	)
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		st, err := decode([]byte(raw))
		if err != nil {
			m.logger.Warn("skipping undecodable snapshot", zap.String("workflow_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, st)
	}
	if len(stale) > 0 {
		if err := m.redis.SRem(ctx, m.statusKey(status), stale...).Err(); err != nil {
			m.logger.Debug("stale index cleanup failed", zap.Error(err))
		}
	}
	return out, nil
}

// Delete 删除快照及其索引项
func (m *Mirror) Delete(ctx context.Context, id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("state mirror is closed")
	}

	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.workflowKey(id))
		for _, s := range workflow.AllStatuses {
			pipe.SRem(ctx, m.statusKey(s), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Mirror) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("state mirror is closed")
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭镜像
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing state mirror")
	return m.redis.Close()
}

// =============================================================================
// 🔔 引擎订阅
// =============================================================================

// Attach 注册状态回调，每次状态变化时写入最新快照。
// 写入失败只记录日志，不影响工作流执行。
func (m *Mirror) Attach(engine *workflow.Engine) {
	engine.AddStatusCallback(func(id string, _ workflow.WorkflowStatus, _ map[string]any) {
		st, ok := engine.GetWorkflowState(id)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.Save(ctx, st); err != nil {
			m.logger.Warn("mirror update dropped", zap.String("workflow_id", id), zap.Error(err))
		}
	})
}

func decode(data []byte) (*workflow.WorkflowState, error) {
	var st workflow.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow snapshot: %w", err)
	}
	return &st, nil
}
