package ctxkeys

import (
	"context"

	"github.com/google/uuid"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	runIDKey   contextKey = "run_id"
	eggKey     contextKey = "egg"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// NewRun 为一次迁移运行生成 RunID 并写入 context
func NewRun(ctx context.Context) (context.Context, string) {
	runID := uuid.NewString()
	return WithRunID(ctx, runID), runID
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithEgg 设置当前处理的 egg 名称
func WithEgg(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, eggKey, name)
}

// Egg 获取当前处理的 egg 名称
func Egg(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(eggKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
