package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/specado/specado/internal/log"
)

type traceKey struct{}

func withTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceHook(ctx context.Context, _ string) []log.Field {
	id, ok := ctx.Value(traceKey{}).(string)
	if !ok || id == "" {
		return nil
	}

	return []log.Field{log.String("trace_id", id)}
}

func TestHookAppliesFieldsFromContext(t *testing.T) {
	hook := log.HookFunc(traceHook)

	t.Run("with trace id", func(t *testing.T) {
		ctx := withTraceID(context.Background(), "trace-123")
		fields := hook.Apply(ctx, "test message")
		assert.Len(t, fields, 1)
		assert.Equal(t, "trace_id", fields[0].Key)
	})

	t.Run("without trace id", func(t *testing.T) {
		fields := hook.Apply(context.Background(), "test message")
		assert.Len(t, fields, 0)
	})

	t.Run("nil hook", func(t *testing.T) {
		var nilHook log.HookFunc
		assert.Len(t, nilHook.Apply(context.Background(), "x"), 0)
	})
}

func TestSetLoggerAcceptsNil(t *testing.T) {
	log.SetLogger(nil)
	log.Info(context.Background(), "should not panic")
}
