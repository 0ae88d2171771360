// Package log provides structured, context-aware logging for specado.
//
// It wraps go.uber.org/zap so that call sites never depend on zap directly;
// a host embedding specado can swap the underlying logger (or attach trace
// fields via a Hook) without touching call sites.
package log

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed logging field, mirroring zap.Field so call sites never
// import zap directly.
type Field = zapcore.Field

// String builds a string field.
func String(key, value string) Field { return zap.String(key, value) }

// Int builds an integer field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 builds an int64 field.
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Duration builds a duration field.
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Bool builds a boolean field.
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Cause builds an error field under the conventional "error" key.
func Cause(err error) Field { return zap.Error(err) }

// Any builds a field from an arbitrary value, for occasional use where a
// typed constructor doesn't exist.
func Any(key string, value any) Field { return zap.Any(key, value) }

// Hook contributes extra fields derived from a context, e.g. a trace ID
// threaded through by a host server. Hooks run on every log call.
type Hook interface {
	Apply(ctx context.Context, msg string) []Field
}

// HookFunc adapts a function to a Hook.
type HookFunc func(ctx context.Context, msg string) []Field

// Apply implements Hook.
func (f HookFunc) Apply(ctx context.Context, msg string) []Field {
	if f == nil {
		return nil
	}

	return f(ctx, msg)
}

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
	hooks  []Hook
)

// SetLogger replaces the underlying zap logger. Safe for concurrent use.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	if l == nil {
		l = zap.NewNop()
	}

	logger = l
}

// AddHook registers a Hook whose fields are appended to every subsequent
// log call. Safe for concurrent use.
func AddHook(h Hook) {
	mu.Lock()
	defer mu.Unlock()

	hooks = append(hooks, h)
}

// NewDevelopment configures specado's logger as a human-readable console
// logger, the way a CLI entry point configures logging in development.
func NewDevelopment() error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return err
	}

	SetLogger(l)

	return nil
}

// NewProduction configures specado's logger as a JSON logger suitable for
// ingestion by a log pipeline.
func NewProduction() error {
	l, err := zap.NewProduction()
	if err != nil {
		return err
	}

	SetLogger(l)

	return nil
}

func current() (*zap.Logger, []Hook) {
	mu.RLock()
	defer mu.RUnlock()

	return logger, hooks
}

func fieldsFor(ctx context.Context, msg string, extra []Field) []Field {
	_, hs := current()
	if len(hs) == 0 {
		return extra
	}

	fields := make([]Field, 0, len(extra)+len(hs))
	for _, h := range hs {
		fields = append(fields, h.Apply(ctx, msg)...)
	}

	fields = append(fields, extra...)

	return fields
}

// Debug logs at debug level, the granularity the translation pipeline uses
// for stage entry/exit and per-stage timing.
func Debug(ctx context.Context, msg string, fields ...Field) {
	l, _ := current()
	l.Debug(msg, fieldsFor(ctx, msg, fields)...)
}

// Warn logs at warn level, used for recoverable anomalies that do not
// belong in the lossiness channel (e.g. a malformed Hook).
func Warn(ctx context.Context, msg string, fields ...Field) {
	l, _ := current()
	l.Warn(msg, fieldsFor(ctx, msg, fields)...)
}

// Error logs at error level.
func Error(ctx context.Context, msg string, fields ...Field) {
	l, _ := current()
	l.Error(msg, fieldsFor(ctx, msg, fields)...)
}

// Info logs at info level.
func Info(ctx context.Context, msg string, fields ...Field) {
	l, _ := current()
	l.Info(msg, fieldsFor(ctx, msg, fields)...)
}
