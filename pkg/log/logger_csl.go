package log

import (
	"context"
	"io"
	"log"
	"os"
	"sync/atomic"
)

type CslLogger struct {
	out   *log.Logger
	level atomic.Int32
}

func NewCslLogger() (*CslLogger, error) {
	return NewCslLoggerWithLevel(os.Stderr, LevelInfo)
}

func NewCslLoggerWithLevel(w io.Writer, level Level) (*CslLogger, error) {
	l := &CslLogger{out: log.New(w, "", log.LstdFlags)}
	l.level.Store(int32(level))
	return l, nil
}

// SetLevel changes the threshold, safe to call while logging.
func (l *CslLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *CslLogger) write(ctx context.Context, level Level, format string, args ...interface{}) {
	if int32(level) > l.level.Load() {
		return
	}
	prefix := "[" + level.String() + "] "
	if runID := RunID(ctx); runID != "" {
		prefix += "[run=" + runID + "] "
	}
	l.out.Printf(prefix+format, args...)
}

func (l *CslLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelInfo, format, args...)
}

func (l *CslLogger) Alert(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelAlert, format, args...)
}

func (l *CslLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelError, format, args...)
}

func (l *CslLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelWarn, format, args...)
}

func (l *CslLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelDebug, format, args...)
}

func (l *CslLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelCritical, format, args...)
}

func (l *CslLogger) Emergency(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelEmergency, format, args...)
}

func (l *CslLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, LevelNotice, format, args...)
}

// NopLogger discards everything, used by tests.
type NopLogger struct{}

func (NopLogger) Info(context.Context, string, ...interface{})      {}
func (NopLogger) Alert(context.Context, string, ...interface{})     {}
func (NopLogger) Error(context.Context, string, ...interface{})     {}
func (NopLogger) Warn(context.Context, string, ...interface{})      {}
func (NopLogger) Debug(context.Context, string, ...interface{})     {}
func (NopLogger) Notice(context.Context, string, ...interface{})    {}
func (NopLogger) Critical(context.Context, string, ...interface{})  {}
func (NopLogger) Emergency(context.Context, string, ...interface{}) {}
