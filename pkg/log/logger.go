package log

import (
	"context"
	"strings"
)

type Logger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Alert(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Notice(ctx context.Context, format string, args ...interface{})
	Critical(ctx context.Context, format string, args ...interface{})
	Emergency(ctx context.Context, format string, args ...interface{})
}

// Level follows syslog severities, lower is more severe.
type Level int

const (
	LevelEmergency Level = iota
	LevelAlert
	LevelCritical
	LevelError
	LevelWarn
	LevelNotice
	LevelInfo
	LevelDebug
)

var levelNames = map[Level]string{
	LevelEmergency: "EMERGENCY",
	LevelAlert:     "ALERT",
	LevelCritical:  "CRITICAL",
	LevelError:     "ERROR",
	LevelWarn:      "WARN",
	LevelNotice:    "NOTICE",
	LevelInfo:      "INFO",
	LevelDebug:     "DEBUG",
}

func (l Level) String() string {
	return levelNames[l]
}

// ParseLevel maps a config value to a Level, defaulting to info.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for lvl, name := range levelNames {
		if name == s {
			return lvl
		}
	}
	return LevelInfo
}

type runIDKey struct{}

// WithRunID tags every log line written with ctx by a fetch run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func NewLogger(logger Logger) (Logger, error) {
	return logger, nil
}
