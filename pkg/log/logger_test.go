package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		" error ": LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCslLogger_Threshold(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewCslLoggerWithLevel(&buf, LevelWarn)
	ctx := context.Background()

	l.Debug(ctx, "hidden %d", 1)
	l.Info(ctx, "hidden %d", 2)
	l.Warn(ctx, "shown %d", 3)
	l.Error(ctx, "shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-threshold lines written: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 3") || !strings.Contains(out, "[ERROR] shown 4") {
		t.Errorf("missing lines: %q", out)
	}
}

func TestCslLogger_RunID(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewCslLoggerWithLevel(&buf, LevelInfo)
	l.Info(WithRunID(context.Background(), "abc"), "page %d", 2)
	if !strings.Contains(buf.String(), "[INFO] [run=abc] page 2") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestCslLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewCslLoggerWithLevel(&buf, LevelInfo)
	l.Debug(context.Background(), "before")
	l.SetLevel(LevelDebug)
	l.Debug(context.Background(), "after")
	if strings.Contains(buf.String(), "before") || !strings.Contains(buf.String(), "[DEBUG] after") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
