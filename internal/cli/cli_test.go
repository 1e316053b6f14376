package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/paginator"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flag values outlive a single execution
	checkpointOrigin, checkpointCategory, logLevel, configFile = "", "", "", ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2021-05-01", time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"2021-05-01T10:00:00+08:00", time.Date(2021, 5, 1, 2, 0, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDate(%q) err = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "gitee-crawler dev") {
		t.Errorf("output = %q", out)
	}
}

func TestCheckpointShowAndReset(t *testing.T) {
	dir := t.TempDir()
	cpFile := filepath.Join(dir, "checkpoints.yaml")
	configPath := filepath.Join(dir, "mode.yaml")
	config := "fetch:\n  owner: chaoss\n  repository: perceval\ncheckpoint:\n  driver: file\n  file: " + cpFile + "\n"
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	store, _ := checkpoint.NewFileStore(cpFile)
	origin := "https://gitee.com/chaoss/perceval"
	cp := paginator.Checkpoint{Origin: origin, LastUpdatedAt: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), LastSeenIDs: []string{"3"}}
	if err := store.Save(context.Background(), paginator.KindIssue, cp); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "checkpoint", "show", "--config", configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, origin) || !strings.Contains(out, "category: issue") {
		t.Errorf("show output = %q", out)
	}

	// origin defaults to the configured repository
	if _, err := execute(t, "checkpoint", "reset", "--config", configPath, "--category", "issue"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got, _ := store.Load(context.Background(), origin, paginator.KindIssue); got != nil {
		t.Errorf("checkpoint still stored: %+v", got)
	}

	out, err = execute(t, "checkpoint", "show", "--config", configPath)
	if err != nil || !strings.Contains(out, "No checkpoints stored.") {
		t.Errorf("show after reset = %q, %v", out, err)
	}
}

func TestCheckpointResetRejectsUnknownCategory(t *testing.T) {
	if _, err := execute(t, "checkpoint", "reset", "--category", "wiki"); err == nil {
		t.Fatal("expected error")
	}
}
