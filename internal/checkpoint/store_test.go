package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

const origin = "https://gitee.com/chaoss/perceval"

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	file, err := NewFileStore(filepath.Join(dir, "state", "checkpoints.yaml"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	sqlite, err := NewSqliteStore(ctx, &db.Sqlite{Path: filepath.Join(dir, "checkpoints.db")})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{"file": file, "sqlite": sqlite}
}

func TestStore_Conformance(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2021, 5, 2, 10, 0, 0, 0, time.FixedZone("CST", 8*3600))

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			cp, err := store.Load(ctx, origin, paginator.KindIssue)
			if err != nil || cp != nil {
				t.Fatalf("Load(missing) = %v, %v; want nil, nil", cp, err)
			}

			first := paginator.Checkpoint{Origin: origin, LastUpdatedAt: ts, LastSeenIDs: []string{"1", "2"}}
			if err := store.Save(ctx, paginator.KindIssue, first); err != nil {
				t.Fatalf("save: %v", err)
			}
			second := paginator.Checkpoint{Origin: origin, LastUpdatedAt: ts.Add(time.Hour), LastSeenIDs: []string{"7"}}
			if err := store.Save(ctx, paginator.KindIssue, second); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Save(ctx, paginator.KindPullRequest, first); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.Load(ctx, origin, paginator.KindIssue)
			if err != nil || got == nil {
				t.Fatalf("load: %v, %v", got, err)
			}
			if !got.LastUpdatedAt.Equal(second.LastUpdatedAt) || !slices.Equal(got.LastSeenIDs, second.LastSeenIDs) {
				t.Errorf("load = %+v, want %+v", got, second)
			}

			// categories of one origin are independent
			pulls, _ := store.Load(ctx, origin, paginator.KindPullRequest)
			if pulls == nil || !slices.Equal(pulls.LastSeenIDs, []string{"1", "2"}) {
				t.Errorf("pull checkpoint = %+v", pulls)
			}

			records, err := store.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(records) != 2 || records[0].Category != paginator.KindIssue || records[1].Category != paginator.KindPullRequest {
				t.Fatalf("records = %+v", records)
			}

			if err := store.Delete(ctx, origin, paginator.KindIssue); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if cp, _ := store.Load(ctx, origin, paginator.KindIssue); cp != nil {
				t.Errorf("deleted checkpoint still loads: %+v", cp)
			}
			if err := store.Delete(ctx, origin, paginator.KindRepository); err != nil {
				t.Errorf("delete missing: %v", err)
			}
		})
	}
}

func TestStore_RejectsEmptyOrigin(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Save(context.Background(), paginator.KindIssue, paginator.Checkpoint{})
			if !errors.Is(err, ErrEmptyOrigin) {
				t.Fatalf("err = %v, want ErrEmptyOrigin", err)
			}
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.yaml")
	s1, _ := NewFileStore(path)
	cp := paginator.Checkpoint{Origin: origin, LastUpdatedAt: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), LastSeenIDs: []string{"9"}}
	if err := s1.Save(ctx, paginator.KindRepository, cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "last_seen_ids") || !strings.Contains(string(data), "category: repository") {
		t.Errorf("unexpected document:\n%s", data)
	}

	s2, _ := NewFileStore(path)
	got, err := s2.Load(ctx, origin, paginator.KindRepository)
	if err != nil || got == nil || !got.LastUpdatedAt.Equal(cp.LastUpdatedAt) {
		t.Fatalf("reopen load = %+v, %v", got, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.yaml")
	if err := os.WriteFile(path, []byte("checkpoints: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFileStore(path)
	if _, err := s.Load(context.Background(), origin, paginator.KindIssue); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpen(t *testing.T) {
	ml, _ := cfg.NewMockLoader()
	config, _ := ml.Load()
	dir := t.TempDir()
	ctx := context.Background()

	config.Checkpoint.Driver = "file"
	config.Checkpoint.File = filepath.Join(dir, "cp.yaml")
	s, err := Open(ctx, config, log.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("store = %T, want *FileStore", s)
	}

	config.Checkpoint.Driver = "sqlite"
	config.Sqlite.Path = filepath.Join(dir, "cp.db")
	s, err = Open(ctx, config, log.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s.Close()

	config.Checkpoint.Driver = "mysql"
	if _, err := Open(ctx, config, log.NopLogger{}, nil); err == nil {
		t.Error("mysql without database should fail")
	}

	config.Checkpoint.Driver = "etcd"
	if _, err := Open(ctx, config, log.NopLogger{}, nil); err == nil {
		t.Error("unknown driver should fail")
	}
}
