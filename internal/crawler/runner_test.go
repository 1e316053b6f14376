package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/log"
)

const testOrigin = "https://gitee.com/chaoss/perceval"

var base = time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)

// fakeBackend serves items through a real paginator so checkpoints behave
// as in production.
type fakeBackend struct {
	items    []paginator.Item
	pageSize int
	// fail decides per source call whether the page fails
	fail  func(call int, req paginator.PageRequest) error
	calls int
	stats paginator.Stats
}

func (b *fakeBackend) Fetch(ctx context.Context, _ paginator.Kind, window paginator.FetchWindow, cp *paginator.Checkpoint, commit paginator.CommitFunc) iter.Seq2[paginator.Item, error] {
	return func(yield func(paginator.Item, error) bool) {
		p, _ := paginator.New(paginator.PageSourceFunc(b.page), paginator.Options{PageSize: b.pageSize})
		defer func() { b.stats = p.Stats() }()
		for it, err := range p.Fetch(ctx, window, cp, commit) {
			if !yield(it, err) {
				return
			}
		}
	}
}

func (b *fakeBackend) Stats() paginator.Stats { return b.stats }

func (b *fakeBackend) page(_ context.Context, req paginator.PageRequest) (*paginator.Page, error) {
	b.calls++
	if b.fail != nil {
		if err := b.fail(b.calls, req); err != nil {
			return nil, err
		}
	}
	var filtered []paginator.Item
	for _, it := range b.items {
		if !it.UpdatedAt.Before(req.Since) {
			filtered = append(filtered, it)
		}
	}
	start := 0
	if req.Cursor != "" {
		start, _ = strconv.Atoi(req.Cursor)
	}
	end := min(start+req.PageSize, len(filtered))
	page := &paginator.Page{Items: filtered[start:end]}
	if end < len(filtered) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

type fakeSink struct {
	writes  [][]model.ItemMessage
	failOn  int
	written int
}

func (s *fakeSink) Write(_ context.Context, _ paginator.Kind, msgs []model.ItemMessage) error {
	s.written++
	if s.failOn > 0 && s.written == s.failOn {
		return errors.New("sink unavailable")
	}
	s.writes = append(s.writes, msgs)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) ids() []string {
	var ids []string
	for _, w := range s.writes {
		for _, m := range w {
			ids = append(ids, m.ItemID)
		}
	}
	return ids
}

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) RefreshAccessToken(context.Context) error {
	f.calls++
	return nil
}

func issueItems(minutes ...int) []paginator.Item {
	items := make([]paginator.Item, 0, len(minutes))
	for i, m := range minutes {
		id := strconv.Itoa(i + 1)
		items = append(items, paginator.Item{
			ID:        id,
			UpdatedAt: base.Add(time.Duration(m) * time.Minute),
			Payload:   &gitee.Issue{ID: int64(i + 1), Number: "I" + id, Title: "issue " + id},
		})
	}
	return items
}

type harness struct {
	runner  *Runner
	backend *fakeBackend
	sink    *fakeSink
	store   checkpoint.Store
	sleeps  []time.Duration
}

func newHarness(t *testing.T, items []paginator.Item, pageSize int) *harness {
	t.Helper()
	ml, _ := cfg.NewMockLoader()
	config, _ := ml.Load()
	config.Fetch.MaxRetries = 3
	config.Fetch.SleepTime = 2

	store, err := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "checkpoints.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		backend: &fakeBackend{items: items, pageSize: pageSize},
		sink:    &fakeSink{},
		store:   store,
	}
	runner, err := NewRunner(log.NopLogger{}, config, testOrigin, h.backend, store, h.sink)
	if err != nil {
		t.Fatal(err)
	}
	runner.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	n := 0
	runner.newRunID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	h.runner = runner
	return h
}

func assertIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestRunner_RunWritesEveryBatchAndCheckpoints(t *testing.T) {
	h := newHarness(t, issueItems(1, 2, 3, 3, 5), 2)
	ctx := context.Background()

	res, err := h.runner.Run(ctx, paginator.KindIssue, h.runner.Window(time.Time{}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, h.sink.ids(), "1", "2", "3", "4", "5")
	// 1, 2, then the tie group 3 and 4, then 5
	if len(h.sink.writes) != 4 {
		t.Errorf("writes = %d, want one per committed batch", len(h.sink.writes))
	}
	if res.Items != 5 || res.Attempts != 1 || res.RunID != "run-1" {
		t.Errorf("result = %+v", res)
	}
	if h.sink.writes[0][0].RunID != "run-1" || h.sink.writes[0][0].Number != "I1" {
		t.Errorf("message = %+v", h.sink.writes[0][0])
	}

	cp, _ := h.store.Load(ctx, testOrigin, paginator.KindIssue)
	if cp == nil || !cp.LastUpdatedAt.Equal(base.Add(5*time.Minute)) {
		t.Fatalf("checkpoint = %+v", cp)
	}

	// nothing new on the second run
	res, err = h.runner.Run(ctx, paginator.KindIssue, h.runner.Window(time.Time{}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items != 0 || len(h.sink.writes) != 4 {
		t.Errorf("second run wrote %d items", res.Items)
	}
}

func TestRunner_RateLimitResumesWithoutDuplicates(t *testing.T) {
	h := newHarness(t, issueItems(1, 2, 2, 2, 4, 6), 2)
	h.backend.fail = func(call int, req paginator.PageRequest) error {
		if call == 2 {
			return &gitee.RateLimitError{StatusCode: 429, RetryAfter: 30 * time.Second}
		}
		return nil
	}

	res, err := h.runner.Run(context.Background(), paginator.KindIssue, h.runner.Window(time.Time{}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, h.sink.ids(), "1", "2", "3", "4", "5", "6")
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 30*time.Second {
		t.Errorf("sleeps = %v, want [30s]", h.sleeps)
	}
}

func TestRunner_ErrorPolicy(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		skip         bool
		wantErr      bool
		wantAttempts int
		wantSleeps   int
	}{
		{"authentication aborts", &gitee.AuthenticationError{StatusCode: 401}, false, true, 1, 0},
		{"client error aborts", &gitee.StatusError{StatusCode: 422}, false, true, 1, 0},
		{"server error retries until budget", &gitee.StatusError{StatusCode: 502}, false, true, 4, 3},
		{"malformed aborts", &gitee.MalformedResponseError{Err: errors.New("bad json")}, false, true, 1, 0},
		{"malformed skipped", &gitee.MalformedResponseError{Err: errors.New("bad json")}, true, false, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, issueItems(1, 2, 3), 2)
			h.runner.Config.Fetch.SkipMalformed = tt.skip
			h.backend.fail = func(call int, _ paginator.PageRequest) error {
				if call == 1 {
					return nil
				}
				return tt.err
			}
			res, err := h.runner.Run(context.Background(), paginator.KindIssue, h.runner.Window(time.Time{}, nil))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, tt.err) {
				t.Errorf("err = %v does not wrap %v", err, tt.err)
			}
			if res.Attempts != tt.wantAttempts || len(h.sleeps) != tt.wantSleeps {
				t.Errorf("attempts = %d sleeps = %v", res.Attempts, h.sleeps)
			}
			if tt.skip && res.Skipped == nil {
				t.Error("skipped error not recorded")
			}
			// item 1 is released by the first page and kept in every case
			cp, _ := h.store.Load(context.Background(), testOrigin, paginator.KindIssue)
			if cp == nil || !cp.LastUpdatedAt.Equal(base.Add(time.Minute)) {
				t.Errorf("checkpoint = %+v", cp)
			}
		})
	}
}

func TestRunner_SinkFailureKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, issueItems(1, 2, 3, 4), 2)
	h.sink.failOn = 2

	_, err := h.runner.Run(context.Background(), paginator.KindIssue, h.runner.Window(time.Time{}, nil))
	if err == nil {
		t.Fatal("expected sink error")
	}
	cp, _ := h.store.Load(context.Background(), testOrigin, paginator.KindIssue)
	if cp == nil || !cp.LastUpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("checkpoint = %+v, want the first batch only", cp)
	}

	// the next run picks up the unwritten batch
	h.sink.failOn = 0
	if _, err := h.runner.Run(context.Background(), paginator.KindIssue, h.runner.Window(time.Time{}, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, h.sink.ids(), "1", "2", "3", "4")
}

func TestRunner_RefreshesTokenOnce(t *testing.T) {
	h := newHarness(t, issueItems(1), 2)
	h.runner.Config.GiteeApi.RefreshToken = true
	refresher := &fakeRefresher{}
	h.runner.Refresher = refresher
	h.backend.fail = func(call int, _ paginator.PageRequest) error {
		if call == 1 {
			return &gitee.AuthenticationError{StatusCode: 401}
		}
		return nil
	}

	res, err := h.runner.Run(context.Background(), paginator.KindIssue, h.runner.Window(time.Time{}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refresher.calls != 1 || res.Items != 1 {
		t.Errorf("refresh calls = %d, items = %d", refresher.calls, res.Items)
	}
}

func TestRunner_UntilBound(t *testing.T) {
	h := newHarness(t, issueItems(1, 2, 3, 4), 3)
	until := base.Add(3 * time.Minute)
	if _, err := h.runner.Run(context.Background(), paginator.KindIssue, h.runner.Window(base, &until)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, h.sink.ids(), "1", "2")
}

func TestRunner_RunAllStopsOnAuthentication(t *testing.T) {
	h := newHarness(t, issueItems(1), 2)
	h.backend.fail = func(int, paginator.PageRequest) error {
		return &gitee.AuthenticationError{StatusCode: 401}
	}
	results, err := h.runner.RunAll(context.Background(), []paginator.Kind{paginator.KindIssue, paginator.KindPullRequest}, h.runner.Window(time.Time{}, nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want the first category only", len(results))
	}
}

func TestParseCategories(t *testing.T) {
	all, err := ParseCategories(nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("all = %v, %v", all, err)
	}
	if _, err := ParseCategories([]string{"issue", "wiki"}); err == nil {
		t.Error("expected error for unknown category")
	}
}
