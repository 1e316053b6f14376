// Package crawler điều khiển các lượt fetch: lấy từng category từ backend,
// đẩy từng batch sang sink và chỉ lưu checkpoint khi sink đã ghi xong batch đó.
// Lượt bị rate limit hoặc lỗi tạm thời được chạy lại từ checkpoint đã lưu.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// DefaultSince dùng khi lượt chạy không có mốc bắt đầu
var DefaultSince = time.Unix(0, 0).UTC()

type Backend interface {
	Fetch(ctx context.Context, category paginator.Kind, window paginator.FetchWindow, cp *paginator.Checkpoint, commit paginator.CommitFunc) iter.Seq2[paginator.Item, error]
	Stats() paginator.Stats
}

type Refresher interface {
	RefreshAccessToken(ctx context.Context) error
}

// Result tóm tắt kết quả của một category
type Result struct {
	RunID      string
	Category   paginator.Kind
	Items      int
	Attempts   int
	Checkpoint *paginator.Checkpoint
	Stats      paginator.Stats
	// Skipped được gán khi dừng ở một trang lỗi định dạng và
	// Fetch.SkipMalformed đang bật
	Skipped error
}

type Runner struct {
	Logger    log.Logger
	Config    *cfg.Config
	Origin    string
	Backend   Backend
	Store     checkpoint.Store
	Sink      Sink
	Refresher Refresher

	sleep    func(ctx context.Context, d time.Duration) error
	newRunID func() string
}

func NewRunner(logger log.Logger, config *cfg.Config, origin string, backend Backend, store checkpoint.Store, sink Sink) (*Runner, error) {
	if origin == "" || backend == nil || store == nil || sink == nil {
		return nil, fmt.Errorf("runner needs an origin, a backend, a checkpoint store and a sink")
	}
	return &Runner{
		Logger:   logger,
		Config:   config,
		Origin:   origin,
		Backend:  backend,
		Store:    store,
		Sink:     sink,
		sleep:    sleepContext,
		newRunID: uuid.NewString,
	}, nil
}

// Window tạo fetch window cho origin của runner. since bằng 0 nghĩa là lấy từ đầu.
func (r *Runner) Window(since time.Time, until *time.Time) paginator.FetchWindow {
	if since.IsZero() {
		since = DefaultSince
	}
	return paginator.FetchWindow{Origin: r.Origin, Since: since, Until: until}
}

// RunAll chạy lần lượt từng category. Lỗi xác thực sẽ dừng các category còn lại.
func (r *Runner) RunAll(ctx context.Context, categories []paginator.Kind, window paginator.FetchWindow) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, category := range categories {
		res, err := r.Run(ctx, category, window)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			var auth *gitee.AuthenticationError
			if errors.As(err, &auth) || ctx.Err() != nil {
				break
			}
		}
	}
	return results, errors.Join(errs...)
}

// Run fetch một category tới khi hết dữ liệu, tiếp tục từ checkpoint đã lưu
func (r *Runner) Run(ctx context.Context, category paginator.Kind, window paginator.FetchWindow) (*Result, error) {
	res := &Result{RunID: r.newRunID(), Category: category}
	ctx = log.WithRunID(ctx, res.RunID)
	startTime := time.Now()
	r.Logger.Info(ctx, "Fetching %s of %s from %s", category, r.Origin, window)

	maxRetries := r.Config.Fetch.MaxRetries
	retries := 0
	refreshed := false
	for {
		res.Attempts++
		before := res.Items
		err := r.runOnce(ctx, category, window, res)
		res.Stats = r.Backend.Stats()
		if err == nil {
			r.logResult(ctx, res, startTime)
			return res, nil
		}

		var (
			auth *gitee.AuthenticationError
			bad  *gitee.MalformedResponseError
		)
		switch {
		case errors.As(err, &bad) && r.Config.Fetch.SkipMalformed:
			r.Logger.Warn(ctx, "Stopping %s fetch on malformed page, progress kept: %v", category, err)
			res.Skipped = err
			r.logResult(ctx, res, startTime)
			return res, nil
		case errors.As(err, &auth) && r.Refresher != nil && r.Config.GiteeApi.RefreshToken && !refreshed:
			refreshed = true
			if rerr := r.Refresher.RefreshAccessToken(ctx); rerr != nil {
				return res, fmt.Errorf("%w (token refresh: %v)", err, rerr)
			}
			continue
		}

		delay, ok := r.retryDelay(ctx, err)
		if !ok {
			r.Logger.Error(ctx, "Fetching %s of %s failed: %v", category, r.Origin, err)
			return res, err
		}
		// có tiến triển kể từ lần lỗi trước thì reset số lần retry
		if res.Items > before {
			retries = 0
		}
		retries++
		if retries > maxRetries {
			r.Logger.Error(ctx, "Giving up on %s after %d retries: %v", category, maxRetries, err)
			return res, err
		}
		r.Logger.Warn(ctx, "Retry %d/%d of %s in %v: %v", retries, maxRetries, category, delay, err)
		if err := r.sleep(ctx, delay); err != nil {
			return res, err
		}
	}
}

// runOnce chạy một lượt từ checkpoint đã lưu. Paginator commit checkpoint của
// batch trước khi trả về các item, nên checkpoint được giữ lại tới lần commit
// tiếp theo (hoặc cuối lượt) khi sink đã ghi xong batch.
func (r *Runner) runOnce(ctx context.Context, category paginator.Kind, window paginator.FetchWindow, res *Result) error {
	cp, err := r.Store.Load(ctx, r.Origin, category)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp != nil {
		r.Logger.Info(ctx, "Resuming %s from %s (%d ids at boundary)", category, cp.LastUpdatedAt.Format(time.RFC3339), len(cp.LastSeenIDs))
	}

	var (
		pending *paginator.Checkpoint
		buffer  []model.ItemMessage
		broken  bool
	)
	flush := func(ctx context.Context) error {
		if len(buffer) > 0 {
			if err := r.Sink.Write(ctx, category, buffer); err != nil {
				broken = true
				return fmt.Errorf("write %d %s items: %w", len(buffer), category, err)
			}
			res.Items += len(buffer)
			buffer = nil
		}
		if pending != nil {
			if err := r.Store.Save(ctx, category, *pending); err != nil {
				broken = true
				return fmt.Errorf("save checkpoint: %w", err)
			}
			res.Checkpoint = pending
			pending = nil
		}
		return nil
	}
	commit := func(ctx context.Context, next paginator.Checkpoint) error {
		if err := flush(ctx); err != nil {
			return err
		}
		pending = &next
		return nil
	}

	var fetchErr error
	for item, err := range r.Backend.Fetch(ctx, category, window, cp, commit) {
		if err != nil {
			fetchErr = err
			break
		}
		msg, err := model.NewItemMessage(log.RunID(ctx), r.Origin, item)
		if err != nil {
			// checkpoint đang giữ đã bao gồm item này, bỏ cả batch
			fetchErr = err
			broken = true
			break
		}
		buffer = append(buffer, msg)
	}

	if !broken {
		// lượt bị hủy vẫn giữ lại các batch đã nhận
		if err := flush(context.WithoutCancel(ctx)); err != nil {
			return errors.Join(fetchErr, err)
		}
	}
	return fetchErr
}

func (r *Runner) retryDelay(ctx context.Context, err error) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	sleepTime := time.Duration(r.Config.Fetch.SleepTime) * time.Second

	var (
		rl *gitee.RateLimitError
		se *gitee.StatusError
		ue *url.Error
	)
	switch {
	case errors.As(err, &rl):
		return max(rl.RetryAfter, time.Second), true
	case errors.As(err, &se):
		return sleepTime, se.Temporary()
	case errors.As(err, &ue), errors.Is(err, io.ErrUnexpectedEOF):
		return sleepTime, true
	}
	return 0, false
}

func (r *Runner) logResult(ctx context.Context, res *Result, startTime time.Time) {
	r.Logger.Info(ctx, "==== %s of %s ====", res.Category, r.Origin)
	r.Logger.Info(ctx, "Duration: %v, attempts: %d", time.Since(startTime).Round(time.Millisecond), res.Attempts)
	r.Logger.Info(ctx, "Items written: %d, pages: %d, skipped seen: %d, skipped stale: %d",
		res.Items, res.Stats.Pages, res.Stats.SkippedSeen, res.Stats.SkippedStale)
	if res.Checkpoint != nil {
		r.Logger.Info(ctx, "Checkpoint at %s", res.Checkpoint.LastUpdatedAt.Format(time.RFC3339))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
