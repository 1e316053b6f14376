package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/backend"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/internal/limiter"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

func FactorySink(sink string, logger log.Logger, config *cfg.Config, mysql *db.Mysql, categories []paginator.Kind) (Sink, error) {
	switch sink {
	case "mysql":
		if err := mysql.Migrate(model.All(config, logger, mysql)...); err != nil {
			return nil, fmt.Errorf("migrate item tables: %w", err)
		}
		return NewMysqlSink(config, logger, mysql)
	case "kafka":
		return NewKafkaSink(config, logger, categories)
	default:
		return nil, fmt.Errorf("[ERROR] Unsupported sink: %s", sink)
	}
}

// ParseCategories kiểm tra tên category, danh sách rỗng nghĩa là lấy tất cả
func ParseCategories(names []string) ([]paginator.Kind, error) {
	if len(names) == 0 {
		return []paginator.Kind{paginator.KindIssue, paginator.KindPullRequest, paginator.KindRepository}, nil
	}
	kinds := make([]paginator.Kind, 0, len(names))
	for _, name := range names {
		kind, err := paginator.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Components là các thành phần một lượt fetch mở ra, Close để giải phóng
type Components struct {
	Runner     *Runner
	Backend    *backend.Gitee
	Store      checkpoint.Store
	Sink       Sink
	Categories []paginator.Kind
}

// Build khởi tạo runner cho config.Fetch.Owner/Repository
func Build(ctx context.Context, config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Components, error) {
	categories, err := ParseCategories(config.Fetch.Categories)
	if err != nil {
		return nil, err
	}

	rateLimiter := limiter.NewRateLimiter(
		config.GiteeApi.RequestsPerSecond,
		time.Duration(config.GiteeApi.ThrottleDelay)*time.Millisecond,
	)
	caller := gitee.NewCaller(logger, config, config.Fetch.Owner, config.Fetch.Repository, gitee.WithRateLimiter(rateLimiter))
	giteeBackend, err := backend.NewGitee(logger, caller, backend.Options{
		SiteUrl:         config.GiteeApi.SiteUrl,
		PerPage:         config.Fetch.PerPage,
		ExcludeUserData: config.Fetch.ExcludeUserData,
	})
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.Open(ctx, config, logger, mysql)
	if err != nil {
		return nil, err
	}
	sink, err := FactorySink(config.Fetch.Sink, logger, config, mysql, categories)
	if err != nil {
		store.Close()
		return nil, err
	}

	runner, err := NewRunner(logger, config, giteeBackend.Origin, giteeBackend, store, sink)
	if err != nil {
		store.Close()
		sink.Close()
		return nil, err
	}
	runner.Refresher = caller

	return &Components{
		Runner:     runner,
		Backend:    giteeBackend,
		Store:      store,
		Sink:       sink,
		Categories: categories,
	}, nil
}

func (c *Components) Close() error {
	return errors.Join(c.Sink.Close(), c.Store.Close())
}
