package checkpoint

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

var ErrEmptyOrigin = errors.New("checkpoint has no origin")

// Record is a stored checkpoint together with the category it resumes.
type Record struct {
	Category             paginator.Kind `json:"category" yaml:"category"`
	paginator.Checkpoint `yaml:",inline"`
}

// Store persists one checkpoint per (origin, category).
type Store interface {
	// Load returns nil, nil when nothing is stored for the pair.
	Load(ctx context.Context, origin string, category paginator.Kind) (*paginator.Checkpoint, error)
	Save(ctx context.Context, category paginator.Kind, cp paginator.Checkpoint) error
	Delete(ctx context.Context, origin string, category paginator.Kind) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open builds the store selected by config.Checkpoint.Driver. mysql may be nil
// unless the mysql driver is selected.
func Open(ctx context.Context, config *cfg.Config, logger log.Logger, mysql *db.Mysql) (Store, error) {
	switch config.Checkpoint.Driver {
	case "mysql":
		if mysql == nil {
			return nil, fmt.Errorf("mysql checkpoint store needs a database")
		}
		return NewMysqlStore(config, logger, mysql)
	case "sqlite":
		sqlite, _ := db.NewSqlite(config)
		return NewSqliteStore(ctx, sqlite)
	case "file":
		return NewFileStore(config.Checkpoint.File)
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", config.Checkpoint.Driver)
	}
}

func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return cmp.Or(
			strings.Compare(a.Origin, b.Origin),
			strings.Compare(string(a.Category), string(b.Category)),
		)
	})
}

func checkSave(cp paginator.Checkpoint) error {
	if cp.Origin == "" {
		return ErrEmptyOrigin
	}
	return nil
}
