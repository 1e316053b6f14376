package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/gitee"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Repository is one snapshot of the repository counters.
type Repository struct {
	Model
	ItemColumns
	FullName     string `json:"full_name" gorm:"column:full_name;type:varchar(255)"`
	StarCount    int    `json:"star_count" gorm:"column:star_count;default:0"`
	ForkCount    int    `json:"fork_count" gorm:"column:fork_count;default:0"`
	WatchCount   int    `json:"watch_count" gorm:"column:watch_count;default:0"`
	IssueCount   int    `json:"issue_count" gorm:"column:issue_count;default:0"`
	ReleaseCount int    `json:"release_count" gorm:"column:release_count;default:0"`
}

func NewRepository(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Repository, error) {
	return &Repository{Model: newModel(config, logger, mysql)}, nil
}

func (r *Repository) TableName() string {
	return "repositories"
}

func (r *Repository) CreateBatch(ctx context.Context, msgs []ItemMessage) error {
	rows := make([]Repository, 0, len(msgs))
	for _, msg := range msgs {
		var snapshot gitee.Repository
		if err := json.Unmarshal(msg.Payload, &snapshot); err != nil {
			return fmt.Errorf("decode repository snapshot %s: %w", msg.ItemID, err)
		}
		rows = append(rows, Repository{
			ItemColumns:  msg.columns(),
			FullName:     TruncateString(snapshot.FullName, 250),
			StarCount:    snapshot.StargazersCount,
			ForkCount:    snapshot.ForksCount,
			WatchCount:   snapshot.WatchersCount,
			IssueCount:   snapshot.OpenIssuesCount,
			ReleaseCount: len(snapshot.Releases),
		})
	}
	return upsertBatch(ctx, r.Model, rows, []string{"full_name", "star_count", "fork_count", "watch_count", "issue_count", "release_count"})
}
