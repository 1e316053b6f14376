package model

import (
	"context"
	"fmt"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var itemConflict = []clause.Column{{Name: "origin"}, {Name: "item_id"}}

type Issue struct {
	Model
	ItemColumns
	Number string `json:"number" gorm:"column:number;type:varchar(64)"`
	Title  string `json:"title" gorm:"column:title;type:varchar(255)"`
	State  string `json:"state" gorm:"column:state;type:varchar(32)"`
	Author string `json:"author" gorm:"column:author;type:varchar(255)"`
}

func NewIssue(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Issue, error) {
	return &Issue{Model: newModel(config, logger, mysql)}, nil
}

func (i *Issue) TableName() string {
	return "issues"
}

func (i *Issue) CreateBatch(ctx context.Context, msgs []ItemMessage) error {
	rows := make([]Issue, 0, len(msgs))
	for _, msg := range msgs {
		rows = append(rows, Issue{
			ItemColumns: msg.columns(),
			Number:      TruncateString(msg.Number, 64),
			Title:       TruncateString(msg.Title, 250),
			State:       TruncateString(msg.State, 32),
			Author:      TruncateString(msg.Author, 250),
		})
	}
	return upsertBatch(ctx, i.Model, rows, []string{"number", "title", "state", "author"})
}

// upsertBatch writes rows in one transaction, newer versions replace older.
func upsertBatch[T any](ctx context.Context, m Model, rows []T, columns []string) error {
	if len(rows) == 0 {
		return nil
	}
	gdb, err := m.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	updates := append([]string{"item_updated_at", "run_id", "payload", "updated_at"}, columns...)
	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   itemConflict,
			DoUpdates: clause.AssignmentColumns(updates),
		}).CreateInBatches(rows, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch upsert items: %w", result.Error)
		}
		return nil
	})
}
