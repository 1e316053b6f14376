package model

import (
	"context"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

type PullRequest struct {
	Model
	ItemColumns
	Number string `json:"number" gorm:"column:number;type:varchar(64)"`
	Title  string `json:"title" gorm:"column:title;type:varchar(255)"`
	State  string `json:"state" gorm:"column:state;type:varchar(32)"`
	Author string `json:"author" gorm:"column:author;type:varchar(255)"`
}

func NewPullRequest(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*PullRequest, error) {
	return &PullRequest{Model: newModel(config, logger, mysql)}, nil
}

func (p *PullRequest) TableName() string {
	return "pull_requests"
}

func (p *PullRequest) CreateBatch(ctx context.Context, msgs []ItemMessage) error {
	rows := make([]PullRequest, 0, len(msgs))
	for _, msg := range msgs {
		rows = append(rows, PullRequest{
			ItemColumns: msg.columns(),
			Number:      TruncateString(msg.Number, 64),
			Title:       TruncateString(msg.Title, 250),
			State:       TruncateString(msg.State, 32),
			Author:      TruncateString(msg.Author, 250),
		})
	}
	return upsertBatch(ctx, p.Model, rows, []string{"number", "title", "state", "author"})
}
