package model

import (
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Checkpoint is the stored resume point of one (origin, category) stream.
type Checkpoint struct {
	Model
	Origin        string    `json:"origin" gorm:"column:origin;type:varchar(255);not null;uniqueIndex:idx_origin_category,priority:1"`
	Category      string    `json:"category" gorm:"column:category;type:varchar(32);not null;uniqueIndex:idx_origin_category,priority:2"`
	LastUpdatedAt time.Time `json:"last_updated_at" gorm:"column:last_updated_at;not null"`
	// JSON array of ids
	LastSeenIDs string `json:"last_seen_ids" gorm:"column:last_seen_ids;type:text"`
}

func NewCheckpoint(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Checkpoint, error) {
	return &Checkpoint{Model: newModel(config, logger, mysql)}, nil
}

func (c *Checkpoint) TableName() string {
	return "checkpoints"
}
