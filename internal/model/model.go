package model

import (
	"time"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
)

type Model struct {
	Config    *cfg.Config `gorm:"-" json:"-"`
	Logger    log.Logger  `gorm:"-" json:"-"`
	Mysql     *db.Mysql   `gorm:"-" json:"-"`
	ID        uint        `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ItemColumns are shared by every fetched-item table. (origin, item_id) is
// unique, a newer version of an item overwrites the stored one.
type ItemColumns struct {
	Origin        string    `json:"origin" gorm:"column:origin;type:varchar(255);not null;uniqueIndex:idx_origin_item,priority:1"`
	ItemID        string    `json:"item_id" gorm:"column:item_id;type:varchar(64);not null;uniqueIndex:idx_origin_item,priority:2"`
	ItemUpdatedAt time.Time `json:"item_updated_at" gorm:"column:item_updated_at;not null;index"`
	RunID         string    `json:"run_id" gorm:"column:run_id;type:varchar(36)"`
	Payload       string    `json:"payload" gorm:"column:payload;type:longtext"`
}

func newModel(config *cfg.Config, logger log.Logger, mysql *db.Mysql) Model {
	return Model{
		Config: config,
		Logger: logger,
		Mysql:  mysql,
	}
}

// All returns one instance of every table, for migrations.
func All(config *cfg.Config, logger log.Logger, mysql *db.Mysql) []interface{} {
	issueMd, _ := NewIssue(config, logger, mysql)
	pullMd, _ := NewPullRequest(config, logger, mysql)
	repoMd, _ := NewRepository(config, logger, mysql)
	checkpointMd, _ := NewCheckpoint(config, logger, mysql)
	return []interface{}{issueMd, pullMd, repoMd, checkpointMd}
}
