package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
	"github.com/thep200/gitee-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MysqlStore keeps checkpoints in the checkpoints table next to the items.
type MysqlStore struct {
	Logger log.Logger
	Mysql  *db.Mysql
	md     *model.Checkpoint
}

func NewMysqlStore(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*MysqlStore, error) {
	md, _ := model.NewCheckpoint(config, logger, mysql)
	if err := mysql.Migrate(md); err != nil {
		return nil, fmt.Errorf("migrate checkpoints: %w", err)
	}
	return &MysqlStore{Logger: logger, Mysql: mysql, md: md}, nil
}

func (s *MysqlStore) Load(ctx context.Context, origin string, category paginator.Kind) (*paginator.Checkpoint, error) {
	gdb, err := s.Mysql.Db()
	if err != nil {
		return nil, err
	}
	var row model.Checkpoint
	err = gdb.WithContext(ctx).
		Where("origin = ? AND category = ?", origin, string(category)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s/%s: %w", origin, category, err)
	}
	cp, err := decodeCheckpoint(row.Origin, row.LastUpdatedAt, row.LastSeenIDs)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MysqlStore) Save(ctx context.Context, category paginator.Kind, cp paginator.Checkpoint) error {
	if err := checkSave(cp); err != nil {
		return err
	}
	seen, err := encodeIDs(cp.LastSeenIDs)
	if err != nil {
		return err
	}
	gdb, err := s.Mysql.Db()
	if err != nil {
		return err
	}

	row := model.Checkpoint{
		Origin:        cp.Origin,
		Category:      string(category),
		LastUpdatedAt: cp.LastUpdatedAt.UTC(),
		LastSeenIDs:   seen,
	}
	result := gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "origin"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated_at", "last_seen_ids", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", cp.Origin, category, result.Error)
	}
	return nil
}

func (s *MysqlStore) Delete(ctx context.Context, origin string, category paginator.Kind) error {
	gdb, err := s.Mysql.Db()
	if err != nil {
		return err
	}
	result := gdb.WithContext(ctx).
		Where("origin = ? AND category = ?", origin, string(category)).
		Delete(&model.Checkpoint{})
	if result.Error != nil {
		return fmt.Errorf("delete checkpoint %s/%s: %w", origin, category, result.Error)
	}
	return nil
}

func (s *MysqlStore) List(ctx context.Context) ([]Record, error) {
	gdb, err := s.Mysql.Db()
	if err != nil {
		return nil, err
	}
	var rows []model.Checkpoint
	if err := gdb.WithContext(ctx).Order("origin, category").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		cp, err := decodeCheckpoint(row.Origin, row.LastUpdatedAt, row.LastSeenIDs)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Category: paginator.Kind(row.Category), Checkpoint: cp})
	}
	return records, nil
}

// Close leaves the shared connection to its owner.
func (s *MysqlStore) Close() error { return nil }
