package model

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/gitee-crawler/pkg/db"
	"gorm.io/gorm"
)

// ItemView is the category-independent listing row.
type ItemView struct {
	Category      string    `json:"category"`
	Origin        string    `json:"origin"`
	ItemID        string    `json:"itemId"`
	Number        string    `json:"number,omitempty"`
	Title         string    `json:"title"`
	State         string    `json:"state,omitempty"`
	Author        string    `json:"author,omitempty"`
	ItemUpdatedAt time.Time `json:"itemUpdatedAt"`
}

// Items reads the stored items of every category.
type Items struct {
	Mysql *db.Mysql
}

func NewItems(mysql *db.Mysql) *Items {
	return &Items{Mysql: mysql}
}

func tableFor(category string) (string, error) {
	switch category {
	case "issue":
		return "issues", nil
	case "pull_request":
		return "pull_requests", nil
	case "repository":
		return "repositories", nil
	}
	return "", fmt.Errorf("unknown category %q", category)
}

// List returns one page of items, most recently updated first.
func (it *Items) List(ctx context.Context, category, origin string, offset, limit int) ([]ItemView, int64, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, 0, err
	}
	gdb, err := it.Mysql.Db()
	if err != nil {
		return nil, 0, err
	}

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Table(table)
		if origin != "" {
			q = q.Where("origin = ?", origin)
		}
		return q
	}

	var total int64
	if err := scope(gdb.WithContext(ctx)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	columns := "origin, item_id, number, title, state, author, item_updated_at"
	if category == "repository" {
		columns = "origin, item_id, full_name AS title, item_updated_at"
	}
	var views []ItemView
	err = scope(gdb.WithContext(ctx)).
		Select(columns).
		Order("item_updated_at DESC").
		Offset(offset).Limit(limit).
		Scan(&views).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range views {
		views[i].Category = category
	}
	return views, total, nil
}
