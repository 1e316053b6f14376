package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/db"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	origin          TEXT NOT NULL,
	category        TEXT NOT NULL,
	last_updated_at TEXT NOT NULL,
	last_seen_ids   TEXT NOT NULL DEFAULT '[]',
	saved_at        TEXT NOT NULL,
	PRIMARY KEY (origin, category)
)`

type SqliteStore struct {
	sqlite *db.Sqlite
	db     *sql.DB
	now    func() time.Time
}

func NewSqliteStore(ctx context.Context, sqlite *db.Sqlite) (*SqliteStore, error) {
	conn, err := sqlite.Open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &SqliteStore{sqlite: sqlite, db: conn, now: time.Now}, nil
}

func (s *SqliteStore) Load(ctx context.Context, origin string, category paginator.Kind) (*paginator.Checkpoint, error) {
	var updatedAt, seen string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_updated_at, last_seen_ids FROM checkpoints WHERE origin = ? AND category = ?`,
		origin, string(category),
	).Scan(&updatedAt, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s/%s: %w", origin, category, err)
	}
	cp, err := decodeRow(origin, updatedAt, seen)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *SqliteStore) Save(ctx context.Context, category paginator.Kind, cp paginator.Checkpoint) error {
	if err := checkSave(cp); err != nil {
		return err
	}
	seen, err := encodeIDs(cp.LastSeenIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO checkpoints (origin, category, last_updated_at, last_seen_ids, saved_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (origin, category) DO UPDATE SET
	last_updated_at = excluded.last_updated_at,
	last_seen_ids = excluded.last_seen_ids,
	saved_at = excluded.saved_at`,
		cp.Origin, string(category),
		cp.LastUpdatedAt.UTC().Format(time.RFC3339Nano), seen,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", cp.Origin, category, err)
	}
	return nil
}

func (s *SqliteStore) Delete(ctx context.Context, origin string, category paginator.Kind) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE origin = ? AND category = ?`, origin, string(category))
	if err != nil {
		return fmt.Errorf("delete checkpoint %s/%s: %w", origin, category, err)
	}
	return nil
}

func (s *SqliteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin, category, last_updated_at, last_seen_ids FROM checkpoints ORDER BY origin, category`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var origin, category, updatedAt, seen string
		if err := rows.Scan(&origin, &category, &updatedAt, &seen); err != nil {
			return nil, err
		}
		cp, err := decodeRow(origin, updatedAt, seen)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Category: paginator.Kind(category), Checkpoint: cp})
	}
	return records, rows.Err()
}

func (s *SqliteStore) Close() error {
	return s.sqlite.Close()
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode seen ids: %w", err)
	}
	return string(raw), nil
}

func decodeRow(origin, updatedAt, seen string) (paginator.Checkpoint, error) {
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return paginator.Checkpoint{}, fmt.Errorf("checkpoint %s: bad timestamp %q: %w", origin, updatedAt, err)
	}
	return decodeCheckpoint(origin, ts, seen)
}

func decodeCheckpoint(origin string, updatedAt time.Time, seen string) (paginator.Checkpoint, error) {
	var ids []string
	if seen != "" {
		if err := json.Unmarshal([]byte(seen), &ids); err != nil {
			return paginator.Checkpoint{}, fmt.Errorf("checkpoint %s: bad seen ids: %w", origin, err)
		}
	}
	return paginator.Checkpoint{Origin: origin, LastUpdatedAt: updatedAt.UTC(), LastSeenIDs: ids}, nil
}
