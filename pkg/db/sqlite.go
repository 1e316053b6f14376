package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thep200/gitee-crawler/cfg"
	_ "modernc.org/sqlite"
)

// Sqlite is the local single-file database used when no MySQL server is
// configured for checkpoints.
type Sqlite struct {
	Path string
	db   *sql.DB
}

func NewSqlite(config *cfg.Config) (*Sqlite, error) {
	return &Sqlite{Path: config.Sqlite.Path}, nil
}

// Open creates the parent directory when needed and applies the pragmas
// every connection relies on.
func (s *Sqlite) Open(ctx context.Context) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	if dir := filepath.Dir(s.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer keeps modernc from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	s.db = db
	return db, nil
}

func (s *Sqlite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
