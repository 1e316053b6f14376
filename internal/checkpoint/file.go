package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/thep200/gitee-crawler/internal/paginator"
	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Checkpoints []Record `yaml:"checkpoints"`
}

// FileStore keeps every checkpoint in one YAML document. Writes replace the
// file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file checkpoint store needs a path")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse checkpoints %s: %w", s.path, err)
	}
	return doc.Checkpoints, nil
}

func (s *FileStore) write(records []Record) error {
	sortRecords(records)
	data, err := yaml.Marshal(fileDocument{Checkpoints: records})
	if err != nil {
		return fmt.Errorf("encode checkpoints: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoints-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoints: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoints: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Load(_ context.Context, origin string, category paginator.Kind) (*paginator.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Origin == origin && r.Category == category {
			cp := r.Checkpoint.Clone()
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *FileStore) Save(_ context.Context, category paginator.Kind, cp paginator.Checkpoint) error {
	if err := checkSave(cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	rec := Record{Category: category, Checkpoint: cp.Clone()}
	rec.LastUpdatedAt = rec.LastUpdatedAt.UTC()
	replaced := false
	for i := range records {
		if records[i].Origin == cp.Origin && records[i].Category == category {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return s.write(records)
}

func (s *FileStore) Delete(_ context.Context, origin string, category paginator.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.Origin == origin && r.Category == category {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(records) {
		return nil
	}
	return s.write(kept)
}

func (s *FileStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

func (s *FileStore) Close() error { return nil }
