package file

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/ddialog/pkg/domain"
)

const ext = ".json"

// Store implements ports.ProgressStore using the local filesystem.
// Each conversation is a JSON file in BasePath; ids are path-escaped.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".ddialog/progress".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".ddialog", "progress")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(conversationID string) string {
	return filepath.Join(s.BasePath, url.PathEscape(conversationID)+ext)
}

// Save persists the progress atomically: write a temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, conversationID string, progress *domain.Progress) error {
	if conversationID == "" {
		return fmt.Errorf("conversationID cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure progress directory: %w", err)
	}

	data, err := domain.EncodeProgress(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	destPath := s.path(conversationID)
	// os.Rename does not replace an existing file on Windows.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing progress file: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the progress file for a conversation.
func (s *Store) Load(ctx context.Context, conversationID string) (*domain.Progress, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversationID cannot be empty")
	}

	data, err := os.ReadFile(s.path(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	p, err := domain.DecodeProgress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return p, nil
}

// Delete removes the progress file.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversationID cannot be empty")
	}
	err := os.Remove(s.path(conversationID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete progress file: %w", err)
	}
	return nil
}

// List returns all stored conversation ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext || strings.HasPrefix(name, "tmp-") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
