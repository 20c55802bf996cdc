package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// FileStore は全キーを1つの JSON ファイルに保存する Store です。
// 書き込みのたびにファイル全体を一時ファイル経由で置き換えます。
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]string
}

// NewFileStore は path の JSON ファイルを読み込んで FileStore を初期化します。
// ファイルが無い場合は空の状態から始め、壊れている場合も空として扱います。
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ストアファイルのパスは必須です")
	}
	fsStore := &FileStore{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fsStore, nil
	case err != nil:
		return nil, fmt.Errorf("ストアファイルの読み込みに失敗しました: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fsStore.data); err != nil {
			slog.Warn("ストアファイルが壊れているため空として扱います", "path", path, "error", err)
			fsStore.data = make(map[string]string)
		}
	}
	return fsStore, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	s.data[key] = string(value)
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("ストアのエンコードに失敗しました: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ストアディレクトリの作成に失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".kv-*.json")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("ストアファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
