// Package kv はテンプレートや選択状態を保存するための文字列キーの永続ストアを提供します。
package kv

import (
	"context"
	"fmt"
	"strings"
)

// バックエンド名
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store は文字列キーで値を読み書きする永続化の契約です。
type Store interface {
	// Get はキーに対応する値を返します。存在しない場合 ok は false です。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set はキーに値を書き込みます（既存値は上書き）。
	Set(ctx context.Context, key string, value []byte) error
	// Close は保持しているリソースを解放します。
	Close() error
}

// Open はバックエンド名とパスから Store を生成します。
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("不明なストアバックエンドです: %q", backend)
	}
}
