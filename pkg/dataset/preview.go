package dataset

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

// PreviewRegistry は表示用プレビューのハンドルを発行・解放する契約です。
type PreviewRegistry interface {
	Acquire(itemID string, media domain.Media) (string, error)
	Release(handle string) error
}

// MemoryPreviews はプレビュー用の画像をメモリ上に保持するレジストリです。
type MemoryPreviews struct {
	mu      sync.RWMutex
	entries map[string]domain.Media
}

func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{entries: make(map[string]domain.Media)}
}

// Acquire は新しいハンドルを発行します。
func (p *MemoryPreviews) Acquire(_ string, media domain.Media) (string, error) {
	handle := uuid.NewString()
	p.mu.Lock()
	p.entries[handle] = media
	p.mu.Unlock()
	return handle, nil
}

// Release はハンドルを解放します。解放済みや未知のハンドルは ErrNotFound です。
func (p *MemoryPreviews) Release(handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[handle]; !ok {
		return fmt.Errorf("プレビュー %q: %w", handle, domain.ErrNotFound)
	}
	delete(p.entries, handle)
	return nil
}

// Lookup はハンドルに対応する画像を返します。
func (p *MemoryPreviews) Lookup(handle string) (domain.Media, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.entries[handle]
	return m, ok
}

// Len は保持中のプレビュー数を返します。
func (p *MemoryPreviews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
