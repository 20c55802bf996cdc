// Package dataset はデータセット項目の一覧と、その状態遷移を管理します。
package dataset

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/domain"
)

// EventType は一覧の変更種別です。
type EventType string

const (
	EventAdded   EventType = "item.added"
	EventUpdated EventType = "item.updated"
	EventRemoved EventType = "item.removed"
)

// Event は項目の変更通知です。
type Event struct {
	Type EventType          `json:"type"`
	Item domain.DatasetItem `json:"item"`
}

// Collection はデータセット項目を登録順に保持します。
// 更新は必ず ID 単位でレコード全体を差し替えます。
type Collection struct {
	mu        sync.RWMutex
	items     []domain.DatasetItem
	previews  PreviewRegistry
	observers []func(Event)
	newID     func() string
}

// NewCollection は Collection を初期化します。previews が nil の場合はメモリ上のレジストリを使います。
func NewCollection(previews PreviewRegistry) *Collection {
	if previews == nil {
		previews = NewMemoryPreviews()
	}
	return &Collection{previews: previews, newID: uuid.NewString}
}

// Subscribe は変更通知の受け取り先を登録します。
func (c *Collection) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Collection) notify(events ...Event) {
	c.mu.RLock()
	observers := append([]func(Event){}, c.observers...)
	c.mu.RUnlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

// AddMany は画像を PENDING の項目として末尾に追加します。
// いずれかのプレビュー発行に失敗した場合は、何も追加しません。
func (c *Collection) AddMany(files []domain.Media) ([]domain.DatasetItem, error) {
	added := make([]domain.DatasetItem, 0, len(files))
	for _, f := range files {
		if len(f.Data) == 0 {
			c.releaseAll(added)
			return nil, domain.NewValidationError("file", fmt.Sprintf("%s が空です", f.Filename))
		}
		id := c.newID()
		handle, err := c.previews.Acquire(id, f)
		if err != nil {
			c.releaseAll(added)
			return nil, fmt.Errorf("プレビューの作成に失敗しました (%s): %w", f.Filename, err)
		}
		added = append(added, domain.DatasetItem{
			ID:                id,
			Media:             f,
			PreviewHandle:     handle,
			SuggestedFilename: asset.CaptionFilename(f.Filename),
			Status:            domain.StatusPending,
		})
	}

	c.mu.Lock()
	c.items = append(c.items, added...)
	c.mu.Unlock()

	events := make([]Event, len(added))
	for i, it := range added {
		events[i] = Event{Type: EventAdded, Item: it}
	}
	c.notify(events...)
	return added, nil
}

func (c *Collection) releaseAll(items []domain.DatasetItem) {
	for _, it := range items {
		if err := c.previews.Release(it.PreviewHandle); err != nil {
			slog.Warn("プレビューの解放に失敗しました", "id", it.ID, "error", err)
		}
	}
}

// Remove は項目を一覧から外し、プレビューを解放します。
func (c *Collection) Remove(id string) error {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("項目 %q: %w", id, domain.ErrNotFound)
	}
	removed := c.items[i]
	next := make([]domain.DatasetItem, 0, len(c.items)-1)
	next = append(next, c.items[:i]...)
	c.items = append(next, c.items[i+1:]...)
	c.mu.Unlock()

	c.notify(Event{Type: EventRemoved, Item: removed})

	if err := c.previews.Release(removed.PreviewHandle); err != nil {
		return fmt.Errorf("プレビューの解放に失敗しました (%s): %w", id, err)
	}
	return nil
}

// UpdatePartial は patch を適用した項目で一覧内のレコードを差し替えます。ID は変わりません。
func (c *Collection) UpdatePartial(id string, p Patch) (domain.DatasetItem, error) {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return domain.DatasetItem{}, fmt.Errorf("項目 %q: %w", id, domain.ErrNotFound)
	}
	next, err := p.apply(c.items[i])
	if err != nil {
		c.mu.Unlock()
		return domain.DatasetItem{}, err
	}
	c.items[i] = next
	c.mu.Unlock()

	c.notify(Event{Type: EventUpdated, Item: next})
	return next, nil
}

// SelectPending は PENDING または ERROR の項目を登録順に返します。
func (c *Collection) SelectPending() []domain.DatasetItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.DatasetItem, 0, len(c.items))
	for _, it := range c.items {
		if it.IsSelectable() {
			out = append(out, it)
		}
	}
	return out
}

// Get は ID に一致する項目を返します。
func (c *Collection) Get(id string) (domain.DatasetItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], nil
	}
	return domain.DatasetItem{}, fmt.Errorf("項目 %q: %w", id, domain.ErrNotFound)
}

// List は全項目を登録順に返します。
func (c *Collection) List() []domain.DatasetItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.DatasetItem(nil), c.items...)
}

// Len は項目数を返します。
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Counts は状態ごとの項目数を返します。
func (c *Collection) Counts() map[domain.ItemStatus]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.ItemStatus]int, 4)
	for _, it := range c.items {
		out[it.Status]++
	}
	return out
}

func (c *Collection) indexOf(id string) int {
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
