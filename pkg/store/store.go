// Package store はプロンプトテンプレートの一覧と、種別ごとの選択状態を永続化します。
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/kv"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

// KeyTemplates はテンプレート一覧を保存するキーです。
const KeyTemplates = "lora_forger_prompts"

// TemplateStore はテンプレート一覧を所有し、変更のたびに一覧全体を永続化します。
// どのテンプレートが選択中かは扱いません（Selection を参照）。
type TemplateStore struct {
	kv        kv.Store
	mu        sync.RWMutex
	templates []domain.PromptTemplate
	now       func() time.Time
	newID     func() string
}

// Option は TemplateStore の生成オプションです。
type Option func(*TemplateStore)

// WithClock は LastModified に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *TemplateStore) { s.now = now }
}

// WithIDGenerator は新規テンプレートの ID 生成器を差し替えます。
func WithIDGenerator(newID func() string) Option {
	return func(s *TemplateStore) { s.newID = newID }
}

// Open は永続化済みの一覧を読み込みます。
// 初回起動時や読み込めないデータの場合は、組み込みテンプレートを投入します。
func Open(ctx context.Context, kvs kv.Store, opts ...Option) (*TemplateStore, error) {
	if kvs == nil {
		return nil, fmt.Errorf("kv.Store は必須です")
	}
	s := &TemplateStore{
		kv:    kvs,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, ok := s.load(ctx)
	if !ok {
		s.templates = prompts.DefaultTemplates(s.now())
		if err := s.persist(ctx, s.templates); err != nil {
			return nil, err
		}
		slog.Info("組み込みテンプレートを投入しました", "count", len(s.templates))
		return s, nil
	}

	s.templates = ensureDefaults(loaded, s.now())
	if len(s.templates) != len(loaded) {
		if err := s.persist(ctx, s.templates); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load は保存済みの一覧を返します。存在しない、または解釈できない場合は ok=false です。
func (s *TemplateStore) load(ctx context.Context) ([]domain.PromptTemplate, bool) {
	raw, ok, err := s.kv.Get(ctx, KeyTemplates)
	if err != nil {
		slog.Warn("テンプレート一覧の読み込みに失敗したため初期化します", "error", err)
		return nil, false
	}
	if !ok || len(raw) == 0 {
		return nil, false
	}

	var list []domain.PromptTemplate
	if err := json.Unmarshal(raw, &list); err != nil {
		slog.Warn("保存済みテンプレート一覧を解釈できないため初期化します", "error", err)
		return nil, false
	}
	if len(list) == 0 {
		return nil, false
	}
	return list, true
}

// ensureDefaults は種別ごとのデフォルトが欠けていれば先頭に補います。
func ensureDefaults(list []domain.PromptTemplate, now time.Time) []domain.PromptTemplate {
	have := make(map[string]bool, len(list))
	for _, t := range list {
		if t.IsDefault() {
			have[t.ID] = true
		}
	}

	var missing []domain.PromptTemplate
	for _, d := range prompts.DefaultTemplates(now) {
		if !have[d.ID] {
			slog.Warn("欠けていたデフォルトテンプレートを復元します", "id", d.ID)
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return list
	}
	return append(missing, list...)
}

func (s *TemplateStore) persist(ctx context.Context, list []domain.PromptTemplate) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("テンプレート一覧のエンコードに失敗しました: %w", err)
	}
	if err := s.kv.Set(ctx, KeyTemplates, raw); err != nil {
		return fmt.Errorf("テンプレート一覧の保存に失敗しました: %w", err)
	}
	return nil
}

// List は指定種別のテンプレートを登録順に返します。種別が空なら全件を返します。
func (s *TemplateStore) List(t domain.TemplateType) []domain.PromptTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PromptTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		if t == "" || tpl.Type == t {
			out = append(out, tpl)
		}
	}
	return out
}

// Get は ID に一致するテンプレートを返します。
func (s *TemplateStore) Get(id string) (domain.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.templates[i], nil
	}
	return domain.PromptTemplate{}, fmt.Errorf("テンプレート %q: %w", id, domain.ErrNotFound)
}

func (s *TemplateStore) indexOf(id string) int {
	for i, tpl := range s.templates {
		if tpl.ID == id {
			return i
		}
	}
	return -1
}

// Upsert は同じ ID があれば置き換え、無ければ末尾に追加して一覧全体を保存します。
// デフォルトテンプレートは置き換えられません。
func (s *TemplateStore) Upsert(ctx context.Context, tpl domain.PromptTemplate) (domain.PromptTemplate, error) {
	if !tpl.Type.Valid() {
		return domain.PromptTemplate{}, domain.NewValidationError("type", "テンプレート種別は必須です")
	}
	if tpl.IsDefault() {
		return domain.PromptTemplate{}, domain.NewValidationError("kind", "デフォルトテンプレートは新規作成できません")
	}
	if strings.TrimSpace(tpl.Content) == "" {
		return domain.PromptTemplate{}, domain.NewValidationError("content", "テンプレートの内容は必須です")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tpl.ID == "" {
		tpl.ID = s.newID()
	}
	if strings.TrimSpace(tpl.Name) == "" {
		tpl.Name = prompts.BlankTemplateName
	}
	tpl.LastModified = s.now().UnixMilli()

	next := make([]domain.PromptTemplate, len(s.templates), len(s.templates)+1)
	copy(next, s.templates)

	if i := s.indexOf(tpl.ID); i >= 0 {
		existing := s.templates[i]
		if existing.IsDefault() {
			return domain.PromptTemplate{}, &domain.ProtectedEntityError{ID: existing.ID}
		}
		if existing.Type != tpl.Type {
			return domain.PromptTemplate{}, domain.NewValidationError("type", "テンプレートの種別は変更できません")
		}
		next[i] = tpl
	} else {
		next = append(next, tpl)
	}

	if err := s.persist(ctx, next); err != nil {
		return domain.PromptTemplate{}, err
	}
	s.templates = next
	return tpl, nil
}

// Remove はカスタムテンプレートを削除して一覧全体を保存します。
func (s *TemplateStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("テンプレート %q: %w", id, domain.ErrNotFound)
	}
	if s.templates[i].IsDefault() {
		return &domain.ProtectedEntityError{ID: id}
	}

	next := make([]domain.PromptTemplate, 0, len(s.templates)-1)
	next = append(next, s.templates[:i]...)
	next = append(next, s.templates[i+1:]...)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.templates = next
	return nil
}

// Fork は元テンプレートを変更せずに、同じ種別のカスタムテンプレートとして複製します。
// name と content が空の場合は元の値（名前は "Copy of ..."）を使います。
func (s *TemplateStore) Fork(ctx context.Context, id, name, content string) (domain.PromptTemplate, error) {
	src, err := s.Get(id)
	if err != nil {
		return domain.PromptTemplate{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Copy of " + src.Name
	}
	if content == "" {
		content = src.Content
	}
	return s.Upsert(ctx, domain.PromptTemplate{
		ID:          s.newID(),
		Name:        name,
		Description: src.Description,
		Content:     content,
		Type:        src.Type,
		Kind:        domain.KindCustom,
	})
}
