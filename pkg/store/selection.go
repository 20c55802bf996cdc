package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/kv"
)

// 種別ごとの「最後に選択したテンプレート」を保存するキーです。
const (
	KeySelectedDataset   = "selected_dataset_prompt_id"
	KeySelectedInference = "selected_inference_prompt_id"
)

func selectionKey(t domain.TemplateType) string {
	if t == domain.TemplateTypeInference {
		return KeySelectedInference
	}
	return KeySelectedDataset
}

// Selection は種別ごとに選択中のテンプレート ID を永続化します。
type Selection struct {
	kv        kv.Store
	templates *TemplateStore
	mu        sync.RWMutex
	ids       map[domain.TemplateType]string
}

// NewSelection は保存済みの選択状態を読み込みます。未保存の種別はデフォルト ID になります。
func NewSelection(ctx context.Context, kvs kv.Store, templates *TemplateStore) (*Selection, error) {
	if kvs == nil || templates == nil {
		return nil, fmt.Errorf("kv.Store と TemplateStore は必須です")
	}
	sel := &Selection{
		kv:        kvs,
		templates: templates,
		ids:       make(map[domain.TemplateType]string, 2),
	}
	for _, t := range domain.TemplateTypes() {
		sel.ids[t] = t.DefaultID()
		raw, ok, err := kvs.Get(ctx, selectionKey(t))
		if err != nil {
			return nil, fmt.Errorf("%s の選択状態の読み込みに失敗しました: %w", t, err)
		}
		if ok && len(raw) > 0 {
			sel.ids[t] = string(raw)
		}
	}
	return sel, nil
}

// ActiveID は保存されている選択 ID をそのまま返します。
func (s *Selection) ActiveID(t domain.TemplateType) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[t]
}

// Active は選択中のテンプレートを返します。
// 選択が削除済みや種別違いの場合はその種別のデフォルトに戻ります。
func (s *Selection) Active(t domain.TemplateType) domain.PromptTemplate {
	if tpl, err := s.templates.Get(s.ActiveID(t)); err == nil && tpl.Type == t {
		return tpl
	}
	tpl, err := s.templates.Get(t.DefaultID())
	if err == nil {
		return tpl
	}
	// ensureDefaults により到達しない想定です。
	return s.templates.List(t)[0]
}

// Select は種別の選択テンプレートを変更して保存します。
func (s *Selection) Select(ctx context.Context, t domain.TemplateType, id string) error {
	if !t.Valid() {
		return domain.NewValidationError("type", "テンプレート種別は必須です")
	}
	tpl, err := s.templates.Get(id)
	if err != nil {
		return err
	}
	if tpl.Type != t {
		return domain.NewValidationError("id", fmt.Sprintf("テンプレート %q は %s 用ではありません", id, t))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, selectionKey(t), []byte(id)); err != nil {
		return fmt.Errorf("選択状態の保存に失敗しました: %w", err)
	}
	s.ids[t] = id
	return nil
}

// Reset は種別の選択をデフォルトに戻します。
func (s *Selection) Reset(ctx context.Context, t domain.TemplateType) error {
	return s.Select(ctx, t, t.DefaultID())
}
