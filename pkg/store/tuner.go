package store

import (
	"context"
	"fmt"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

// Tuner はテンプレート編集画面の操作（保存、複製、新規作成、削除）を、
// 一覧と選択状態の両方に対してまとめて適用します。
type Tuner struct {
	Templates *TemplateStore
	Selection *Selection
}

// NewTuner は Tuner を初期化します。
func NewTuner(templates *TemplateStore, selection *Selection) *Tuner {
	return &Tuner{Templates: templates, Selection: selection}
}

// SaveEdit は編集内容を保存します。
// デフォルトテンプレートの場合は複製を作り、その複製を選択状態にします。
func (tu *Tuner) SaveEdit(ctx context.Context, id, name, content string) (domain.PromptTemplate, error) {
	current, err := tu.Templates.Get(id)
	if err != nil {
		return domain.PromptTemplate{}, err
	}

	if current.IsDefault() {
		if name == current.Name {
			name = ""
		}
		return tu.Fork(ctx, id, name, content)
	}

	current.Name = name
	current.Content = content
	return tu.Templates.Upsert(ctx, current)
}

// Fork はテンプレートを複製し、複製を選択状態にします。
func (tu *Tuner) Fork(ctx context.Context, id, name, content string) (domain.PromptTemplate, error) {
	copied, err := tu.Templates.Fork(ctx, id, name, content)
	if err != nil {
		return domain.PromptTemplate{}, err
	}
	if err := tu.Selection.Select(ctx, copied.Type, copied.ID); err != nil {
		return copied, err
	}
	return copied, nil
}

// CreateBlank は雛形からカスタムテンプレートを作成し、選択状態にします。
func (tu *Tuner) CreateBlank(ctx context.Context, t domain.TemplateType) (domain.PromptTemplate, error) {
	created, err := tu.Templates.Upsert(ctx, domain.PromptTemplate{
		Name:    prompts.BlankTemplateName,
		Content: prompts.BlankTemplateContent,
		Type:    t,
		Kind:    domain.KindCustom,
	})
	if err != nil {
		return domain.PromptTemplate{}, err
	}
	if err := tu.Selection.Select(ctx, t, created.ID); err != nil {
		return created, err
	}
	return created, nil
}

// Delete はカスタムテンプレートを削除し、選択中だった場合はデフォルトに戻します。
func (tu *Tuner) Delete(ctx context.Context, id string) error {
	tpl, err := tu.Templates.Get(id)
	if err != nil {
		return err
	}
	if err := tu.Templates.Remove(ctx, id); err != nil {
		return err
	}
	if tu.Selection.ActiveID(tpl.Type) == id {
		if err := tu.Selection.Reset(ctx, tpl.Type); err != nil {
			return fmt.Errorf("選択状態のリセットに失敗しました: %w", err)
		}
	}
	return nil
}
