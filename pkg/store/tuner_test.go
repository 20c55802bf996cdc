package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/kv"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

func newTuner(t *testing.T, kvs kv.Store) *Tuner {
	t.Helper()
	s := openStore(t, kvs)
	sel, err := NewSelection(context.Background(), kvs, s)
	require.NoError(t, err)
	return NewTuner(s, sel)
}

func TestSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("未保存ならデフォルトIDなのだ", func(t *testing.T) {
		tu := newTuner(t, kv.NewMemoryStore())
		assert.Equal(t, domain.DefaultDatasetTemplateID, tu.Selection.ActiveID(domain.TemplateTypeDataset))
		assert.Equal(t, domain.DefaultInferenceTemplateID, tu.Selection.Active(domain.TemplateTypeInference).ID)
	})

	t.Run("選択は保存されて再読み込みされるのだ", func(t *testing.T) {
		kvs := kv.NewMemoryStore()
		tu := newTuner(t, kvs)
		created, err := tu.CreateBlank(ctx, domain.TemplateTypeInference)
		require.NoError(t, err)

		reloaded := newTuner(t, kvs)
		assert.Equal(t, created.ID, reloaded.Selection.ActiveID(domain.TemplateTypeInference))
	})

	t.Run("種別違いの選択は拒否されるのだ", func(t *testing.T) {
		tu := newTuner(t, kv.NewMemoryStore())
		err := tu.Selection.Select(ctx, domain.TemplateTypeDataset, domain.DefaultInferenceTemplateID)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("古い選択はデフォルトにフォールバックするのだ", func(t *testing.T) {
		kvs := kv.NewMemoryStore()
		require.NoError(t, kvs.Set(ctx, KeySelectedDataset, []byte("gone")))
		tu := newTuner(t, kvs)
		assert.Equal(t, domain.DefaultDatasetTemplateID, tu.Selection.Active(domain.TemplateTypeDataset).ID)
	})
}

func TestTuner(t *testing.T) {
	ctx := context.Background()

	t.Run("デフォルトの保存は複製になり複製が選択されるのだ", func(t *testing.T) {
		tu := newTuner(t, kv.NewMemoryStore())
		before, _ := tu.Templates.Get(domain.DefaultDatasetTemplateID)

		saved, err := tu.SaveEdit(ctx, before.ID, before.Name, "edited {{trigger}}")
		require.NoError(t, err)
		assert.NotEqual(t, before.ID, saved.ID)
		assert.Equal(t, "Copy of "+before.Name, saved.Name)
		assert.Equal(t, "edited {{trigger}}", saved.Content)
		assert.Equal(t, saved.ID, tu.Selection.ActiveID(domain.TemplateTypeDataset))

		after, _ := tu.Templates.Get(before.ID)
		assert.Equal(t, before, after)
	})

	t.Run("カスタムの保存はその場で更新するのだ", func(t *testing.T) {
		tu := newTuner(t, kv.NewMemoryStore())
		created, err := tu.CreateBlank(ctx, domain.TemplateTypeDataset)
		require.NoError(t, err)
		assert.Equal(t, prompts.BlankTemplateName, created.Name)
		assert.Equal(t, prompts.BlankTemplateContent, created.Content)

		saved, err := tu.SaveEdit(ctx, created.ID, "Renamed", "new body")
		require.NoError(t, err)
		assert.Equal(t, created.ID, saved.ID)
		assert.Len(t, tu.Templates.List(domain.TemplateTypeDataset), 2)
	})

	t.Run("選択中のテンプレートを消すとデフォルトに戻るのだ", func(t *testing.T) {
		tu := newTuner(t, kv.NewMemoryStore())
		created, err := tu.CreateBlank(ctx, domain.TemplateTypeInference)
		require.NoError(t, err)
		require.Equal(t, created.ID, tu.Selection.ActiveID(domain.TemplateTypeInference))

		require.NoError(t, tu.Delete(ctx, created.ID))
		assert.Equal(t, domain.DefaultInferenceTemplateID, tu.Selection.ActiveID(domain.TemplateTypeInference))
	})

	t.Run("デフォルトの削除は ProtectedEntityError なのだ", func(t *testing.T) {
		tu := newTuner(t, kv.NewMemoryStore())
		assert.True(t, domain.IsProtected(tu.Delete(ctx, domain.DefaultDatasetTemplateID)))
	})
}
