package workflow

import (
	"context"
	"fmt"

	"github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/generator"
	"github.com/mandeep511/lora-forger/pkg/kv"
	"github.com/mandeep511/lora-forger/pkg/prompts"
	"github.com/mandeep511/lora-forger/pkg/store"
)

// ManagerArgs は Manager の構築に必要な依存関係です。
type ManagerArgs struct {
	Config   config.Config
	KV       kv.Store
	Models   generator.ContentGenerator // nil の場合は Config.GeminiAPIKey から作成します
	Previews dataset.PreviewRegistry    // nil の場合はメモリ上のレジストリ
	Recorder Recorder
}

// Manager は、テンプレート、データセット、生成処理をまとめて扱う窓口です。
// 実行パラメータと使用するテンプレートは呼び出しごとに明示的に渡されます。
type Manager struct {
	cfg          config.Config
	Tuner        *store.Tuner
	Collection   *dataset.Collection
	Orchestrator *Orchestrator
	Lab          *Lab
}

// New は、設定と永続化ストアを基に新しい Manager を初期化します。
func New(ctx context.Context, args ManagerArgs) (*Manager, error) {
	if args.KV == nil {
		return nil, fmt.Errorf("kv.Store は必須です")
	}
	if err := args.Config.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	models := args.Models
	if models == nil {
		m, err := generator.NewGeminiModels(ctx, args.Config.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		models = m
	}

	client, err := generator.NewClient(models, prompts.NewTextPromptBuilder(), args.Config)
	if err != nil {
		return nil, err
	}

	templates, err := store.Open(ctx, args.KV)
	if err != nil {
		return nil, fmt.Errorf("テンプレートストアの初期化に失敗しました: %w", err)
	}
	selection, err := store.NewSelection(ctx, args.KV, templates)
	if err != nil {
		return nil, fmt.Errorf("選択状態の初期化に失敗しました: %w", err)
	}

	collection := dataset.NewCollection(args.Previews)
	orchestrator, err := NewOrchestrator(collection, client, args.Config, args.Recorder)
	if err != nil {
		return nil, err
	}
	lab, err := NewLab(client, args.Config.CallTimeout, args.Recorder)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:          args.Config,
		Tuner:        store.NewTuner(templates, selection),
		Collection:   collection,
		Orchestrator: orchestrator,
		Lab:          lab,
	}, nil
}

// ResolveTemplate は templateID が指定されていればそれを、無ければ種別の選択中テンプレートを返します。
func (m *Manager) ResolveTemplate(t domain.TemplateType, templateID string) (domain.PromptTemplate, error) {
	if templateID == "" {
		return m.Tuner.Selection.Active(t), nil
	}
	tpl, err := m.Tuner.Templates.Get(templateID)
	if err != nil {
		return domain.PromptTemplate{}, err
	}
	if tpl.Type != t {
		return domain.PromptTemplate{}, domain.NewValidationError("template", fmt.Sprintf("テンプレート %q は %s 用ではありません", templateID, t))
	}
	return tpl, nil
}

// GenerateAll は選択中（または指定）のキャプション用テンプレートで一括生成します。
func (m *Manager) GenerateAll(ctx context.Context, params domain.RunParams, templateID string) (BatchReport, error) {
	if err := params.Validate(); err != nil {
		return BatchReport{}, err
	}
	tpl, err := m.ResolveTemplate(domain.TemplateTypeDataset, templateID)
	if err != nil {
		return BatchReport{}, err
	}
	return m.Orchestrator.GenerateAll(ctx, params, tpl)
}

// Regenerate は1項目を選択中のキャプション用テンプレートで再生成します。
func (m *Manager) Regenerate(ctx context.Context, id string, params domain.RunParams, templateID string) (domain.DatasetItem, error) {
	if err := params.Validate(); err != nil {
		return domain.DatasetItem{}, err
	}
	tpl, err := m.ResolveTemplate(domain.TemplateTypeDataset, templateID)
	if err != nil {
		return domain.DatasetItem{}, err
	}
	return m.Orchestrator.Regenerate(ctx, id, params, tpl)
}

// ComposePrompt は選択中（または指定）の推論用テンプレートでプロンプトを生成します。
func (m *Manager) ComposePrompt(ctx context.Context, params domain.InferenceParams, templateID string) (domain.InferenceResult, error) {
	if err := params.Validate(); err != nil {
		return domain.InferenceResult{}, err
	}
	tpl, err := m.ResolveTemplate(domain.TemplateTypeInference, templateID)
	if err != nil {
		return domain.InferenceResult{}, err
	}
	return m.Lab.Generate(ctx, params, tpl)
}

// Config は Manager の設定を返します。
func (m *Manager) Config() config.Config {
	return m.cfg
}
