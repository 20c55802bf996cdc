package prompts

import (
	_ "embed"
	"strings"
	"time"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

const (
	DefaultDatasetName   = "Flux [Klein] Style Guide"
	DefaultInferenceName = "Default (Z-Image-Turbo)"

	// BlankTemplateName と BlankTemplateContent は新規作成時の雛形です。
	BlankTemplateName    = "Untitled System Prompt"
	BlankTemplateContent = "Role: You are an AI assistant...\n\nRules:\n1. Use {{trigger}} to insert the trigger word."
)

var (
	//go:embed dataset.md
	DatasetPrompt string
	//go:embed inference.md
	InferencePrompt string
)

// DefaultTemplates は初回起動時に投入する組み込みテンプレートを返します。
func DefaultTemplates(now time.Time) []domain.PromptTemplate {
	ts := now.UnixMilli()
	return []domain.PromptTemplate{
		{
			ID:           domain.DefaultDatasetTemplateID,
			Name:         DefaultDatasetName,
			Content:      strings.TrimSpace(DatasetPrompt),
			Type:         domain.TemplateTypeDataset,
			Kind:         domain.KindDefault,
			LastModified: ts,
		},
		{
			ID:           domain.DefaultInferenceTemplateID,
			Name:         DefaultInferenceName,
			Content:      strings.TrimSpace(InferencePrompt),
			Type:         domain.TemplateTypeInference,
			Kind:         domain.KindDefault,
			LastModified: ts,
		},
	}
}

// DefaultTemplate は指定種別の組み込みテンプレートを返します。
func DefaultTemplate(t domain.TemplateType, now time.Time) domain.PromptTemplate {
	for _, tpl := range DefaultTemplates(now) {
		if tpl.Type == t {
			return tpl
		}
	}
	return DefaultTemplates(now)[0]
}
