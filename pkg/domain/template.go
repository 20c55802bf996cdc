package domain

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// TemplateType はテンプレートの用途（データセットのキャプション用か、推論プロンプト用か）を表します。
type TemplateType string

const (
	TemplateTypeDataset   TemplateType = "DATASET"
	TemplateTypeInference TemplateType = "INFERENCE"
)

const (
	// DefaultDatasetTemplateID はキャプション用デフォルトテンプレートの固定 ID です。
	DefaultDatasetTemplateID = "default-dataset-v1"
	// DefaultInferenceTemplateID は推論プロンプト用デフォルトテンプレートの固定 ID です。
	DefaultInferenceTemplateID = "default-inference-v1"
)

// TemplateTypes は既知のテンプレート種別を定義順に返します。
func TemplateTypes() []TemplateType {
	return []TemplateType{TemplateTypeDataset, TemplateTypeInference}
}

// ParseTemplateType は大文字小文字を区別せずに種別名を解釈します。
func ParseTemplateType(s string) (TemplateType, error) {
	t := TemplateType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError("type", fmt.Sprintf("不明なテンプレート種別です: %q", s))
	}
	return t, nil
}

// Valid は種別が既知の値かどうかを返します。
func (t TemplateType) Valid() bool {
	return t == TemplateTypeDataset || t == TemplateTypeInference
}

// DefaultID はその種別に対応するデフォルトテンプレートの ID を返します。
func (t TemplateType) DefaultID() string {
	switch t {
	case TemplateTypeInference:
		return DefaultInferenceTemplateID
	default:
		return DefaultDatasetTemplateID
	}
}

// TemplateKind はテンプレートが組み込みデフォルトか、ユーザー作成のカスタムかを区別します。
// デフォルトはその場で編集できず、編集時は必ずカスタムへ複製されます。
type TemplateKind int

const (
	KindCustom TemplateKind = iota
	KindDefault
)

func (k TemplateKind) String() string {
	if k == KindDefault {
		return "default"
	}
	return "custom"
}

// PromptTemplate は名前付きのプロンプトテンプレートです。
type PromptTemplate struct {
	ID           string
	Name         string
	Description  string
	Content      string
	Type         TemplateType
	Kind         TemplateKind
	LastModified int64 // unix ミリ秒
}

// IsDefault はテンプレートが組み込みデフォルトかどうかを返します。
func (t PromptTemplate) IsDefault() bool {
	return t.Kind == KindDefault
}

// templateWire は永続化とAPIで使うJSON表現です。旧来の isDefault フラグ形式を維持します。
type templateWire struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Content      string       `json:"content"`
	Type         TemplateType `json:"type"`
	IsDefault    bool         `json:"isDefault"`
	LastModified int64        `json:"lastModified"`
}

// MarshalJSON は Kind を isDefault フラグとして書き出します。
func (t PromptTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(templateWire{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		Content:      t.Content,
		Type:         t.Type,
		IsDefault:    t.IsDefault(),
		LastModified: t.LastModified,
	})
}

// UnmarshalJSON は isDefault フラグから Kind を復元します。
func (t *PromptTemplate) UnmarshalJSON(data []byte) error {
	var w templateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := KindCustom
	if w.IsDefault {
		kind = KindDefault
	}
	*t = PromptTemplate{
		ID:           w.ID,
		Name:         w.Name,
		Description:  w.Description,
		Content:      w.Content,
		Type:         w.Type,
		Kind:         kind,
		LastModified: w.LastModified,
	}
	return nil
}
