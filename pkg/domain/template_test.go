package domain

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestPromptTemplate_JSON(t *testing.T) {
	t.Run("Kind が isDefault フラグとして往復するのだ", func(t *testing.T) {
		tpl := PromptTemplate{
			ID:           DefaultDatasetTemplateID,
			Name:         "Flux [Klein] Style Guide",
			Content:      "{{trigger}} stands",
			Type:         TemplateTypeDataset,
			Kind:         KindDefault,
			LastModified: 1700000000000,
		}

		data, err := json.Marshal(tpl)
		if err != nil {
			t.Fatalf("Marshal失敗なのだ: %v", err)
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("生JSONのパース失敗なのだ: %v", err)
		}
		if raw["isDefault"] != true {
			t.Errorf("isDefault が true で書き出されていないのだ: %v", raw["isDefault"])
		}
		if _, ok := raw["description"]; ok {
			t.Error("空の description は省略されるはずなのだ")
		}

		var decoded PromptTemplate
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal失敗なのだ: %v", err)
		}
		if decoded != tpl {
			t.Errorf("変換前後でデータが一致しないのだ。期待: %+v, 実際: %+v", tpl, decoded)
		}
	})

	t.Run("isDefault が無いデータはカスタム扱いなのだ", func(t *testing.T) {
		var decoded PromptTemplate
		if err := json.Unmarshal([]byte(`{"id":"x","name":"n","content":"c","type":"INFERENCE"}`), &decoded); err != nil {
			t.Fatalf("Unmarshal失敗なのだ: %v", err)
		}
		if decoded.IsDefault() {
			t.Error("カスタムとして読み込まれるべきなのだ")
		}
		if decoded.Type != TemplateTypeInference {
			t.Errorf("種別が違うのだ: %s", decoded.Type)
		}
	})
}

func TestParseTemplateType(t *testing.T) {
	cases := map[string]TemplateType{
		"dataset":     TemplateTypeDataset,
		" INFERENCE ": TemplateTypeInference,
	}
	for in, want := range cases {
		got, err := ParseTemplateType(in)
		if err != nil {
			t.Fatalf("%q の解釈に失敗したのだ: %v", in, err)
		}
		if got != want {
			t.Errorf("%q: 期待 %s, 実際 %s", in, want, got)
		}
	}

	if _, err := ParseTemplateType("video"); !IsValidation(err) {
		t.Errorf("不明な種別は ValidationError になるはずなのだ: %v", err)
	}
}

func TestTemplateType_DefaultID(t *testing.T) {
	if got := TemplateTypeDataset.DefaultID(); got != DefaultDatasetTemplateID {
		t.Errorf("DATASET のデフォルトIDが違うのだ: %s", got)
	}
	if got := TemplateTypeInference.DefaultID(); got != DefaultInferenceTemplateID {
		t.Errorf("INFERENCE のデフォルトIDが違うのだ: %s", got)
	}
}
