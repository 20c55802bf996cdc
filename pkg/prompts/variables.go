package prompts

import "github.com/mandeep511/lora-forger/pkg/domain"

// プレースホルダ名
const (
	VarTrigger = "trigger"
	VarNSFW    = "nsfw"
	VarStyle   = "style"
)

const (
	// CaptionNSFWInstruction はキャプション生成で NSFW が有効な時に差し込む指示です。
	CaptionNSFWInstruction = `NSFW Note: Describe the specific anatomical state or acts in natural sentences (e.g., "erect," "flaccid," "covered in oil") so these states remain variable and not baked into the character.`
	// InferenceNSFWInstruction は推論プロンプト生成で NSFW が有効な時に差し込む指示です。
	InferenceNSFWInstruction = "NSFW is ENABLED. You are authorized to generate explicit prompts. Describe anatomy and acts using natural, descriptive language."

	CaptionUserText       = "Generate caption based on system instructions."
	InferenceFallbackText = "Generate a creative prompt based on the style and reference provided."

	// StrategySeparator は固定の方針ブロックとテンプレート本文の区切りです。
	StrategySeparator = "\n\n---\n\n"

	// CaptionStrategy はキャプション生成で常に先頭へ付与される固定の方針ブロックです。
	// ユーザーがテンプレートを編集してもこの方針は外れません。
	CaptionStrategy = `### DATASET CURATION POLICY (FIXED) ###
- The trigger word is the subject's whole identity. Never describe permanent identity traits (facial structure, eye spacing, gendered class nouns).
- Describe only variable attributes: pose, clothing, body state, skin, lighting, background, camera and quality artifacts.
- Respond with a JSON object containing exactly two string fields: "caption" and "filename" (snake_case, ending in .txt).`
)

// Variable はテンプレートで利用できるプレースホルダの説明です。
type Variable struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Description string `json:"description"`
}

var variablesByType = map[domain.TemplateType][]Variable{
	domain.TemplateTypeDataset: {
		{Name: VarTrigger, Placeholder: "{{trigger}}", Description: "The unique identifier for your subject (e.g., 'OHWX')."},
		{Name: VarNSFW, Placeholder: "{{nsfw}}", Description: "Injects explicit anatomical guidance when NSFW mode is on; empty otherwise."},
	},
	domain.TemplateTypeInference: {
		{Name: VarTrigger, Placeholder: "{{trigger}}", Description: "The unique identifier for your subject (e.g., 'OHWX')."},
		{Name: VarStyle, Placeholder: "{{style}}", Description: "The selected art style (e.g., 'Cyberpunk')."},
		{Name: VarNSFW, Placeholder: "{{nsfw}}", Description: "Injects permission for explicit prompts when NSFW mode is on; empty otherwise."},
	},
}

// VariablesFor は種別ごとに利用可能なプレースホルダを返します。
func VariablesFor(t domain.TemplateType) []Variable {
	vars := variablesByType[t]
	out := make([]Variable, len(vars))
	copy(out, vars)
	return out
}

// CaptionVariables はキャプション用の変数マップを組み立てます。
func CaptionVariables(p domain.RunParams) map[string]string {
	nsfw := ""
	if p.NSFW {
		nsfw = CaptionNSFWInstruction
	}
	return map[string]string{
		VarTrigger: p.TriggerWord,
		VarNSFW:    nsfw,
	}
}

// InferenceVariables は推論プロンプト用の変数マップを組み立てます。
func InferenceVariables(p domain.InferenceParams) map[string]string {
	nsfw := ""
	if p.NSFW {
		nsfw = InferenceNSFWInstruction
	}
	return map[string]string{
		VarTrigger: p.TriggerWord,
		VarStyle:   p.Style,
		VarNSFW:    nsfw,
	}
}

var styles = []string{
	"Photorealistic",
	"Anime / Manga",
	"3D Render",
	"Digital Illustration",
	"Oil Painting",
	"Cyberpunk",
	"Lineart",
	"Fantasy RPG",
}

// Styles は推論ラボで選択できるスタイル名を返します。
func Styles() []string {
	out := make([]string, len(styles))
	copy(out, styles)
	return out
}
