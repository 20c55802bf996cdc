package config

import (
	"fmt"
	"time"
)

// デフォルト値の定義
const (
	DefaultGeminiModel          = "gemini-3-flash-preview"
	DefaultCaptionTemperature   = float32(0.4)
	DefaultInferenceTemperature = float32(0.7)
	DefaultGroupSize            = 3
	DefaultCallTimeout          = 2 * time.Minute
	DefaultRateInterval         = time.Duration(0)
)

// 一括生成の投入方式
const (
	// AdmissionBarrier はグループ単位で投入し、グループ全体の完了を待ってから次へ進みます。
	AdmissionBarrier = "barrier"
	// AdmissionContinuous は同時実行数の上限だけを守り、空きが出るたびに次を投入します。
	AdmissionContinuous = "continuous"
)

// Config は生成クライアントとバッチ実行の基本設定です。
type Config struct {
	// --- AI Model Settings ---
	GeminiAPIKey         string
	GeminiModel          string
	CaptionTemperature   float32
	InferenceTemperature float32

	// --- Batch Settings ---
	GroupSize    int
	Admission    string
	RateInterval time.Duration // 0 の場合は呼び出し開始を間引きません

	// --- Timeout ---
	CallTimeout time.Duration // 1回の外部呼び出しの上限。0 で無制限
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		GeminiModel:          DefaultGeminiModel,
		CaptionTemperature:   DefaultCaptionTemperature,
		InferenceTemperature: DefaultInferenceTemperature,
		GroupSize:            DefaultGroupSize,
		Admission:            AdmissionBarrier,
		RateInterval:         DefaultRateInterval,
		CallTimeout:          DefaultCallTimeout,
	}
}

// Validate は設定値の整合性を検証します。
func (c Config) Validate() error {
	if c.GeminiModel == "" {
		return fmt.Errorf("GeminiModel は必須です")
	}
	if c.GroupSize < 1 {
		return fmt.Errorf("GroupSize は1以上である必要があります: %d", c.GroupSize)
	}
	if c.Admission != AdmissionBarrier && c.Admission != AdmissionContinuous {
		return fmt.Errorf("不明な投入方式です: %q", c.Admission)
	}
	if c.CallTimeout < 0 || c.RateInterval < 0 {
		return fmt.Errorf("CallTimeout と RateInterval に負の値は指定できません")
	}
	return nil
}
