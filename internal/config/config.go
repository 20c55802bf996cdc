package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shouni/go-utils/envutil"
	"gopkg.in/yaml.v3"

	libcfg "github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/kv"
)

// デフォルト値の定義なのだ
const (
	DefaultStoreBackend = kv.BackendFile
	DefaultStorePath    = ".lora-forger/store.json"
	DefaultAddr         = ":8080"
	DefaultOutputDir    = "output"
	DefaultHTTPTimeout  = 30 * time.Second
)

// Config はアプリケーション全体の設定を保持する構造体なのだ。
// 環境変数を読んだ後、YAML ファイルがあればその値で上書きするのだ。
type Config struct {
	GeminiAPIKey string `yaml:"-"`
	GeminiModel  string `yaml:"gemini_model"`

	StoreBackend string `yaml:"store_backend"`
	StorePath    string `yaml:"store_path"`

	GroupSize    int           `yaml:"group_size"`
	Admission    string        `yaml:"admission"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	RateInterval time.Duration `yaml:"rate_interval"`

	Addr        string        `yaml:"addr"`
	OutputDir   string        `yaml:"output_dir"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Options GenerateOptions `yaml:"-"`
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	ConfigFile string // --config

	// 入力関連
	InputDir    string // --input-dir
	TriggerWord string // --trigger
	NSFW        bool   // --nsfw
	TemplateID  string // --template

	// 推論ラボ関連
	Style     string // --style
	Idea      string // --idea
	Reference string // --reference（ローカルパスまたは URL）

	// 出力関連
	OutputDir string // --output-dir
}

// LoadConfig は環境変数と YAML ファイルから設定を読み込むのだ！
// path が空なら LORA_CONFIG を見て、それも無ければ環境変数だけを使うのだ。
func LoadConfig(path string) (*Config, error) {
	lib := libcfg.DefaultConfig()
	cfg := &Config{
		GeminiAPIKey: envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:  envutil.GetEnv("GEMINI_MODEL", lib.GeminiModel),
		StoreBackend: envutil.GetEnv("LORA_STORE_BACKEND", DefaultStoreBackend),
		StorePath:    envutil.GetEnv("LORA_STORE_PATH", DefaultStorePath),
		Admission:    envutil.GetEnv("LORA_ADMISSION", lib.Admission),
		Addr:         envutil.GetEnv("LORA_ADDR", DefaultAddr),
		OutputDir:    envutil.GetEnv("LORA_OUTPUT_DIR", DefaultOutputDir),
		HTTPTimeout:  DefaultHTTPTimeout,
	}

	var err error
	if cfg.GroupSize, err = envInt("LORA_GROUP_SIZE", lib.GroupSize); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = envDuration("LORA_CALL_TIMEOUT", lib.CallTimeout); err != nil {
		return nil, err
	}
	if cfg.RateInterval, err = envDuration("LORA_RATE_INTERVAL", lib.RateInterval); err != nil {
		return nil, err
	}

	if path == "" {
		path = envutil.GetEnv("LORA_CONFIG", "")
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
		cfg.Options.ConfigFile = path
	}
	return cfg, nil
}

// overlayFile は YAML に書かれた項目だけを上書きするのだ。ファイルが無いのはエラーなのだ。
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイル %s の読み込みに失敗しました: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイル %s の解析に失敗しました: %w", path, err)
	}
	return nil
}

// Library は生成ライブラリ向けの設定に変換するのだ。
func (c *Config) Library() libcfg.Config {
	lib := libcfg.DefaultConfig()
	lib.GeminiAPIKey = c.GeminiAPIKey
	if c.GeminiModel != "" {
		lib.GeminiModel = c.GeminiModel
	}
	lib.GroupSize = c.GroupSize
	lib.Admission = c.Admission
	lib.CallTimeout = c.CallTimeout
	lib.RateInterval = c.RateInterval
	return lib
}

func envInt(key string, def int) (int, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s は整数で指定してください: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s は 30s や 2m の形式で指定してください: %w", key, err)
	}
	return v, nil
}
