package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-http-kit/httpkit"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

const (
	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = 1 * time.Hour
	// MaxImageBytes は1枚あたりの読み込み上限です。
	MaxImageBytes = 20 << 20
	// FieldSize はサイズ上限超過を示す ValidationError のフィールド名です。
	FieldSize = "size"
)

// HTTPClient は URL からの画像取得に使うクライアントです。httpkit.Client が満たします。
type HTTPClient interface {
	httpkit.Doer
	httpkit.URLValidator
}

// Loader はローカルファイルまたは http(s) URL から画像を読み込みます。
// 読み込んだ内容はソース文字列をキーにキャッシュします。
type Loader struct {
	httpClient HTTPClient
	cache      *cache.Cache
}

// NewLoader は Loader を初期化します。
func NewLoader(httpClient HTTPClient) (*Loader, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient は必須です")
	}
	return &Loader{
		httpClient: httpClient,
		cache:      cache.New(defaultCacheExpiration, cacheCleanupInterval),
	}, nil
}

// IsTooLarge は err がサイズ上限超過による ValidationError かどうかを判定します。
func IsTooLarge(err error) bool {
	var ve *domain.ValidationError
	return errors.As(err, &ve) && ve.Field == FieldSize
}

// Load は src の画像を読み込みます。
func (l *Loader) Load(ctx context.Context, src string) (domain.Media, error) {
	if cached, ok := l.cache.Get(src); ok {
		return cached.(domain.Media), nil
	}

	var (
		name string
		data []byte
		err  error
	)
	if isRemote(src) {
		name, data, err = l.fetch(ctx, src)
	} else {
		name = filepath.Base(src)
		data, err = readLimited(src)
	}
	if err != nil {
		return domain.Media{}, err
	}

	m, err := FromBytes(name, data)
	if err != nil {
		return domain.Media{}, err
	}
	l.cache.Set(src, m, cache.DefaultExpiration)
	return m, nil
}

// LoadDir はディレクトリ直下の画像ファイルを名前順に読み込みます。
// 画像以外は読み飛ばしますが、サイズ上限を超えた画像があればエラーを返します。
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]domain.Media, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリ %s の読み込みに失敗しました: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]domain.Media, 0, len(names))
	for _, name := range names {
		m, err := l.Load(ctx, filepath.Join(dir, name))
		if err != nil {
			if domain.IsValidation(err) && !IsTooLarge(err) {
				slog.Debug("画像ではないため読み飛ばします", "file", name)
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// FromBytes はバイト列の中身から MIME タイプを判定し、画像であれば Media を返します。
func FromBytes(name string, data []byte) (domain.Media, error) {
	if len(data) == 0 {
		return domain.Media{}, domain.NewValidationError("file", fmt.Sprintf("%s が空です", name))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return domain.Media{}, domain.NewValidationError("file", fmt.Sprintf("%s は画像ではありません (%s)", name, mt.String()))
	}
	if name == "" {
		name = "image" + mt.Extension()
	}
	return domain.Media{Filename: name, MIMEType: mt.String(), Data: data}, nil
}

func (l *Loader) fetch(ctx context.Context, src string) (string, []byte, error) {
	if ok, err := l.httpClient.IsSafeURL(src); !ok {
		msg := fmt.Sprintf("%s へのアクセスは許可されていません", src)
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		return "", nil, domain.NewValidationError("source", msg)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("画像の取得に失敗しました (%s): %w", src, err)
	}

	status := resp.StatusCode
	data, err := httpkit.HandleLimitedResponse(resp, MaxImageBytes+1)
	if err != nil {
		return "", nil, fmt.Errorf("画像の取得に失敗しました (%s): %w", src, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", nil, fmt.Errorf("画像の取得に失敗しました (%s): %w", src, &httpkit.NonRetryableHTTPError{StatusCode: status})
	}
	if len(data) > MaxImageBytes {
		return "", nil, domain.NewValidationError(FieldSize, fmt.Sprintf("%s はサイズ上限を超えています", src))
	}

	u, _ := url.Parse(src)
	return path.Base(u.Path), data, nil
}

func readLimited(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("ファイル %s の読み込みに失敗しました: %w", p, err)
	}
	if info.Size() > MaxImageBytes {
		return nil, domain.NewValidationError(FieldSize, fmt.Sprintf("%s はサイズ上限を超えています", p))
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("ファイル %s の読み込みに失敗しました: %w", p, err)
	}
	return data, nil
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}
