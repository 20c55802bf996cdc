package asset

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// DefaultImageExt は元ファイル名から拡張子を取り出せない場合に使う拡張子です。
	DefaultImageExt = "png"
	// CaptionExt はキャプションファイルの拡張子です。
	CaptionExt = ".txt"
)

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolveOutputPath(baseDir, fileName)
}

// IsRemotePath は p が "gs://" などスキーム付きの URI かどうかを判定します。
// Windows のドライブ文字 ("C:\") は1文字のスキームとして解釈されるため除外します。
func IsRemotePath(p string) bool {
	u, err := url.Parse(p)
	if err != nil {
		return strings.Contains(p, "://")
	}
	return len(u.Scheme) > 1
}

// CaptionFilename は元画像のファイル名の拡張子を .txt に置き換えます。
// 例: "photo.final.JPG" -> "photo.final.txt"
func CaptionFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + CaptionExt
}

// ImageExt は元画像の拡張子をドット無し・小文字で返します。無ければ png です。
func ImageExt(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return DefaultImageExt
	}
	return strings.ToLower(ext)
}
