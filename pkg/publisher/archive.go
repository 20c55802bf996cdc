package publisher

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/domain"
)

const (
	archivePrefix   = "lora_dataset_"
	untitledTrigger = "untitled"
	fallbackBase    = "image"
)

// Entry はアーカイブ内の1ファイルです。
type Entry struct {
	Name string
	Data []byte
}

// ArchiveName はトリガーワードと時刻からアーカイブのファイル名を作ります。
// 例: "OHWX" -> "lora_dataset_ohwx_1700000000000.zip"
func ArchiveName(trigger string, now time.Time) string {
	t := strings.ToLower(strings.TrimSpace(trigger))
	if t == "" {
		t = untitledTrigger
	}
	return archivePrefix + t + "_" + strconv.FormatInt(now.UnixMilli(), 10) + ".zip"
}

// BaseName は推奨ファイル名から末尾の .txt（大文字小文字を区別しない）を除き、
// 単一のパス要素に整えます。
func BaseName(item domain.DatasetItem) string {
	name := item.SuggestedFilename
	if strings.TrimSpace(name) == "" {
		name = asset.CaptionFilename(item.Media.Filename)
	}
	if strings.EqualFold(filepath.Ext(name), asset.CaptionExt) {
		name = name[:len(name)-len(asset.CaptionExt)]
	}
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return fallbackBase
	}
	return name
}

// Entries は各項目を画像とキャプションの組に展開します。
// ベース名が既存のエントリと衝突した場合は、空いている _2, _3 ... を付けます。
func Entries(items []domain.DatasetItem) ([]Entry, error) {
	entries := make([]Entry, 0, len(items)*2)
	taken := make(map[string]struct{}, len(items)*2)

	for _, it := range items {
		if len(it.Media.Data) == 0 {
			return nil, fmt.Errorf("項目 %s の画像データが空です", it.ID)
		}
		base := BaseName(it)
		ext := "." + asset.ImageExt(it.Media.Filename)

		name := base
		for n := 2; isTaken(taken, name+ext) || isTaken(taken, name+asset.CaptionExt); n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[strings.ToLower(name+ext)] = struct{}{}
		taken[strings.ToLower(name+asset.CaptionExt)] = struct{}{}

		entries = append(entries,
			Entry{Name: name + ext, Data: it.Media.Data},
			Entry{Name: name + asset.CaptionExt, Data: []byte(it.Caption)},
		)
	}
	return entries, nil
}

func isTaken(taken map[string]struct{}, name string) bool {
	_, ok := taken[strings.ToLower(name)]
	return ok
}

// BuildArchive は全項目をメモリ上の ZIP にまとめます。途中で失敗した場合はアーカイブを返しません。
func BuildArchive(items []domain.DatasetItem) ([]byte, error) {
	entries, err := Entries(items)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			return nil, fmt.Errorf("ZIPエントリ %s の作成に失敗しました: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("ZIPエントリ %s の書き込みに失敗しました: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ZIPの確定に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
