package dataset

import (
	"errors"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

// GenericFailureMessage は生成失敗時に項目へ記録する汎用メッセージです。
const GenericFailureMessage = "Generation failed"

// ErrNotSelectable は一括生成で取り出した後に項目の状態が変わっていたことを示します。
var ErrNotSelectable = errors.New("項目はすでに一括生成の対象ではありません")

// Patch は項目への部分更新です。nil のフィールドは変更しません。
type Patch struct {
	Caption           *string
	SuggestedFilename *string
	Status            *domain.ItemStatus
	ErrorMessage      *string

	// selectableOnly が true の場合、PENDING か ERROR の項目にだけ適用します。
	selectableOnly bool
}

func ptr[T any](v T) *T { return &v }

// EditPatch はユーザーによるキャプションやファイル名の編集です。空文字も値として扱います。
func EditPatch(caption, filename *string) Patch {
	return Patch{Caption: caption, SuggestedFilename: filename}
}

// ProcessingPatch は生成開始を表します。
func ProcessingPatch() Patch {
	return Patch{Status: ptr(domain.StatusProcessing)}
}

// ClaimPatch は一括生成の開始を表します。適用時点で PENDING か ERROR の項目だけを PROCESSING にします。
func ClaimPatch() Patch {
	return Patch{Status: ptr(domain.StatusProcessing), selectableOnly: true}
}

// CompletedPatch は生成成功の結果を反映します。
func CompletedPatch(res domain.CaptionResult) Patch {
	return Patch{
		Status:            ptr(domain.StatusCompleted),
		Caption:           ptr(res.Caption),
		SuggestedFilename: ptr(res.Filename),
	}
}

// FailedPatch は生成失敗を反映します。
func FailedPatch(message string) Patch {
	if message == "" {
		message = GenericFailureMessage
	}
	return Patch{Status: ptr(domain.StatusError), ErrorMessage: ptr(message)}
}

// apply は遷移表に従って patch を item に適用した新しい値を返します。
func (p Patch) apply(item domain.DatasetItem) (domain.DatasetItem, error) {
	if p.selectableOnly && !item.IsSelectable() {
		return item, ErrNotSelectable
	}
	next := item

	if p.Status != nil && *p.Status != item.Status {
		if !domain.CanTransition(item.Status, *p.Status) {
			return item, domain.NewValidationError("status",
				"状態 "+string(item.Status)+" から "+string(*p.Status)+" へは遷移できません")
		}
		if *p.Status == domain.StatusCompleted && (p.Caption == nil || p.SuggestedFilename == nil) {
			return item, domain.NewValidationError("status", "COMPLETED にはキャプションとファイル名が必要です")
		}
		next.Status = *p.Status
	}
	if p.Caption != nil {
		next.Caption = *p.Caption
	}
	if p.SuggestedFilename != nil {
		next.SuggestedFilename = *p.SuggestedFilename
	}

	if next.Status == domain.StatusError {
		if p.ErrorMessage != nil {
			next.ErrorMessage = *p.ErrorMessage
		}
		if next.ErrorMessage == "" {
			next.ErrorMessage = GenericFailureMessage
		}
	} else {
		next.ErrorMessage = ""
	}
	return next, nil
}
