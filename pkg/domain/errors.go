package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound は指定 ID のテンプレートや項目が存在しないことを示します。
var ErrNotFound = errors.New("not found")

// ValidationError は外部への副作用が起きる前に前提条件が満たされなかったことを示します。
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GenerationError は外部モデル呼び出しの失敗、空応答、または解析不能な応答を表します。
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s に失敗しました: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProtectedEntityError はデフォルトテンプレートの削除や上書きを拒否したことを示します。
type ProtectedEntityError struct {
	ID string
}

func (e *ProtectedEntityError) Error() string {
	return fmt.Sprintf("デフォルトテンプレート %q は変更できません。複製してから編集してください", e.ID)
}

// IsValidation は err が ValidationError を含むかを返します。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsGeneration は err が GenerationError を含むかを返します。
func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// IsProtected は err が ProtectedEntityError を含むかを返します。
func IsProtected(err error) bool {
	var pe *ProtectedEntityError
	return errors.As(err, &pe)
}
