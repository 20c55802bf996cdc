package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/workflow"
)

// ErrBatchRunning は一括生成が既に実行中であることを示します。
var ErrBatchRunning = errors.New("一括生成を実行中です")

// ErrorResponse は API のエラー応答です。
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor はエラーの種類を HTTP ステータスに対応付けます。
func statusFor(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsProtected(err), errors.Is(err, workflow.ErrLabBusy), errors.Is(err, ErrBatchRunning):
		return http.StatusConflict
	case domain.IsGeneration(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := ErrorResponse{Error: err.Error()}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "API リクエストの処理に失敗しました", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
