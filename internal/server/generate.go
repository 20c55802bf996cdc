package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/prompts"
	"github.com/mandeep511/lora-forger/pkg/publisher"
)

// RunRequest はキャプション生成の実行パラメータです。
type RunRequest struct {
	TriggerWord string `json:"triggerWord"`
	NSFW        bool   `json:"nsfw"`
	TemplateID  string `json:"templateId"`
}

func (r RunRequest) params() domain.RunParams {
	return domain.RunParams{TriggerWord: r.TriggerWord, NSFW: r.NSFW}
}

// InferenceRequest は推論ラボの実行パラメータです。参照画像は base64 で渡します。
type InferenceRequest struct {
	RunRequest
	Style          string `json:"style"`
	Idea           string `json:"idea"`
	ReferenceImage string `json:"referenceImage"`
	ReferenceName  string `json:"referenceName"`
}

// generateAll は PENDING / ERROR の項目を一括生成します。
// wait=true の場合は完了まで待って集計を返し、それ以外はバックグラウンドで実行して 202 を返します。
func (s *Server) generateAll(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	params := req.params()
	if err := params.Validate(); err != nil {
		respondError(c, err)
		return
	}
	tpl, err := s.manager.ResolveTemplate(domain.TemplateTypeDataset, req.TemplateID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !s.batchRunning.CompareAndSwap(false, true) {
		respondError(c, ErrBatchRunning)
		return
	}

	pending := len(s.manager.Collection.SelectPending())
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait {
		defer s.batchRunning.Store(false)
		report, err := s.manager.Orchestrator.GenerateAll(c.Request.Context(), params, tpl)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	go func(ctx context.Context) {
		defer s.batchRunning.Store(false)
		if _, err := s.manager.Orchestrator.GenerateAll(ctx, params, tpl); err != nil {
			slog.ErrorContext(ctx, "バックグラウンドの一括生成が中断されました", "error", err)
		}
	}(s.baseCtx)
	c.JSON(http.StatusAccepted, gin.H{"pending": pending, "template": tpl.ID})
}

func (s *Server) regenerateItem(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	it, err := s.manager.Regenerate(c.Request.Context(), c.Param("id"), req.params(), req.TemplateID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(it))
}

func (s *Server) inference(c *gin.Context) {
	var req InferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	params := domain.InferenceParams{
		RunParams: req.params(),
		Style:     req.Style,
		Idea:      req.Idea,
	}
	if req.ReferenceImage != "" {
		data, err := base64.StdEncoding.DecodeString(req.ReferenceImage)
		if err != nil {
			respondError(c, domain.NewValidationError("referenceImage", "base64 として解釈できません"))
			return
		}
		ref, err := asset.FromBytes(req.ReferenceName, data)
		if err != nil {
			respondError(c, err)
			return
		}
		params.Reference = &ref
	}

	res, err := s.manager.ComposePrompt(c.Request.Context(), params, req.TemplateID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) lastInference(c *gin.Context) {
	lab := s.manager.Lab
	c.JSON(http.StatusOK, gin.H{"prompt": lab.Prompt(), "busy": lab.Busy()})
}

func (s *Server) listStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": prompts.Styles()})
}

// export は全項目を ZIP にまとめて返します。保存はせず、ダウンロードとして返すだけです。
func (s *Server) export(c *gin.Context) {
	items := s.manager.Collection.List()
	if len(items) == 0 {
		respondError(c, domain.NewValidationError("items", "書き出す項目がありません"))
		return
	}
	data, err := publisher.BuildArchive(items)
	if err != nil {
		respondError(c, err)
		return
	}
	name := publisher.ArchiveName(c.Query("trigger"), time.Now())
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/zip", data)
}
