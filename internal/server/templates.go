package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

// TemplateRequest はテンプレートの作成・編集・複製の本文です。
type TemplateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Type        string `json:"type"`
}

// SelectionRequest は選択テンプレートの変更本文です。
type SelectionRequest struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) listTemplates(c *gin.Context) {
	var t domain.TemplateType
	if raw := c.Query("type"); raw != "" {
		parsed, err := domain.ParseTemplateType(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		t = parsed
	}
	c.JSON(http.StatusOK, gin.H{"templates": s.manager.Tuner.Templates.List(t)})
}

func (s *Server) getTemplate(c *gin.Context) {
	tpl, err := s.manager.Tuner.Templates.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// createTemplate は本文の内容が空なら雛形から、あれば指定内容でカスタムテンプレートを作ります。
// どちらの場合も作成したテンプレートが選択状態になります。
func (s *Server) createTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := domain.ParseTemplateType(req.Type)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	tuner := s.manager.Tuner
	if req.Content == "" {
		tpl, err := tuner.CreateBlank(ctx, t)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tpl)
		return
	}

	tpl, err := tuner.Templates.Upsert(ctx, domain.PromptTemplate{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		Type:        t,
		Kind:        domain.KindCustom,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tuner.Selection.Select(ctx, t, tpl.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// saveTemplate はデフォルトなら複製を作り (201)、カスタムならその場で更新します (200)。
func (s *Server) saveTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	saved, err := s.manager.Tuner.SaveEdit(c.Request.Context(), id, req.Name, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if saved.ID != id {
		status = http.StatusCreated
	}
	c.JSON(status, saved)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	if err := s.manager.Tuner.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) forkTemplate(c *gin.Context) {
	var req TemplateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	tpl, err := s.manager.Tuner.Fork(c.Request.Context(), c.Param("id"), req.Name, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (s *Server) listVariables(c *gin.Context) {
	t, err := domain.ParseTemplateType(c.DefaultQuery("type", string(domain.TemplateTypeDataset)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": t, "variables": prompts.VariablesFor(t)})
}

func (s *Server) getSelection(c *gin.Context) {
	t, err := domain.ParseTemplateType(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}
	active := s.manager.Tuner.Selection.Active(t)
	c.JSON(http.StatusOK, gin.H{"type": t, "id": active.ID, "template": active})
}

func (s *Server) putSelection(c *gin.Context) {
	t, err := domain.ParseTemplateType(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.manager.Tuner.Selection.Select(c.Request.Context(), t, req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": t, "id": req.ID})
}
