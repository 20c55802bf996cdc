package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/domain"
)

const uploadField = "files"

// ItemResponse は項目にプレビュー取得用の URL を添えた応答です。
type ItemResponse struct {
	domain.DatasetItem
	PreviewURL string `json:"previewUrl"`
}

// ItemPatchRequest はキャプションと推奨ファイル名の手動編集です。省略した項目は変更しません。
type ItemPatchRequest struct {
	Caption           *string `json:"caption"`
	SuggestedFilename *string `json:"suggestedFilename"`
}

func toResponse(it domain.DatasetItem) ItemResponse {
	return ItemResponse{DatasetItem: it, PreviewURL: "/api/v1/items/" + it.ID + "/preview"}
}

func toResponses(items []domain.DatasetItem) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i, it := range items {
		out[i] = toResponse(it)
	}
	return out
}

func (s *Server) listItems(c *gin.Context) {
	col := s.manager.Collection
	c.JSON(http.StatusOK, gin.H{"items": toResponses(col.List()), "counts": col.Counts()})
}

// addItems は multipart の files をすべて読み込み、画像であることを確かめてから一括で追加します。
func (s *Server) addItems(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, err)
		return
	}
	headers := form.File[uploadField]
	if len(headers) == 0 {
		respondError(c, domain.NewValidationError(uploadField, "画像ファイルが添付されていません"))
		return
	}

	files := make([]domain.Media, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > asset.MaxImageBytes {
			respondError(c, domain.NewValidationError(uploadField, fmt.Sprintf("%s が大きすぎます", fh.Filename)))
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, asset.MaxImageBytes+1))
		f.Close()
		if err != nil {
			badRequest(c, err)
			return
		}
		m, err := asset.FromBytes(fh.Filename, data)
		if err != nil {
			respondError(c, err)
			return
		}
		files = append(files, m)
	}

	added, err := s.manager.Collection.AddMany(files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": toResponses(added)})
}

func (s *Server) patchItem(c *gin.Context) {
	var req ItemPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	it, err := s.manager.Collection.UpdatePartial(c.Param("id"), dataset.EditPatch(req.Caption, req.SuggestedFilename))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(it))
}

func (s *Server) deleteItem(c *gin.Context) {
	if err := s.manager.Collection.Remove(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) previewItem(c *gin.Context) {
	it, err := s.manager.Collection.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	m, ok := s.previews.Lookup(it.PreviewHandle)
	if !ok {
		respondError(c, fmt.Errorf("プレビュー %q: %w", it.ID, domain.ErrNotFound))
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, m.MIMEType, m.Data)
}
