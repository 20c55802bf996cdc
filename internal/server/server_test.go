package server

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mandeep511/lora-forger/internal/metrics"
	"github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/kv"
	"github.com/mandeep511/lora-forger/pkg/workflow"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

// stubModels は Gemini の代わりに決まった応答を返すのだ。
type stubModels struct {
	err error
}

func (m stubModels) GenerateContent(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	text := "OHWX walking in the rain"
	if cfg.ResponseMIMEType == "application/json" {
		text = `{"caption":"OHWX smiling.","filename":"smile.txt"}`
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}}},
	}, nil
}

func newTestServer(t *testing.T, models stubModels) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	previews := dataset.NewMemoryPreviews()
	m, err := workflow.New(ctx, workflow.ManagerArgs{
		Config:   config.DefaultConfig(),
		KV:       kv.NewMemoryStore(),
		Models:   models,
		Previews: previews,
	})
	require.NoError(t, err)

	s, err := New(ctx, Deps{Manager: m, Previews: previews, Metrics: metrics.New()})
	require.NoError(t, err)
	return s, s.Router()
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, r http.Handler, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type itemsBody struct {
	Items []ItemResponse `json:"items"`
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t, stubModels{})
	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestTemplatesAPI(t *testing.T) {
	_, r := newTestServer(t, stubModels{})

	t.Run("種別で絞り込むとデフォルトが1件なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/templates?type=dataset", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Templates []domain.PromptTemplate `json:"templates"`
		}](t, w)
		require.Len(t, body.Templates, 1)
		assert.Equal(t, domain.DefaultDatasetTemplateID, body.Templates[0].ID)
		assert.True(t, body.Templates[0].IsDefault())
	})

	t.Run("不明な種別は 400 なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/templates?type=video", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("デフォルトの削除は 409 なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, "/api/v1/templates/"+domain.DefaultDatasetTemplateID, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("存在しない ID は 404 なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/templates/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("デフォルトを編集すると複製が作られて選択されるのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodPut, "/api/v1/templates/"+domain.DefaultInferenceTemplateID, TemplateRequest{Content: "Prompt for {{trigger}}"})
		require.Equal(t, http.StatusCreated, w.Code)
		forked := decode[domain.PromptTemplate](t, w)
		assert.NotEqual(t, domain.DefaultInferenceTemplateID, forked.ID)
		assert.Equal(t, domain.TemplateTypeInference, forked.Type)

		w = doJSON(r, http.MethodGet, "/api/v1/selection/inference", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), forked.ID)

		w = doJSON(r, http.MethodDelete, "/api/v1/templates/"+forked.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = doJSON(r, http.MethodGet, "/api/v1/selection/inference", nil)
		assert.Contains(t, w.Body.String(), domain.DefaultInferenceTemplateID)
	})

	t.Run("内容が空なら雛形で作るのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/templates", TemplateRequest{Type: "DATASET"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "Untitled System Prompt")
	})

	t.Run("種別違いの選択は 400 なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodPut, "/api/v1/selection/dataset", SelectionRequest{ID: domain.DefaultInferenceTemplateID})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("変数一覧とスタイル一覧を返すのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/variables?type=INFERENCE", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "{{style}}")

		w = doJSON(r, http.MethodGet, "/api/v1/styles", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Cyberpunk")
	})
}

func TestItemsAPI(t *testing.T) {
	_, r := newTestServer(t, stubModels{})

	w := upload(t, r, map[string][]byte{"cat.png": pngBytes})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	added := decode[itemsBody](t, w).Items
	require.Len(t, added, 1)
	it := added[0]
	assert.Equal(t, domain.StatusPending, it.Status)
	assert.Equal(t, "cat.txt", it.SuggestedFilename)
	assert.Equal(t, "/api/v1/items/"+it.ID+"/preview", it.PreviewURL)

	t.Run("画像以外は 400 で何も追加しないのだ", func(t *testing.T) {
		w := upload(t, r, map[string][]byte{"notes.txt": []byte("hello world")})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Len(t, decode[itemsBody](t, doJSON(r, http.MethodGet, "/api/v1/items", nil)).Items, 1)
	})

	t.Run("プレビューは元の画像を返すのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, it.PreviewURL, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, pngBytes, w.Body.Bytes())
	})

	t.Run("キャプションを手で編集できるのだ", func(t *testing.T) {
		caption := "OHWX, edited"
		w := doJSON(r, http.MethodPatch, "/api/v1/items/"+it.ID, ItemPatchRequest{Caption: &caption})
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[ItemResponse](t, w)
		assert.Equal(t, caption, got.Caption)
		assert.Equal(t, domain.StatusPending, got.Status)
	})

	t.Run("削除すると 204 でプレビューも消えるのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, "/api/v1/items/"+it.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = doJSON(r, http.MethodGet, it.PreviewURL, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = doJSON(r, http.MethodDelete, "/api/v1/items/"+it.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGenerateAndExport(t *testing.T) {
	s, r := newTestServer(t, stubModels{})
	require.Equal(t, http.StatusCreated, upload(t, r, map[string][]byte{"a.png": pngBytes, "b.png": pngBytes}).Code)

	t.Run("トリガーワードが空なら 400 なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/generate", RunRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 2, s.manager.Collection.Counts()[domain.StatusPending])
	})

	t.Run("wait=true なら集計を返すのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/generate?wait=true", RunRequest{TriggerWord: "OHWX"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		report := decode[workflow.BatchReport](t, w)
		assert.Equal(t, 2, report.Completed)
		assert.Equal(t, []int{2}, report.Groups)
	})

	t.Run("ZIP には画像とキャプションの組が入るのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/v1/export?trigger=OHWX", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "lora_dataset_ohwx_")

		zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
		require.NoError(t, err)
		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		assert.ElementsMatch(t, []string{"smile.png", "smile.txt", "smile_2.png", "smile_2.txt"}, names)
	})

	t.Run("バックグラウンド実行は 202 なのだ", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/v1/generate", RunRequest{TriggerWord: "OHWX"})
		require.Equal(t, http.StatusAccepted, w.Code)
		require.Eventually(t, func() bool { return !s.batchRunning.Load() }, time.Second, 5*time.Millisecond)
	})
}

func TestRegenerateFailure(t *testing.T) {
	_, r := newTestServer(t, stubModels{err: errors.New("quota exceeded")})
	w := upload(t, r, map[string][]byte{"a.png": pngBytes})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[itemsBody](t, w).Items[0].ID

	w = doJSON(r, http.MethodPost, "/api/v1/items/"+id+"/regenerate", RunRequest{TriggerWord: "OHWX"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[ItemResponse](t, w)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, dataset.GenericFailureMessage, got.ErrorMessage)

	w = doJSON(r, http.MethodPost, "/api/v1/inference", InferenceRequest{RunRequest: RunRequest{TriggerWord: "OHWX"}, Idea: "rain"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestInferenceAPI(t *testing.T) {
	_, r := newTestServer(t, stubModels{})

	w := doJSON(r, http.MethodPost, "/api/v1/inference", InferenceRequest{RunRequest: RunRequest{TriggerWord: "OHWX"}, Style: "Lineart"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/inference", InferenceRequest{RunRequest: RunRequest{TriggerWord: "OHWX"}, Style: "Lineart", Idea: "rain"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OHWX walking in the rain", decode[domain.InferenceResult](t, w).Prompt)

	w = doJSON(r, http.MethodGet, "/api/v1/inference", nil)
	assert.Contains(t, w.Body.String(), "OHWX walking in the rain")
}

func TestEventsStream(t *testing.T) {
	s, r := newTestServer(t, stubModels{})
	ts := httptest.NewServer(r)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewReader(resp.Body)
	first, err := lines.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, first, `"type":"connected"`)
	require.Eventually(t, func() bool { return s.Events().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.manager.Collection.AddMany([]domain.Media{{Filename: "a.png", MIMEType: "image/png", Data: pngBytes}})
	require.NoError(t, err)

	for {
		line, err := lines.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			assert.Contains(t, line, `"type":"item.added"`)
			assert.Contains(t, line, `"filename":"a.png"`)
			return
		}
	}
}
