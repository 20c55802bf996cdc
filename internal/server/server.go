// Package server はデータセット操作の HTTP API と、項目変更の SSE 配信を提供します。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mandeep511/lora-forger/internal/metrics"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/workflow"
)

const shutdownTimeout = 10 * time.Second

// Deps は Server の依存関係です。
type Deps struct {
	Manager  *workflow.Manager
	Previews *dataset.MemoryPreviews
	Metrics  *metrics.Metrics // nil の場合は /metrics を公開しません
}

// Server は gin のルーターと SSE の配信をまとめます。
type Server struct {
	manager  *workflow.Manager
	previews *dataset.MemoryPreviews
	metrics  *metrics.Metrics
	events   *Broadcaster

	baseCtx      context.Context
	batchRunning atomic.Bool
}

// New は Server を初期化し、項目の変更を SSE とメトリクスへ流します。
// ctx はバックグラウンドの一括生成と配信の寿命になります。
func New(ctx context.Context, deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, fmt.Errorf("workflow.Manager は必須です")
	}
	if deps.Previews == nil {
		return nil, fmt.Errorf("プレビューのレジストリは必須です")
	}

	s := &Server{
		manager:  deps.Manager,
		previews: deps.Previews,
		metrics:  deps.Metrics,
		events:   NewBroadcaster(),
		baseCtx:  ctx,
	}

	collection := s.manager.Collection
	collection.Subscribe(func(ev dataset.Event) {
		s.events.Publish(ev)
		if s.metrics != nil {
			s.metrics.SetItemCounts(collection.Counts())
		}
	})
	go s.events.Run(ctx)
	return s, nil
}

// Router は API のルーティングを構築します。
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/templates", s.listTemplates)
		v1.POST("/templates", s.createTemplate)
		v1.GET("/templates/:id", s.getTemplate)
		v1.PUT("/templates/:id", s.saveTemplate)
		v1.DELETE("/templates/:id", s.deleteTemplate)
		v1.POST("/templates/:id/fork", s.forkTemplate)
		v1.GET("/variables", s.listVariables)
		v1.GET("/selection/:type", s.getSelection)
		v1.PUT("/selection/:type", s.putSelection)

		v1.GET("/items", s.listItems)
		v1.POST("/items", s.addItems)
		v1.PATCH("/items/:id", s.patchItem)
		v1.DELETE("/items/:id", s.deleteItem)
		v1.GET("/items/:id/preview", s.previewItem)
		v1.POST("/items/:id/regenerate", s.regenerateItem)

		v1.POST("/generate", s.generateAll)
		v1.POST("/inference", s.inference)
		v1.GET("/inference", s.lastInference)
		v1.GET("/styles", s.listStyles)
		v1.GET("/export", s.export)
		v1.GET("/events", gin.WrapH(s.events))
	}
	return r
}

// Run は addr で待ち受け、ctx が終わると処理中のリクエストを待ってから停止します。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP サーバーを起動します", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("HTTP サーバーを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP サーバーの停止に失敗しました: %w", err)
	}
	return nil
}

// Events は SSE の配信元を返します。
func (s *Server) Events() *Broadcaster {
	return s.events
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"items":  s.manager.Collection.Len(),
		"busy":   s.batchRunning.Load() || s.manager.Lab.Busy(),
	})
}
