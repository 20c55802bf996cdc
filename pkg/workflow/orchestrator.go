package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/generator"
)

// BatchReport は一括生成1回分の集計です。
type BatchReport struct {
	Groups    []int `json:"groups"` // barrier 方式で投入したグループごとの件数
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"` // 開始前に削除・キャンセルされた、または状態が変わった項目
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeFailed
)

// Orchestrator は PENDING / ERROR の項目を同時実行数の上限付きでキャプション生成します。
type Orchestrator struct {
	items     ItemStore
	captioner generator.CaptionGenerator
	cfg       config.Config
	limiter   *rate.Limiter
	recorder  Recorder
	inflight  singleflight.Group
}

// NewOrchestrator は Orchestrator を初期化します。
func NewOrchestrator(items ItemStore, captioner generator.CaptionGenerator, cfg config.Config, recorder Recorder) (*Orchestrator, error) {
	if items == nil {
		return nil, fmt.Errorf("ItemStore は必須です")
	}
	if captioner == nil {
		return nil, fmt.Errorf("CaptionGenerator は必須です")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	var limiter *rate.Limiter
	if cfg.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateInterval), cfg.GroupSize)
	}
	return &Orchestrator{
		items:     items,
		captioner: captioner,
		cfg:       cfg,
		limiter:   limiter,
		recorder:  recorder,
	}, nil
}

// GenerateAll は現在の PENDING / ERROR 項目をすべて処理します。
// トリガーワードが空の場合は外部呼び出しを一切行わずに ValidationError を返します。
// 個々の項目の失敗はその項目の ERROR として記録され、戻り値のエラーにはなりません。
func (o *Orchestrator) GenerateAll(ctx context.Context, params domain.RunParams, tpl domain.PromptTemplate) (BatchReport, error) {
	if err := params.Validate(); err != nil {
		return BatchReport{}, err
	}

	pending := o.items.SelectPending()
	slog.InfoContext(ctx, "一括キャプション生成を開始します",
		"items", len(pending), "group_size", o.cfg.GroupSize, "admission", o.cfg.Admission, "template", tpl.ID)

	var report BatchReport
	var err error
	if o.cfg.Admission == config.AdmissionContinuous {
		err = o.runContinuous(ctx, pending, params, tpl, &report)
	} else {
		err = o.runGroups(ctx, pending, params, tpl, &report)
	}

	slog.InfoContext(ctx, "一括キャプション生成が終了しました",
		"completed", report.Completed, "failed", report.Failed, "skipped", report.Skipped)
	return report, err
}

// runGroups はグループ単位で並列に処理し、グループ全体の完了を待ってから次のグループを始めます。
func (o *Orchestrator) runGroups(ctx context.Context, pending []domain.DatasetItem, params domain.RunParams, tpl domain.PromptTemplate, report *BatchReport) error {
	for i := 0; i < len(pending); i += o.cfg.GroupSize {
		if err := ctx.Err(); err != nil {
			report.Skipped += len(pending) - i
			return err
		}

		end := i + o.cfg.GroupSize
		if end > len(pending) {
			end = len(pending)
		}
		group := pending[i:end]
		report.Groups = append(report.Groups, len(group))

		results := make([]outcome, len(group))
		var eg errgroup.Group
		for j, item := range group {
			eg.Go(func() error {
				results[j] = o.process(ctx, item, params, tpl, dataset.ClaimPatch())
				return nil
			})
		}
		_ = eg.Wait()

		for _, r := range results {
			report.add(r)
		}
		slog.DebugContext(ctx, "グループの処理が完了しました", "group", len(report.Groups), "size", len(group))
	}
	return nil
}

// runContinuous は同時実行数だけを制限し、空きが出るたびに次の項目を投入します。
func (o *Orchestrator) runContinuous(ctx context.Context, pending []domain.DatasetItem, params domain.RunParams, tpl domain.PromptTemplate, report *BatchReport) error {
	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(o.cfg.GroupSize)

	for _, item := range pending {
		if ctx.Err() != nil {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}
		eg.Go(func() error {
			r := o.process(ctx, item, params, tpl, dataset.ClaimPatch())
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return ctx.Err()
}

func (r *BatchReport) add(o outcome) {
	switch o {
	case outcomeCompleted:
		r.Completed++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// Regenerate は1項目だけを再生成します。COMPLETED の項目も対象です。
func (o *Orchestrator) Regenerate(ctx context.Context, id string, params domain.RunParams, tpl domain.PromptTemplate) (domain.DatasetItem, error) {
	if err := params.Validate(); err != nil {
		return domain.DatasetItem{}, err
	}
	item, err := o.items.Get(id)
	if err != nil {
		return domain.DatasetItem{}, err
	}

	o.process(ctx, item, params, tpl, dataset.ProcessingPatch())
	return o.items.Get(id)
}

// process は start で項目を PROCESSING にしてキャプションを生成し、結果を反映します。
// 同じ項目への同時要求は1回の呼び出しにまとめます。
func (o *Orchestrator) process(ctx context.Context, item domain.DatasetItem, params domain.RunParams, tpl domain.PromptTemplate, start dataset.Patch) outcome {
	v, _, _ := o.inflight.Do(item.ID, func() (any, error) {
		return o.processOnce(ctx, item, params, tpl, start), nil
	})
	return v.(outcome)
}

func (o *Orchestrator) processOnce(ctx context.Context, item domain.DatasetItem, params domain.RunParams, tpl domain.PromptTemplate, start dataset.Patch) outcome {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return outcomeSkipped
		}
	}

	if _, err := o.items.UpdatePartial(item.ID, start); err != nil {
		if errors.Is(err, dataset.ErrNotSelectable) {
			slog.DebugContext(ctx, "状態が変わった項目を飛ばします", "id", item.ID)
		} else {
			slog.WarnContext(ctx, "項目を PROCESSING にできないため処理を飛ばします", "id", item.ID, "error", err)
		}
		return outcomeSkipped
	}

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	o.recorder.AddInFlight(OpCaption, 1)
	start := time.Now()
	res, err := o.captioner.CaptionImage(callCtx, item.Media, params, tpl)
	elapsed := time.Since(start)
	o.recorder.AddInFlight(OpCaption, -1)

	if err != nil {
		result := OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			result = OutcomeTimeout
		}
		o.recorder.ObserveCall(OpCaption, result, elapsed)
		slog.ErrorContext(ctx, "キャプション生成に失敗しました", "id", item.ID, "file", item.Media.Filename, "outcome", result, "error", err)

		if _, uerr := o.items.UpdatePartial(item.ID, dataset.FailedPatch(dataset.GenericFailureMessage)); uerr != nil {
			slog.WarnContext(ctx, "失敗結果を反映できませんでした", "id", item.ID, "error", uerr)
		}
		return outcomeFailed
	}

	o.recorder.ObserveCall(OpCaption, OutcomeSuccess, elapsed)
	if _, err := o.items.UpdatePartial(item.ID, dataset.CompletedPatch(res)); err != nil {
		slog.WarnContext(ctx, "生成結果を反映できませんでした", "id", item.ID, "error", err)
		return outcomeSkipped
	}
	return outcomeCompleted
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}
