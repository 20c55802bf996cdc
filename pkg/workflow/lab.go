package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/generator"
)

// ErrLabBusy は推論ラボで別の生成が実行中であることを示します。
var ErrLabBusy = errors.New("推論プロンプトを生成中です")

// Lab は推論ラボの単一スロットです。同時に実行できる生成は1つだけで、
// 失敗時は直前のプロンプトを残します。
type Lab struct {
	composer generator.PromptComposer
	timeout  time.Duration
	recorder Recorder

	busy   atomic.Bool
	mu     sync.RWMutex
	prompt string
}

// NewLab は Lab を初期化します。
func NewLab(composer generator.PromptComposer, timeout time.Duration, recorder Recorder) (*Lab, error) {
	if composer == nil {
		return nil, fmt.Errorf("PromptComposer は必須です")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Lab{composer: composer, timeout: timeout, recorder: recorder}, nil
}

// Generate はアイデアまたは参照画像から推論プロンプトを生成し、スロットに保存します。
func (l *Lab) Generate(ctx context.Context, params domain.InferenceParams, tpl domain.PromptTemplate) (domain.InferenceResult, error) {
	if err := params.Validate(); err != nil {
		return domain.InferenceResult{}, err
	}
	if !l.busy.CompareAndSwap(false, true) {
		return domain.InferenceResult{}, ErrLabBusy
	}
	defer l.busy.Store(false)

	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if l.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	l.recorder.AddInFlight(OpInference, 1)
	start := time.Now()
	res, err := l.composer.ComposePrompt(callCtx, params, tpl)
	elapsed := time.Since(start)
	l.recorder.AddInFlight(OpInference, -1)

	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		l.recorder.ObserveCall(OpInference, outcome, elapsed)
		slog.ErrorContext(ctx, "推論プロンプトの生成に失敗しました", "style", params.Style, "error", err)
		return domain.InferenceResult{}, err
	}

	l.recorder.ObserveCall(OpInference, OutcomeSuccess, elapsed)
	l.mu.Lock()
	l.prompt = res.Prompt
	l.mu.Unlock()
	return res, nil
}

// Prompt は最後に成功した生成結果を返します。
func (l *Lab) Prompt() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prompt
}

// Busy は生成中かどうかを返します。
func (l *Lab) Busy() bool {
	return l.busy.Load()
}
