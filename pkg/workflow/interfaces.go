package workflow

import (
	"time"

	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/domain"
)

// ItemStore は、オーケストレーターが項目の選択と状態更新に使う契約です。
// *dataset.Collection がこれを満たします。
type ItemStore interface {
	SelectPending() []domain.DatasetItem
	Get(id string) (domain.DatasetItem, error)
	UpdatePartial(id string, p dataset.Patch) (domain.DatasetItem, error)
}

// Recorder は生成呼び出しの計測値を受け取ります。
type Recorder interface {
	// ObserveCall は1回の外部呼び出しの結果（"success" / "error" / "timeout"）と所要時間を記録します。
	ObserveCall(op, outcome string, elapsed time.Duration)
	// AddInFlight は実行中の呼び出し数を増減します。
	AddInFlight(op string, delta int)
}

// 計測ラベル
const (
	OpCaption   = "caption"
	OpInference = "inference"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

type noopRecorder struct{}

func (noopRecorder) ObserveCall(string, string, time.Duration) {}
func (noopRecorder) AddInFlight(string, int)                   {}
