package domain

// ItemStatus はデータセット項目のライフサイクル上の状態です。
type ItemStatus string

const (
	StatusPending    ItemStatus = "PENDING"
	StatusProcessing ItemStatus = "PROCESSING"
	StatusCompleted  ItemStatus = "COMPLETED"
	StatusError      ItemStatus = "ERROR"
)

// ItemStatuses はすべての状態を遷移順に返します。
func ItemStatuses() []ItemStatus {
	return []ItemStatus{StatusPending, StatusProcessing, StatusCompleted, StatusError}
}

// allowedTransitions は状態遷移表です。PENDING へ戻る遷移は存在しません。
var allowedTransitions = map[ItemStatus][]ItemStatus{
	StatusPending:    {StatusProcessing},
	StatusError:      {StatusProcessing},
	StatusCompleted:  {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusError},
}

// CanTransition は from から to への遷移が許可されているかを返します。
// 同じ状態への更新（キャプションの手動編集など）は常に許可されます。
func CanTransition(from, to ItemStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Media は項目が排他的に所有する元画像です。
type Media struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// DatasetItem はデータセットの1枚分の画像とキャプションです。
type DatasetItem struct {
	ID                string     `json:"id"`
	Media             Media      `json:"media"`
	PreviewHandle     string     `json:"previewUrl"`
	Caption           string     `json:"caption"`
	SuggestedFilename string     `json:"suggestedFilename"`
	Status            ItemStatus `json:"status"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
}

// IsSelectable は一括生成の対象（PENDING または ERROR）かどうかを返します。
func (it DatasetItem) IsSelectable() bool {
	return it.Status == StatusPending || it.Status == StatusError
}
