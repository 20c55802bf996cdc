package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	// WriteTimeout は SSE クライアント1件への書き込み上限です。
	WriteTimeout = 2 * time.Second
	// eventBuffer は配信待ちイベントの上限です。溢れた分は捨てます。
	eventBuffer = 256
)

// Client は接続中の SSE クライアントです。
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}

	mu sync.Mutex
}

// send は1件のメッセージを書き込んでフラッシュします。
func (c *Client) send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.Writer.Write(message); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// Broadcaster は SSE クライアントを管理し、項目の変更を全員に配信します。
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextID  int
	queue   chan any
}

// NewBroadcaster は Broadcaster を初期化します。配信には Run の起動が必要です。
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
		queue:   make(chan any, eventBuffer),
	}
}

// Run は ctx が終わるまでキューのイベントを順に配信します。
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-b.queue:
			b.Broadcast(v)
		}
	}
}

// Publish はイベントをキューに積みます。呼び出し元をブロックしません。
func (b *Broadcaster) Publish(v any) {
	select {
	case b.queue <- v:
	default:
		slog.Warn("SSE の配信キューが一杯のためイベントを破棄しました")
	}
}

// AddClient は新しい接続を登録します。
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ストリーミングに対応していません")
	}

	b.mu.Lock()
	b.nextID++
	c := &Client{
		ID:      fmt.Sprintf("client-%d", b.nextID),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[c.ID] = c
	total := len(b.clients)
	b.mu.Unlock()

	slog.Debug("SSE クライアントが接続しました", "client", c.ID, "total", total)
	return c, nil
}

// RemoveClient は接続を外し、Done を閉じます。
func (b *Broadcaster) RemoveClient(c *Client) {
	b.remove(c.ID)
	closeOnce(c)
}

func (b *Broadcaster) remove(id string) *Client {
	b.mu.Lock()
	c, ok := b.clients[id]
	delete(b.clients, id)
	total := len(b.clients)
	b.mu.Unlock()

	if ok {
		slog.Debug("SSE クライアントを切断しました", "client", id, "total", total)
	}
	return c
}

func closeOnce(c *Client) {
	if c == nil || c.Done == nil {
		return
	}
	select {
	case <-c.Done:
	default:
		close(c.Done)
	}
}

// Broadcast は全クライアントへ data を JSON で送ります。
// 書き込みに失敗したかタイムアウトしたクライアントは外します。
func (b *Broadcaster) Broadcast(data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("SSE データの JSON 変換に失敗しました", "error", err)
		return
	}
	message := []byte(fmt.Sprintf("data: %s\n\n", payload))

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	dead := make(chan string, len(clients))
	var wg sync.WaitGroup
	for _, c := range clients {
		select {
		case <-c.Done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			b.writeTo(c, message, dead)
		}(c)
	}
	wg.Wait()
	close(dead)

	for id := range dead {
		closeOnce(b.remove(id))
	}
}

func (b *Broadcaster) writeTo(c *Client, message []byte, dead chan<- string) {
	result := make(chan error, 1)
	go func() { result <- c.send(message) }()

	select {
	case err := <-result:
		if err != nil {
			slog.Debug("SSE クライアントへの書き込みに失敗しました", "client", c.ID, "error", err)
			dead <- c.ID
		}
	case <-time.After(WriteTimeout):
		slog.Warn("SSE の書き込みがタイムアウトしました", "client", c.ID, "timeout", WriteTimeout)
		dead <- c.ID
	case <-c.Done:
	}
}

// ClientCount は接続中のクライアント数を返します。
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP は SSE 接続を受け付け、切断されるまで保持します。
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(c)

	if err := c.send([]byte(fmt.Sprintf("data: {\"type\":\"connected\",\"clientId\":%q}\n\n", c.ID))); err != nil {
		return
	}

	select {
	case <-r.Context().Done():
	case <-c.Done:
	}
}
