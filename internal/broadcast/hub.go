// Package broadcast は接続中の認証済みサブスクライバーへの
// リアルタイム配信を提供する。
package broadcast

import (
	"log/slog"
	"sync"
)

// defaultBufferSize はサブスクライバーごとの送信バッファサイズ。
const defaultBufferSize = 16

// Frame はサブスクライバーに配信するJSONフレームを表す。
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcaster はイベント配信のインターフェース。
// サービス層から利用する。
type Broadcaster interface {
	Broadcast(frame Frame)
}

// Subscriber は接続中の1サブスクライバーを表す。
// 接続ライフサイクル（認証済み接続時の追加、切断時の削除）はハンドラー側で
// Subscribe/Unsubscribeを通じて管理する。
type Subscriber struct {
	frames chan Frame
}

// Frames は配信フレームの受信チャネルを返す。
// Unsubscribeが呼ばれるとチャネルはクローズされる。
func (s *Subscriber) Frames() <-chan Frame {
	return s.frames
}

// Hub はサブスクライバー集合を所有し、全員へのファンアウトを行う。
// 配信は至多1回（at-most-once）で、配信確認も履歴の保持も行わない。
// 接続後に発生したフレームのみが届く。
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	bufferSize  int
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe は新しいサブスクライバーを登録して返す。
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		frames: make(chan Frame, h.bufferSize),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe はサブスクライバーを登録解除し、受信チャネルをクローズする。
// 既に解除済みの場合は何もしない。
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.frames)
}

// Broadcast は全サブスクライバーにフレームを配信する。
// 送信バッファが満杯のサブスクライバーへのフレームは破棄する
// （遅い受信者が全体の配信を遅延させないため）。
func (h *Hub) Broadcast(frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.frames <- frame:
		default:
			slog.Warn("dropping broadcast frame for slow subscriber",
				slog.String("frame_type", frame.Type),
			)
		}
	}
}

// SubscriberCount は現在接続中のサブスクライバー数を返す。
// メトリクスおよびテスト用。
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// compile-time interface check
var _ Broadcaster = (*Hub)(nil)
