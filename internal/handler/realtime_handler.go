package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hitoshi/hookgate/internal/broadcast"
	"github.com/hitoshi/hookgate/internal/metrics"
	"github.com/hitoshi/hookgate/internal/middleware"
)

// realtimeWriteTimeout は1フレームの書き込み上限時間。
const realtimeWriteTimeout = 10 * time.Second

// SubscriberHub はリアルタイムハンドラーが必要とする購読管理インターフェース。
type SubscriberHub interface {
	// Subscribe は新しい購読者を登録する。
	Subscribe() *broadcast.Subscriber
	// Unsubscribe は購読者を解除する。
	Unsubscribe(sub *broadcast.Subscriber)
	// SubscriberCount は現在の購読者数を返す。
	SubscriberCount() int
}

// RealtimeHandler はWebSocketによるリアルタイム配信のHTTPハンドラー。
// 受理された全Webhookイベントとメンバー承認を接続中の全購読者にプッシュする。
type RealtimeHandler struct {
	hub         SubscriberHub
	adminSecret string
	collector   metrics.MetricsCollector
	upgrader    websocket.Upgrader
}

// NewRealtimeHandler はRealtimeHandlerを生成する。
func NewRealtimeHandler(hub SubscriberHub, adminSecret string, collector metrics.MetricsCollector) *RealtimeHandler {
	return &RealtimeHandler{
		hub:         hub,
		adminSecret: adminSecret,
		collector:   collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// オリジン制御はCORSミドルウェアと管理シークレット認証に委ねる
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe はリアルタイムチャネルへの接続を処理する。
// GET /realtime?token=<admin-secret>
// tokenクエリパラメータを管理シークレットと照合し、不一致の場合は
// アップグレード前に401で接続を終了する（データは一切送信しない）。
func (h *RealtimeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if !middleware.VerifyAdminSecret(h.adminSecret, token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeは失敗時に自身でエラーレスポンスを書き込む
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := h.hub.Subscribe()
	h.collector.RecordSubscriberCount(h.hub.SubscriberCount())

	slog.Info("realtime subscriber connected",
		slog.Int("subscriber_count", h.hub.SubscriberCount()),
	)

	// 読み取りループ: クライアントからのフレームは利用しないが、
	// 切断検知のために読み続ける
	go func() {
		defer func() {
			h.hub.Unsubscribe(sub)
			h.collector.RecordSubscriberCount(h.hub.SubscriberCount())
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 書き込みループ: 購読解除でフレームチャネルがクローズされると終了する
	for frame := range sub.Frames() {
		conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			slog.Warn("realtime frame write failed", slog.String("error", err.Error()))
			break
		}
	}

	h.hub.Unsubscribe(sub)
	h.collector.RecordSubscriberCount(h.hub.SubscriberCount())
	conn.Close()
}
