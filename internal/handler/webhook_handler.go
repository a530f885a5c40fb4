package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/hookgate/internal/model"
)

// webhookBodyLimit は受信ボディの最大サイズ（1MiB）。
const webhookBodyLimit = 1 << 20

// IngestServiceInterface はWebhookハンドラーが必要とするサービスインターフェース。
type IngestServiceInterface interface {
	// Ingest は署名検証からイベント永続化・ブロードキャストまでの受信処理を実行する。
	Ingest(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error)
}

// WebhookHandler は署名付きWebhook受信のHTTPハンドラー。
type WebhookHandler struct {
	service IngestServiceInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service IngestServiceInterface) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// okResponse はWebhook受理時のレスポンスボディ。
type okResponse struct {
	OK bool `json:"ok"`
}

// Receive は署名付きWebhookを受信する。
// POST /webhooks/receive
// ボディはJSON解析やデコードを一切行わず生のバイト列のまま検証に渡す。
// 署名はこの生バイト列に対して計算されるため、解析後の再シリアライズでは
// 検証が壊れる。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}

	appID := r.Header.Get("x-app-id")
	claimedSig := r.Header.Get("x-signature")
	timestamp := r.Header.Get("x-timestamp")

	if _, _, err := h.service.Ingest(r.Context(), appID, claimedSig, timestamp, rawBody); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, okResponse{OK: true})
}
