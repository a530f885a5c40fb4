package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/hookgate/internal/model"
)

// --- モック定義 ---

// mockIngestService はIngestServiceInterfaceのモック実装。
type mockIngestService struct {
	ingestFn func(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error)
}

func (m *mockIngestService) Ingest(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, appID, claimedSig, timestampHeader, rawBody)
	}
	return &model.Event{}, nil, nil
}

func newWebhookRequest(body []byte, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/receive", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// --- POST /webhooks/receive テスト ---

func TestWebhookHandler_Accepted(t *testing.T) {
	body := []byte(`{"type":"member.created","data":{"email":"a@example.com"}}`)

	svc := &mockIngestService{
		ingestFn: func(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error) {
			if appID != "app-1" {
				t.Errorf("appID = %q, want app-1", appID)
			}
			if claimedSig != "sha256=abc" {
				t.Errorf("claimedSig = %q, want sha256=abc", claimedSig)
			}
			if timestampHeader != "1723200000000" {
				t.Errorf("timestampHeader = %q, want 1723200000000", timestampHeader)
			}
			// 生のバイト列がそのまま渡される
			if !bytes.Equal(rawBody, body) {
				t.Errorf("rawBody = %s, want raw request body", rawBody)
			}
			return &model.Event{Type: "member.created"}, nil, nil
		},
	}

	h := NewWebhookHandler(svc)

	req := newWebhookRequest(body, map[string]string{
		"x-app-id":    "app-1",
		"x-signature": "sha256=abc",
		"x-timestamp": "1723200000000",
	})
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["ok"] != true {
		t.Errorf(`response = %v, want {"ok":true}`, resp)
	}
}

func TestWebhookHandler_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"missing headers", model.NewMissingHeadersError(), http.StatusBadRequest},
		{"stale timestamp", model.NewTimestampOutOfRangeError(), http.StatusBadRequest},
		{"invalid json", model.NewInvalidPayloadError(), http.StatusBadRequest},
		{"bad signature", model.NewSignatureInvalidError(), http.StatusUnauthorized},
		{"unknown app", model.NewAppNotFoundError("app-x"), http.StatusNotFound},
		{"decryption failure", model.NewDecryptionFailedError(), http.StatusInternalServerError},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockIngestService{
				ingestFn: func(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error) {
					return nil, nil, tc.serviceErr
				},
			}

			h := NewWebhookHandler(svc)

			req := newWebhookRequest([]byte("{}"), map[string]string{
				"x-app-id":    "app-1",
				"x-signature": "sha256=abc",
			})
			w := httptest.NewRecorder()

			h.Receive(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}

			// エラーレスポンスは統一フォーマットのJSON
			var resp map[string]any
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if _, ok := resp["code"]; !ok {
				t.Errorf("error response should contain a code field, got %v", resp)
			}
		})
	}
}

func TestWebhookHandler_MissingHeadersPassedThrough(t *testing.T) {
	// ヘッダー検証はサービス層の責務で、ハンドラーは空文字のまま委譲する
	var gotAppID, gotSig string
	svc := &mockIngestService{
		ingestFn: func(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error) {
			gotAppID, gotSig = appID, claimedSig
			return nil, nil, model.NewMissingHeadersError()
		},
	}

	h := NewWebhookHandler(svc)

	req := newWebhookRequest([]byte("{}"), nil)
	w := httptest.NewRecorder()

	h.Receive(w, req)

	if gotAppID != "" || gotSig != "" {
		t.Errorf("headers = (%q, %q), want empty", gotAppID, gotSig)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
