package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hookgate/internal/model"
	"github.com/hitoshi/hookgate/internal/registry"
)

// approvedByAdmin は管理API経由の承認で記録される承認者名。
const approvedByAdmin = "admin"

// RegistryServiceInterface は管理ハンドラーが必要とするアプリケーション登録サービスインターフェース。
type RegistryServiceInterface interface {
	// Register はアプリケーションを登録または更新し、平文シークレットを返す。
	Register(ctx context.Context, input registry.RegisterInput) (*model.Application, string, error)
}

// MemberServiceInterface は管理ハンドラーが必要とするメンバー管理サービスインターフェース。
type MemberServiceInterface interface {
	// List はメンバー一覧を取得する。
	List(ctx context.Context, statusFilter string) ([]*model.Member, error)
	// Approve はメンバーを承認する。
	Approve(ctx context.Context, memberID, approvedBy string) (*model.Member, error)
}

// AdminHandler は管理APIのHTTPハンドラー。
type AdminHandler struct {
	registry RegistryServiceInterface
	members  MemberServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(registry RegistryServiceInterface, members MemberServiceInterface) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		members:  members,
	}
}

// registerAppRequest はアプリケーション登録リクエストのボディ。
type registerAppRequest struct {
	AppID          string `json:"app_id"`
	Name           string `json:"name"`
	WebhookURL     string `json:"webhook_url"`
	ProvidedAPIKey string `json:"provided_api_key"`
}

// registerAppResponse はアプリケーション登録レスポンス。
// APIKeyの平文はこの一度きりのレスポンスでのみ返され、以降どのAPIからも取得できない。
type registerAppResponse struct {
	AppID  string `json:"app_id"`
	APIKey string `json:"api_key"`
}

// memberResponse はメンバー情報のAPIレスポンス。
type memberResponse struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id"`
	AppID      string          `json:"app_id"`
	Email      string          `json:"email"`
	Status     string          `json:"status"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	ApprovedBy *string         `json:"approved_by"`
	ApprovedAt *time.Time      `json:"approved_at"`
}

// RegisterApp はアプリケーションを登録する。
// POST /api/admin/apps/register
func (h *AdminHandler) RegisterApp(w http.ResponseWriter, r *http.Request) {
	var req registerAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.AppID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAppIDError())
		return
	}

	app, plainKey, err := h.registry.Register(r.Context(), registry.RegisterInput{
		AppID:          req.AppID,
		Name:           req.Name,
		WebhookURL:     req.WebhookURL,
		ProvidedSecret: req.ProvidedAPIKey,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, registerAppResponse{
		AppID:  app.AppID,
		APIKey: plainKey,
	})
}

// ListMembers はメンバー一覧を取得する。
// GET /api/admin/members?status=<pending|active>
func (h *AdminHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")

	members, err := h.members.List(r.Context(), statusFilter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 空一覧はnullではなく[]で返す
	responses := make([]memberResponse, 0, len(members))
	for _, m := range members {
		responses = append(responses, toMemberResponse(m))
	}

	writeJSONResponse(w, http.StatusOK, responses)
}

// ApproveMember はメンバーを承認する。
// POST /api/admin/members/:id/approve
func (h *AdminHandler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	member, err := h.members.Approve(r.Context(), memberID, approvedByAdmin)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toMemberResponse(member))
}

// toMemberResponse はmodel.MemberからAPIレスポンスに変換する。
func toMemberResponse(m *model.Member) memberResponse {
	resp := memberResponse{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		AppID:      m.AppID,
		Email:      m.Email,
		Status:     string(m.Status),
		Metadata:   m.Metadata,
		CreatedAt:  m.CreatedAt,
		ApprovedAt: m.ApprovedAt,
	}
	if m.ApprovedBy != "" {
		approvedBy := m.ApprovedBy
		resp.ApprovedBy = &approvedBy
	}
	return resp
}
