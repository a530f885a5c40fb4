// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/hitoshi/hookgate/internal/model"
)

// adminSecretHeader は管理APIの認可用ヘッダー名。
const adminSecretHeader = "x-admin-secret"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// adminContextKey はリクエストコンテキストに管理プリンシパルを格納するためのキー。
var adminContextKey = contextKey("admin_principal")

// VerifyAdminSecret は提示されたシークレットを定数時間比較で照合する。
// 管理REST APIとリアルタイムチャネルの両方で共通の判定を使用する。
// どちらの値も空の場合は常にfalseを返す。
func VerifyAdminSecret(adminSecret, presented string) bool {
	if adminSecret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(adminSecret), []byte(presented)) == 1
}

// NewAdminAuthMiddleware はx-admin-secretヘッダーを検証するミドルウェアを返す。
// 不一致・欠落のいずれも副作用なしで401を返し、どの部分の照合に失敗したかは
// 開示しない。検証を通過したリクエストには管理プリンシパルをコンテキストに注入する。
func NewAdminAuthMiddleware(adminSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(adminSecretHeader)
			if !VerifyAdminSecret(adminSecret, presented) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), adminContextKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminFromContext はリクエストが管理プリンシパルとして認可済みかを返す。
// 管理認可ミドルウェアを通過したリクエストでのみ有効。
func AdminFromContext(ctx context.Context) (bool, error) {
	admin, ok := ctx.Value(adminContextKey).(bool)
	if !ok || !admin {
		return false, fmt.Errorf("admin principal not found in context")
	}
	return true, nil
}

// ContextWithAdmin はコンテキストに管理プリンシパルを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminContextKey, true)
}
