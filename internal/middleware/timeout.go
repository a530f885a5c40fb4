package middleware

import (
	"context"
	"net/http"
	"time"
)

// NewTimeoutMiddleware はリクエスト処理に上限時間を設けるミドルウェアを返す。
// 期限を超えたリクエストのコンテキストはキャンセルされ、ストアアクセス等の
// 途中の処理が中断される。再送は送信側アプリケーションの責務とする。
func NewTimeoutMiddleware(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
