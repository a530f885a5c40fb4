package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/hookgate/internal/metrics"
	"github.com/hitoshi/hookgate/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthChecker はDB接続の死活確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthCheckTimeout はヘルスチェック時のDB疎通確認の上限時間。
const healthCheckTimeout = 2 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RequestTimeout    time.Duration
	RateLimiter       *middleware.RateLimiter
	AdminSecret       string
	Logger            *slog.Logger

	// サービス
	IngestService   IngestServiceInterface
	RegistryService RegistryServiceInterface
	MemberService   MemberServiceInterface

	// リアルタイム配信
	Hub       SubscriberHub
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeaders → Logging → Recovery → (ルートごと) Timeout / RateLimit / AdminAuth
//
// リアルタイムチャネル（/realtime）は長命接続のためタイムアウトの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewRecoveryMiddleware())

	webhookHandler := NewWebhookHandler(deps.IngestService)
	adminHandler := NewAdminHandler(deps.RegistryService, deps.MemberService)
	realtimeHandler := NewRealtimeHandler(deps.Hub, deps.AdminSecret, deps.Collector)

	// ヘルスチェック（DB疎通確認を含む）
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := deps.HealthChecker.PingContext(ctx); err != nil {
				writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusメトリクス
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// Webhook受信
	// ミドルウェアスタック: Timeout → RateLimit(Webhook)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTimeoutMiddleware(deps.RequestTimeout))
		r.Use(deps.RateLimiter.WebhookMiddleware())
		r.Post("/webhooks/receive", webhookHandler.Receive)
	})

	// 管理API
	// ミドルウェアスタック: Timeout → RateLimit(Admin) → AdminAuth
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTimeoutMiddleware(deps.RequestTimeout))
		r.Use(deps.RateLimiter.AdminMiddleware())
		r.Use(middleware.NewAdminAuthMiddleware(deps.AdminSecret))

		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/apps/register", adminHandler.RegisterApp)

			r.Route("/members", func(r chi.Router) {
				r.Get("/", adminHandler.ListMembers)
				r.Post("/{id}/approve", adminHandler.ApproveMember)
			})
		})
	})

	// リアルタイムチャネル（tokenクエリパラメータで認証、タイムアウト対象外）
	r.Get("/realtime", realtimeHandler.Subscribe)

	return r
}
