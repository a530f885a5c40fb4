package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	WebhookRate     rate.Limit    // Webhook受信のレート（req/sec）。600/60 = 10 req/sec
	WebhookBurst    int           // Webhook受信のバーストサイズ
	AdminRate       rate.Limit    // 管理APIのレート（req/sec）。120/60 = 2 req/sec
	AdminBurst      int           // 管理APIのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
func NewRateLimiterConfig(webhookPerMinute, adminPerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		WebhookRate:     rate.Limit(float64(webhookPerMinute) / 60.0),
		WebhookBurst:    webhookPerMinute,
		AdminRate:       rate.Limit(float64(adminPerMinute) / 60.0),
		AdminBurst:      adminPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: Webhook受信 600 req/min/app、管理API 120 req/min/IP
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(600, 120)
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はキーごとのレート制限を管理する。
// Webhook受信はx-app-idヘッダー、管理APIはクライアントIPをキーとする
// 2種類の独立した制限を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	webhookMu       sync.RWMutex
	webhookLimiters map[string]*keyLimiter

	adminMu       sync.RWMutex
	adminLimiters map[string]*keyLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		webhookLimiters: make(map[string]*keyLimiter),
		adminLimiters:   make(map[string]*keyLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// WebhookMiddleware はWebhook受信エンドポイントのレート制限ミドルウェアを返す。
// x-app-idヘッダーをキーとする。ヘッダーが欠落している場合は制限せず次の
// ハンドラーに委譲する（欠落ヘッダーの拒否は検証パイプラインの責務）。
func (rl *RateLimiter) WebhookMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			appID := r.Header.Get(appIDHeader)
			if appID == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getOrCreateLimiter(&rl.webhookMu, rl.webhookLimiters, appID, rl.config.WebhookRate, rl.config.WebhookBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.WebhookRate)
				slog.Warn("rate limit exceeded",
					slog.String("app_id", appID),
					slog.String("limit_type", "webhook"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware は管理APIのレート制限ミドルウェアを返す。
// クライアントIPをキーとする。Webhook受信のレート制限とは独立に動作する。
func (rl *RateLimiter) AdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := clientIPFromRequest(r)

			limiter := rl.getOrCreateLimiter(&rl.adminMu, rl.adminLimiters, clientIP, rl.config.AdminRate, rl.config.AdminBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.AdminRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", clientIP),
					slog.String("limit_type", "admin"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WebhookLimiterCount は現在管理されているWebhookリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) WebhookLimiterCount() int {
	rl.webhookMu.RLock()
	defer rl.webhookMu.RUnlock()
	return len(rl.webhookLimiters)
}

// AdminLimiterCount は現在管理されている管理APIリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) AdminLimiterCount() int {
	rl.adminMu.RLock()
	defer rl.adminMu.RUnlock()
	return len(rl.adminLimiters)
}

// getOrCreateLimiter はキーのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateLimiter(mu *sync.RWMutex, limiters map[string]*keyLimiter, key string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	kl, exists := limiters[key]
	mu.RUnlock()

	if exists {
		mu.Lock()
		kl.lastAccess = time.Now()
		mu.Unlock()
		return kl.limiter
	}

	mu.Lock()
	defer mu.Unlock()

	// ダブルチェック
	if kl, exists := limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// clientIPFromRequest はRemoteAddrからクライアントIPを抽出する。
func clientIPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.webhookMu.Lock()
	for key, kl := range rl.webhookLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.webhookLimiters, key)
		}
	}
	rl.webhookMu.Unlock()

	rl.adminMu.Lock()
	for key, kl := range rl.adminLimiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.adminLimiters, key)
		}
	}
	rl.adminMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "RATE_LIMIT_EXCEEDED",
		"message":  "リクエスト数が制限を超えました。",
		"category": "system",
		"action":   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	})
}
