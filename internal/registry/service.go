// Package registry はアプリケーション登録と検索を提供する。
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hitoshi/hookgate/internal/model"
	"github.com/hitoshi/hookgate/internal/repository"
)

// secretKeyPrefix は発行するAPIキーの識別用プレフィックス。
const secretKeyPrefix = "sk_live_"

// secretRandomBytes は自動生成するシークレットのランダムバイト数。
const secretRandomBytes = 24

// SecretEncrypter はシークレットの保存時暗号化インターフェース。
// security.SecretCipherの部分集合として定義する。
type SecretEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// URLValidator はwebhook_urlの事前検証インターフェース。
// security.URLGuardServiceの部分集合として定義する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// RegisterInput はアプリケーション登録の入力。
type RegisterInput struct {
	AppID      string
	Name       string
	WebhookURL string
	// ProvidedSecretが指定された場合はそれをシークレットとして使用する
	// （ベンダー発行キーの持ち込みに対応）。空の場合は新規生成する。
	ProvidedSecret string
}

// Service はアプリケーション登録サービス。
type Service struct {
	apps     repository.AppRepository
	cipher   SecretEncrypter
	urlGuard URLValidator
}

// NewService はServiceを生成する。
func NewService(apps repository.AppRepository, cipher SecretEncrypter, urlGuard URLValidator) *Service {
	return &Service{
		apps:     apps,
		cipher:   cipher,
		urlGuard: urlGuard,
	}
}

// Register はアプリケーションをapp_idキーでupsertし、平文シークレットを返す。
// 平文シークレットが呼び出し元に返るのはこの1回のみで、以後は取得できない。
// 既存app_idへの再登録は鍵ローテーションとして扱い、旧シークレットを即座に無効化する。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.Application, string, error) {
	if input.AppID == "" {
		return nil, "", model.NewInvalidAppIDError()
	}

	// webhook_urlが指定された場合のみ検証する（現状アウトバウンド配送には未使用）
	if input.WebhookURL != "" {
		if err := s.urlGuard.ValidateURL(input.WebhookURL); err != nil {
			return nil, "", model.NewInvalidWebhookURLError(err.Error())
		}
	}

	secret := input.ProvidedSecret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate secret: %w", err)
		}
		secret = generated
	}

	ciphertext, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encrypt secret: %w", err)
	}

	app := &model.Application{
		AppID:            input.AppID,
		Name:             input.Name,
		WebhookURL:       input.WebhookURL,
		SecretCiphertext: ciphertext,
		CreatedAt:        time.Now(),
	}

	if err := s.apps.Upsert(ctx, app); err != nil {
		return nil, "", fmt.Errorf("failed to store application: %w", err)
	}

	return app, secret, nil
}

// Lookup は指定app_idのアプリケーションを取得する。見つからない場合はnilを返す。
func (s *Service) Lookup(ctx context.Context, appID string) (*model.Application, error) {
	return s.apps.FindByAppID(ctx, appID)
}

// generateSecret は暗号論的に安全なランダムシークレットを生成する。
// 形式: sk_live_ + 24バイトのランダム値のhex表現
func generateSecret() (string, error) {
	buf := make([]byte, secretRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretKeyPrefix + hex.EncodeToString(buf), nil
}
