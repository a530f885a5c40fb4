// Package signature はWebhook署名の検証とリプレイ防止を提供する。
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/hookgate/internal/model"
)

// signaturePrefix は署名ヘッダーの任意プレフィックス。比較前に除去する。
const signaturePrefix = "sha256="

// AppFinder はアプリケーション検索に必要なインターフェース。
// registry.Serviceの部分集合として定義する。
type AppFinder interface {
	Lookup(ctx context.Context, appID string) (*model.Application, error)
}

// SecretDecrypter は保存済みシークレットの復号インターフェース。
// security.SecretCipherの部分集合として定義する。
type SecretDecrypter interface {
	Decrypt(blob string) (string, error)
}

// Verifier はHMAC-SHA256署名の検証とタイムスタンプのリプレイ防止を行う。
// 検証は純粋な読み取り操作で、永続化の副作用を持たない。
type Verifier struct {
	apps   AppFinder
	cipher SecretDecrypter
	window time.Duration
	now    func() time.Time
}

// NewVerifier はVerifierを生成する。
// windowはタイムスタンプの許容窓（サーバー時刻との差の上限）。
func NewVerifier(apps AppFinder, cipher SecretDecrypter, window time.Duration) *Verifier {
	return &Verifier{
		apps:   apps,
		cipher: cipher,
		window: window,
		now:    time.Now,
	}
}

// Verify は署名とタイムスタンプを検証する。
//
// 検証順序:
//  1. タイムスタンプが指定されている場合、許容窓を超えていれば
//     暗号処理を行う前にTIMESTAMP_OUT_OF_RANGEで失敗する。
//     タイムスタンプ省略は許容する（リプレイ防止はベストエフォート）。
//  2. アプリケーションを解決する。未登録ならAPP_NOT_FOUND。
//  3. 保存済みシークレットを復号する。
//  4. 受信した生のバイト列そのものに対してHMAC-SHA256を計算する。
//     再シリアライズした形ではなくバイト単位で一致させる必要がある。
//  5. sha256=プレフィックスを除去し、定数時間比較で照合する。
//     長さ不一致を含むあらゆる不一致はSIGNATURE_INVALIDとして扱う。
func (v *Verifier) Verify(ctx context.Context, appID string, rawBody []byte, claimedSig string, timestampMillis *int64) error {
	if timestampMillis != nil {
		claimed := time.UnixMilli(*timestampMillis)
		diff := v.now().Sub(claimed)
		if diff < 0 {
			diff = -diff
		}
		if diff > v.window {
			return model.NewTimestampOutOfRangeError()
		}
	}

	app, err := v.apps.Lookup(ctx, appID)
	if err != nil {
		return err
	}
	if app == nil {
		return model.NewAppNotFoundError(appID)
	}

	secret, err := v.cipher.Decrypt(app.SecretCiphertext)
	if err != nil {
		// 保存済みシークレットの改ざんまたは鍵の不一致。詳細はログのみに記録する。
		slog.Error("failed to decrypt application secret",
			slog.String("app_id", appID),
		)
		return model.NewDecryptionFailedError()
	}

	expected := computeSignature([]byte(secret), rawBody)
	claimed := strings.TrimPrefix(claimedSig, signaturePrefix)

	if !hmac.Equal([]byte(expected), []byte(claimed)) {
		return model.NewSignatureInvalidError()
	}

	return nil
}

// computeSignature はHMAC-SHA256署名のhex表現を計算する。
func computeSignature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign は指定シークレットでペイロードに署名し、sha256=プレフィックス付きの
// 署名文字列を返す。テストおよび送信側実装の参考用。
func Sign(secret string, payload []byte) string {
	return signaturePrefix + computeSignature([]byte(secret), payload)
}
