// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// minKeyBytes は暗号鍵の最小バイト数（256ビット）。
const minKeyBytes = 32

// blobSeparator はnonceと暗号文を連結するセパレータ。
// blob全体をhexエンコードされた1つのテキストカラムとして保存できる。
const blobSeparator = ":"

// ErrDecryptionFailed は復号失敗を表す。
// blobの形式不正、改ざん、鍵の不一致のいずれでもこのエラーを返し、
// 破損した平文を返すことは決してない。
var ErrDecryptionFailed = errors.New("decryption failed")

// SecretCipher はアプリケーションシークレットの保存時暗号化を行う。
// プロセス全体で単一の対称鍵を使用し、生の鍵素材に触れる唯一のコンポーネント。
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher はhexエンコードされた鍵素材からSecretCipherを生成する。
// 鍵が未設定、hexとして不正、または256ビット未満の場合はエラーを返す。
// これは起動時の致命的な設定エラーであり、弱い鍵で稼働を続けるよりも
// プロセスの起動自体を拒否する。
func NewSecretCipher(hexKey string) (*SecretCipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("encryption key is not set")
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) < minKeyBytes {
		return nil, fmt.Errorf("encryption key must be at least %d bytes, got %d", minKeyBytes, len(key))
	}

	// AES-256として先頭32バイトを使用する
	block, err := aes.NewCipher(key[:minKeyBytes])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretCipher{aead: aead}, nil
}

// Encrypt は平文を暗号化し、自己記述的なblob文字列を返す。
// blobは hex(nonce) + ":" + hex(暗号文+認証タグ) の形式。
// 呼び出しごとに新しいランダムnonceを生成するため、
// 同一平文でも毎回異なるblobが得られる。
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(nonce) + blobSeparator + hex.EncodeToString(sealed), nil
}

// Decrypt はEncryptが生成したblobを復号して平文を返す。
// blobが分割不能・hexとして不正・認証タグ不一致のいずれの場合も
// ErrDecryptionFailedを返す。
func (c *SecretCipher) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, blobSeparator)
	if len(parts) != 2 {
		return "", ErrDecryptionFailed
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}

	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// 改ざんまたは鍵の不一致。詳細は呼び出し元で開示しない。
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
