// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 呼び出し元に返す原因カテゴリと対処方法を含む。
// 暗号・認可系の失敗では内部詳細（どの段階で失敗したか等）を含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, webhook, member, system
	Action   string // 呼び出し元向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeMissingHeaders      = "MISSING_HEADERS"
	ErrCodeAppNotFound         = "APP_NOT_FOUND"
	ErrCodeSignatureInvalid    = "SIGNATURE_INVALID"
	ErrCodeTimestampOutOfRange = "TIMESTAMP_OUT_OF_RANGE"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeMemberNotFound      = "MEMBER_NOT_FOUND"
	ErrCodeInvalidAppID        = "INVALID_APP_ID"
	ErrCodeInvalidWebhookURL   = "INVALID_WEBHOOK_URL"
	ErrCodeInvalidFilter       = "INVALID_FILTER"
	ErrCodeDecryptionFailed    = "DECRYPTION_FAILED"
)

// NewUnauthorizedError は認可失敗エラーを生成する。
// 管理シークレットの不一致・欠落の両方で同一のエラーを返し、
// どちらが原因かを呼び出し元に開示しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認可に失敗しました。",
		Category: "auth",
		Action:   "正しい管理シークレットをx-admin-secretヘッダーで指定してください。",
	}
}

// NewMissingHeadersError は必須ヘッダー欠落エラーを生成する。
func NewMissingHeadersError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingHeaders,
		Message:  "必須ヘッダーが不足しています。",
		Category: "validation",
		Action:   "x-app-idヘッダーとx-signatureヘッダーの両方を指定してください。",
	}
}

// NewAppNotFoundError は未登録アプリケーションエラーを生成する。
func NewAppNotFoundError(appID string) *APIError {
	return &APIError{
		Code:     ErrCodeAppNotFound,
		Message:  fmt.Sprintf("指定されたアプリケーションが見つかりません: %s", appID),
		Category: "webhook",
		Action:   "アプリケーションIDを確認するか、管理APIでアプリケーションを登録してください。",
	}
}

// NewSignatureInvalidError は署名不一致エラーを生成する。
// 期待値との差分等の内部詳細は含めない。
func NewSignatureInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSignatureInvalid,
		Message:  "署名の検証に失敗しました。",
		Category: "auth",
		Action:   "アプリケーションのシークレットでリクエストボディのHMAC-SHA256署名を計算し、x-signatureヘッダーに指定してください。",
	}
}

// NewTimestampOutOfRangeError はリプレイ許容窓の超過エラーを生成する。
func NewTimestampOutOfRangeError() *APIError {
	return &APIError{
		Code:     ErrCodeTimestampOutOfRange,
		Message:  "タイムスタンプが許容範囲外です。",
		Category: "validation",
		Action:   "x-timestampヘッダーにサーバー時刻から5分以内のエポックミリ秒を指定してください。",
	}
}

// NewInvalidPayloadError はペイロード解析失敗エラーを生成する。
func NewInvalidPayloadError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式のボディを送信してください。",
	}
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError(memberID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", memberID),
		Category: "member",
		Action:   "メンバーIDを確認してください。",
	}
}

// NewInvalidAppIDError はapp_id欠落・不正エラーを生成する。
func NewInvalidAppIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAppID,
		Message:  "app_idが指定されていません。",
		Category: "validation",
		Action:   "リクエストボディにapp_idを指定してください。",
	}
}

// NewInvalidWebhookURLError は不正なwebhook_urlエラーを生成する。
func NewInvalidWebhookURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWebhookURL,
		Message:  fmt.Sprintf("無効なwebhook_urlです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まる公開URLを指定してください。プライベートIPやループバックへのURLは登録できません。",
	}
}

// NewInvalidFilterError は無効なstatusフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なstatusフィルタです: %s", filter),
		Category: "validation",
		Action:   "statusにはpendingまたはactiveを指定してください。",
	}
}

// NewDecryptionFailedError はシークレット復号失敗エラーを生成する。
// 改ざんまたは鍵の不一致を示すが、詳細はログのみに記録する。
func NewDecryptionFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeDecryptionFailed,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
