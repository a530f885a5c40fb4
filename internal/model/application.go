// Package model はドメインモデルを定義する。
package model

import "time"

// Application はWebhookの送信を許可された外部アプリケーションを表す。
// app_idは外部から指定されるグローバル一意の識別子。
type Application struct {
	AppID            string
	Name             string
	WebhookURL       string
	SecretCiphertext string
	CreatedAt        time.Time
}
