// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Event は署名検証を通過した受信Webhookの記録を表す。
// typeが未知のイベントでも必ず1件のEventとして保存される（追記専用）。
type Event struct {
	ID         string
	AppID      string
	Type       string
	Payload    json.RawMessage
	ReceivedAt time.Time
}
