// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Member は登録アプリケーションのエンドユーザーを表す。
// member.createdイベントの受理によって作成される。
type Member struct {
	ID         string
	ExternalID string
	AppID      string
	Email      string
	Status     MemberStatus
	Metadata   json.RawMessage
	CreatedAt  time.Time
	ApprovedBy string
	ApprovedAt *time.Time
}

// MemberStatus はメンバーの承認状態を表す。
// 状態遷移はpending → activeのみで、管理APIのapprove操作によってのみ行われる。
type MemberStatus string

const (
	// MemberStatusPending は承認待ち状態。
	MemberStatusPending MemberStatus = "pending"
	// MemberStatusActive は承認済み状態。
	MemberStatusActive MemberStatus = "active"
)

// ValidStatusFilter はメンバー一覧のstatusフィルタとして有効な値かを判定する。
// 空文字列は「全件」を意味するため有効とする。
func ValidStatusFilter(s string) bool {
	switch MemberStatus(s) {
	case "", MemberStatusPending, MemberStatusActive:
		return true
	default:
		return false
	}
}
