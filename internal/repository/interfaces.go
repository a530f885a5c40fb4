// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/hookgate/internal/model"
)

// AppRepository はアプリケーションデータの永続化インターフェース。
type AppRepository interface {
	// Upsert はapp_idをキーにアプリケーションを作成または上書きする。
	// 再登録は意図的な鍵ローテーションであり、既存のシークレットを即座に無効化する。
	// 単一行のアトミックな書き込みで、last-write-winsを許容する。
	Upsert(ctx context.Context, app *model.Application) error

	// FindByAppID は指定app_idのアプリケーションを取得する。見つからない場合はnilを返す。
	FindByAppID(ctx context.Context, appID string) (*model.Application, error)
}

// MemberRepository はメンバーデータの永続化インターフェース。
type MemberRepository interface {
	// Create はメンバーを作成する。
	// external_idによる重複排除は行わず、常に新規行を挿入する（追加専用）。
	Create(ctx context.Context, member *model.Member) error

	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Member, error)

	// List はメンバー一覧をcreated_at昇順で返す。
	// statusが空文字列の場合は全件、それ以外は指定statusのみを返す。
	List(ctx context.Context, status model.MemberStatus) ([]*model.Member, error)

	// UpdateApproval はメンバーをactiveにし、approved_by/approved_atを上書きする。
	// 既にactiveのメンバーに対してもlast-write-winsで再書き込みする（冪等）。
	// 更新後のメンバーを返す。見つからない場合はnilを返す。
	UpdateApproval(ctx context.Context, id, approvedBy string, approvedAt time.Time) (*model.Member, error)
}

// EventRepository はイベントデータの永続化インターフェース。
// イベントは追記専用で、更新・削除は行わない。
type EventRepository interface {
	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error
}
