// Package member はメンバーの一覧取得と承認を提供する。
package member

import (
	"context"
	"time"

	"github.com/hitoshi/hookgate/internal/broadcast"
	"github.com/hitoshi/hookgate/internal/metrics"
	"github.com/hitoshi/hookgate/internal/model"
	"github.com/hitoshi/hookgate/internal/repository"
)

// Service はメンバー管理サービス。
// statusの遷移（pending → active）は管理API経由のこのサービスのみが行い、
// 受信Webhookイベントからは決して行われない。
type Service struct {
	members     repository.MemberRepository
	broadcaster broadcast.Broadcaster
	collector   metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(members repository.MemberRepository, broadcaster broadcast.Broadcaster, collector metrics.MetricsCollector) *Service {
	return &Service{
		members:     members,
		broadcaster: broadcaster,
		collector:   collector,
		now:         time.Now,
	}
}

// List はメンバー一覧を返す。
// statusFilterが空文字列の場合は全件、それ以外は指定statusのみを返す。
// 無効なフィルタ値はエラーを返す。
func (s *Service) List(ctx context.Context, statusFilter string) ([]*model.Member, error) {
	if !model.ValidStatusFilter(statusFilter) {
		return nil, model.NewInvalidFilterError(statusFilter)
	}
	return s.members.List(ctx, model.MemberStatus(statusFilter))
}

// Approve はメンバーを承認し、approved_by/approved_atを設定する。
// 既にactiveのメンバーへの再承認はエラーとせず、last-write-winsで
// 各フィールドを新しい値に書き換える（冪等）。
// 承認後のメンバーをブロードキャストする。
// 見つからない場合はMEMBER_NOT_FOUNDエラーを返す。
func (s *Service) Approve(ctx context.Context, memberID, approvedBy string) (*model.Member, error) {
	updated, err := s.members.UpdateApproval(ctx, memberID, approvedBy, s.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, model.NewMemberNotFoundError(memberID)
	}

	s.collector.RecordMemberApproved()
	s.broadcaster.Broadcast(broadcast.Frame{
		Type: broadcast.FrameTypeMemberApproved,
		Data: broadcast.MemberData(updated),
	})
	s.collector.RecordBroadcastFrame(broadcast.FrameTypeMemberApproved)

	return updated, nil
}
