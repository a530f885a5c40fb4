package broadcast

import "github.com/hitoshi/hookgate/internal/model"

// FrameTypeMemberApproved はメンバー承認時のフレームタイプ。
const FrameTypeMemberApproved = "member.approved"

// MemberData はメンバーの配信用データを構築する。
// approved_by/approved_atは設定済みの場合のみ含める。
func MemberData(m *model.Member) map[string]any {
	data := map[string]any{
		"id":          m.ID,
		"external_id": m.ExternalID,
		"app_id":      m.AppID,
		"email":       m.Email,
		"status":      string(m.Status),
		"metadata":    m.Metadata,
		"created_at":  m.CreatedAt,
	}
	if m.ApprovedBy != "" {
		data["approved_by"] = m.ApprovedBy
	}
	if m.ApprovedAt != nil {
		data["approved_at"] = m.ApprovedAt
	}
	return data
}
