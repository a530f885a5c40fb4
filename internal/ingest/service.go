// Package ingest はWebhook受信のインジェストパイプラインを提供する。
// トランスポート非依存で、HTTPハンドラーはプラットフォームのリクエストを
// Ingest呼び出しに変換する薄いアダプタとして実装する。
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/hookgate/internal/broadcast"
	"github.com/hitoshi/hookgate/internal/metrics"
	"github.com/hitoshi/hookgate/internal/model"
	"github.com/hitoshi/hookgate/internal/repository"
)

// EventTypeMemberCreated はメンバー作成として解釈されるイベントタイプ。
const EventTypeMemberCreated = "member.created"

// SignatureVerifier は署名検証のインターフェース。
// signature.Verifierの部分集合として定義する。
type SignatureVerifier interface {
	Verify(ctx context.Context, appID string, rawBody []byte, claimedSig string, timestampMillis *int64) error
}

// Service はインジェストパイプライン。
// 検証 → イベント永続化 → 既知タイプの解釈 → ブロードキャスト を統括する。
type Service struct {
	verifier    SignatureVerifier
	events      repository.EventRepository
	members     repository.MemberRepository
	broadcaster broadcast.Broadcaster
	collector   metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	verifier SignatureVerifier,
	events repository.EventRepository,
	members repository.MemberRepository,
	broadcaster broadcast.Broadcaster,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		verifier:    verifier,
		events:      events,
		members:     members,
		broadcaster: broadcaster,
		collector:   collector,
		now:         time.Now,
	}
}

// webhookPayload は受信ボディから解釈するフィールドのみを持つ。
// ボディ全体は解釈の成否に関わらずそのまま保存される。
type webhookPayload struct {
	Type string      `json:"type"`
	Data *memberData `json:"data"`
}

// memberData はmember.createdイベントのdataオブジェクト。
type memberData struct {
	ExternalID string          `json:"external_id"`
	Email      string          `json:"email"`
	Metadata   json.RawMessage `json:"metadata"`
}

// Ingest は受信Webhookを検証し、イベントとして永続化する。
//
// 処理順序:
//  1. app-idヘッダーと署名ヘッダーの両方が必須。欠落は即時拒否。
//  2. リプレイガード + 署名検証。失敗は理由別の拒否として返す。
//  3. JSONの解析は署名検証の成功後にのみ行う
//     （検証前に解析すると未認証入力でパーサーを探られるため）。
//  4. 検証済みの整形式ペイロードは、typeが既知かに関わらず必ず1件の
//     Eventとして保存する。
//  5. type == "member.created" かつ dataオブジェクトが存在する場合、
//     pending状態のメンバーを新規作成する。external_idによる重複排除は
//     行わず、常に追加する。
//  6. 受理したイベント（および作成したメンバー）をブロードキャストする。
//
// 戻り値は保存したイベントと、作成した場合のみメンバー（それ以外はnil）。
func (s *Service) Ingest(ctx context.Context, appID, claimedSig, timestampHeader string, rawBody []byte) (*model.Event, *model.Member, error) {
	s.collector.RecordWebhookReceived()

	if appID == "" || claimedSig == "" {
		return s.reject(model.NewMissingHeadersError())
	}

	timestampMillis, err := parseTimestamp(timestampHeader)
	if err != nil {
		return s.reject(model.NewTimestampOutOfRangeError())
	}

	verifyStart := s.now()
	if err := s.verifier.Verify(ctx, appID, rawBody, claimedSig, timestampMillis); err != nil {
		s.collector.RecordVerifyLatency(s.now().Sub(verifyStart))
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return s.reject(apiErr)
		}
		return nil, nil, err
	}
	s.collector.RecordVerifyLatency(s.now().Sub(verifyStart))

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return s.reject(model.NewInvalidPayloadError())
	}

	event := &model.Event{
		ID:         uuid.New().String(),
		AppID:      appID,
		Type:       payload.Type,
		Payload:    json.RawMessage(rawBody),
		ReceivedAt: s.now(),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, nil, err
	}

	var member *model.Member
	if payload.Type == EventTypeMemberCreated && payload.Data != nil {
		member, err = s.createMember(ctx, appID, payload.Data)
		if err != nil {
			return nil, nil, err
		}
	}

	s.collector.RecordWebhookAccepted(event.Type)
	s.broadcastAccepted(event, member)

	return event, member, nil
}

// createMember はmember.createdイベントからpending状態のメンバーを作成する。
func (s *Service) createMember(ctx context.Context, appID string, data *memberData) (*model.Member, error) {
	id := uuid.New().String()

	externalID := data.ExternalID
	if externalID == "" {
		// external_id省略時は生成したidをそのまま使用する
		externalID = id
	}

	metadata := data.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	member := &model.Member{
		ID:         id,
		ExternalID: externalID,
		AppID:      appID,
		Email:      data.Email,
		Status:     model.MemberStatusPending,
		Metadata:   metadata,
		CreatedAt:  s.now(),
	}

	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}

	s.collector.RecordMemberCreated()
	return member, nil
}

// broadcastAccepted は受理したイベントと作成したメンバーを配信する。
func (s *Service) broadcastAccepted(event *model.Event, member *model.Member) {
	s.broadcaster.Broadcast(broadcast.Frame{
		Type: event.Type,
		Data: event.Payload,
	})
	s.collector.RecordBroadcastFrame(event.Type)

	if member != nil {
		s.broadcaster.Broadcast(broadcast.Frame{
			Type: EventTypeMemberCreated,
			Data: broadcast.MemberData(member),
		})
		s.collector.RecordBroadcastFrame(EventTypeMemberCreated)
	}
}

// reject は拒否理由をメトリクスに記録してエラーを返す。
func (s *Service) reject(apiErr *model.APIError) (*model.Event, *model.Member, error) {
	s.collector.RecordWebhookRejected(apiErr.Code)
	return nil, nil, apiErr
}

// parseTimestamp はx-timestampヘッダーをエポックミリ秒として解析する。
// ヘッダー省略時はnilを返す（タイムスタンプは任意）。
func parseTimestamp(header string) (*int64, error) {
	if header == "" {
		return nil, nil
	}
	millis, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return nil, err
	}
	return &millis, nil
}
