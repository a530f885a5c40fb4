package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/hookgate/internal/broadcast"
	"github.com/hitoshi/hookgate/internal/model"
)

// --- モック定義 ---

// mockVerifier はSignatureVerifierのモック実装。
type mockVerifier struct {
	verifyFn func(ctx context.Context, appID string, rawBody []byte, claimedSig string, timestampMillis *int64) error
}

func (m *mockVerifier) Verify(ctx context.Context, appID string, rawBody []byte, claimedSig string, timestampMillis *int64) error {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, appID, rawBody, claimedSig, timestampMillis)
	}
	return nil
}

// mockEventRepo はrepository.EventRepositoryのモック実装。
type mockEventRepo struct {
	created  []*model.Event
	createFn func(ctx context.Context, event *model.Event) error
}

func (m *mockEventRepo) Create(ctx context.Context, event *model.Event) error {
	if m.createFn != nil {
		return m.createFn(ctx, event)
	}
	m.created = append(m.created, event)
	return nil
}

// mockMemberRepo はrepository.MemberRepositoryのモック実装。
type mockMemberRepo struct {
	created []*model.Member
}

func (m *mockMemberRepo) Create(ctx context.Context, member *model.Member) error {
	m.created = append(m.created, member)
	return nil
}

func (m *mockMemberRepo) FindByID(ctx context.Context, id string) (*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) List(ctx context.Context, status model.MemberStatus) ([]*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) UpdateApproval(ctx context.Context, id, approvedBy string, approvedAt time.Time) (*model.Member, error) {
	return nil, nil
}

// mockBroadcaster はbroadcast.Broadcasterのモック実装。
type mockBroadcaster struct {
	frames []broadcast.Frame
}

func (m *mockBroadcaster) Broadcast(frame broadcast.Frame) {
	m.frames = append(m.frames, frame)
}

// nopCollector はmetrics.MetricsCollectorの記録のみ行うモック実装。
type nopCollector struct {
	received int
	accepted []string
	rejected []string
}

func (c *nopCollector) RecordWebhookReceived() { c.received++ }
func (c *nopCollector) RecordWebhookAccepted(eventType string) {
	c.accepted = append(c.accepted, eventType)
}
func (c *nopCollector) RecordWebhookRejected(reason string) {
	c.rejected = append(c.rejected, reason)
}
func (c *nopCollector) RecordVerifyLatency(duration time.Duration) {}
func (c *nopCollector) RecordMemberCreated()                       {}
func (c *nopCollector) RecordMemberApproved()                      {}
func (c *nopCollector) RecordSubscriberCount(count int)            {}
func (c *nopCollector) RecordBroadcastFrame(frameType string)      {}

type testDeps struct {
	verifier    *mockVerifier
	events      *mockEventRepo
	members     *mockMemberRepo
	broadcaster *mockBroadcaster
	collector   *nopCollector
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		verifier:    &mockVerifier{},
		events:      &mockEventRepo{},
		members:     &mockMemberRepo{},
		broadcaster: &mockBroadcaster{},
		collector:   &nopCollector{},
	}
	svc := NewService(deps.verifier, deps.events, deps.members, deps.broadcaster, deps.collector)
	return svc, deps
}

func errCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// --- インジェストテスト ---

func TestIngest_MissingHeaders(t *testing.T) {
	svc, deps := newTestService(t)

	cases := []struct {
		name  string
		appID string
		sig   string
	}{
		{"no app id", "", "sha256=abc"},
		{"no signature", "app-1", ""},
		{"neither", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Ingest(context.Background(), tc.appID, tc.sig, "", []byte("{}"))
			if errCode(err) != model.ErrCodeMissingHeaders {
				t.Errorf("Ingest = %v, want MISSING_HEADERS", err)
			}
		})
	}

	if len(deps.events.created) != 0 {
		t.Error("no events should be stored for rejected requests")
	}
}

func TestIngest_MalformedTimestampHeader(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Ingest(context.Background(), "app-1", "sha256=abc", "not-a-number", []byte("{}"))
	if errCode(err) != model.ErrCodeTimestampOutOfRange {
		t.Errorf("Ingest with malformed timestamp = %v, want TIMESTAMP_OUT_OF_RANGE", err)
	}
}

func TestIngest_SignatureFailureStoresNothing(t *testing.T) {
	svc, deps := newTestService(t)
	deps.verifier.verifyFn = func(ctx context.Context, appID string, rawBody []byte, claimedSig string, timestampMillis *int64) error {
		return model.NewSignatureInvalidError()
	}

	_, _, err := svc.Ingest(context.Background(), "app-1", "sha256=bad", "", []byte(`{"type":"member.created"}`))
	if errCode(err) != model.ErrCodeSignatureInvalid {
		t.Errorf("Ingest = %v, want SIGNATURE_INVALID", err)
	}

	if len(deps.events.created) != 0 {
		t.Error("no event should be stored when signature verification fails")
	}
	if len(deps.broadcaster.frames) != 0 {
		t.Error("nothing should be broadcast when signature verification fails")
	}
	if len(deps.collector.rejected) != 1 || deps.collector.rejected[0] != model.ErrCodeSignatureInvalid {
		t.Errorf("rejection metric = %v, want [SIGNATURE_INVALID]", deps.collector.rejected)
	}
}

func TestIngest_InvalidJSONAfterValidSignature(t *testing.T) {
	svc, deps := newTestService(t)

	_, _, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", []byte("not json"))
	if errCode(err) != model.ErrCodeInvalidPayload {
		t.Errorf("Ingest with invalid JSON = %v, want INVALID_PAYLOAD", err)
	}
	if len(deps.events.created) != 0 {
		t.Error("no event should be stored for unparsable bodies")
	}
}

func TestIngest_MemberCreated(t *testing.T) {
	svc, deps := newTestService(t)

	body := []byte(`{"type":"member.created","data":{"external_id":"ext-9","email":"a@example.com","metadata":{"plan":"pro"}}}`)

	event, member, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", body)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if event == nil || event.Type != "member.created" {
		t.Fatalf("event = %+v, want type member.created", event)
	}
	// ペイロードは受信した生バイト列のまま保存される
	if string(event.Payload) != string(body) {
		t.Errorf("event payload = %s, want raw body verbatim", event.Payload)
	}

	if member == nil {
		t.Fatal("member should be created")
	}
	if member.Status != model.MemberStatusPending {
		t.Errorf("member status = %q, want pending", member.Status)
	}
	if member.ExternalID != "ext-9" {
		t.Errorf("external_id = %q, want ext-9", member.ExternalID)
	}
	if member.Email != "a@example.com" {
		t.Errorf("email = %q, want a@example.com", member.Email)
	}
	if len(deps.members.created) != 1 {
		t.Errorf("members created = %d, want 1", len(deps.members.created))
	}

	// イベントとメンバーの2フレームが配信される
	if len(deps.broadcaster.frames) != 2 {
		t.Fatalf("broadcast frames = %d, want 2", len(deps.broadcaster.frames))
	}
	if deps.broadcaster.frames[0].Type != "member.created" {
		t.Errorf("first frame type = %q, want member.created", deps.broadcaster.frames[0].Type)
	}
}

func TestIngest_MemberCreatedExternalIDDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"type":"member.created","data":{}}`)

	_, member, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", body)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if member == nil {
		t.Fatal("member should be created")
	}
	// external_id省略時は生成したidが使われる
	if member.ExternalID != member.ID {
		t.Errorf("external_id = %q, want member id %q", member.ExternalID, member.ID)
	}
	if string(member.Metadata) != "{}" {
		t.Errorf("metadata = %s, want {}", member.Metadata)
	}
}

func TestIngest_MemberCreatedWithoutData(t *testing.T) {
	svc, deps := newTestService(t)

	// dataオブジェクトがない場合はイベントのみ保存しメンバーは作らない
	body := []byte(`{"type":"member.created"}`)

	event, member, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", body)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if event == nil {
		t.Fatal("event should be stored")
	}
	if member != nil {
		t.Errorf("member = %+v, want nil", member)
	}
	if len(deps.members.created) != 0 {
		t.Error("no member should be created without data")
	}
}

func TestIngest_UnknownEventType(t *testing.T) {
	svc, deps := newTestService(t)

	body := []byte(`{"type":"invoice.paid","data":{"amount":100}}`)

	event, member, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", body)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	// 未知タイプでもイベントは必ず保存される
	if event == nil || event.Type != "invoice.paid" {
		t.Fatalf("event = %+v, want type invoice.paid", event)
	}
	if member != nil {
		t.Errorf("member = %+v, want nil for unknown type", member)
	}
	if len(deps.events.created) != 1 {
		t.Errorf("events created = %d, want 1", len(deps.events.created))
	}
	// イベントフレームのみ配信される
	if len(deps.broadcaster.frames) != 1 {
		t.Errorf("broadcast frames = %d, want 1", len(deps.broadcaster.frames))
	}
}

func TestIngest_NoDedupOnRepeatedDelivery(t *testing.T) {
	svc, deps := newTestService(t)

	body := []byte(`{"type":"member.created","data":{"external_id":"ext-1"}}`)

	for i := 0; i < 2; i++ {
		if _, _, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", body); err != nil {
			t.Fatalf("Ingest #%d failed: %v", i+1, err)
		}
	}

	// 同一external_idの再配送でも重複排除せず毎回メンバーを追加する
	if len(deps.members.created) != 2 {
		t.Errorf("members created = %d, want 2", len(deps.members.created))
	}
	if deps.members.created[0].ID == deps.members.created[1].ID {
		t.Error("each delivery should create a member with a distinct id")
	}
}

func TestIngest_StoreFailurePropagates(t *testing.T) {
	svc, deps := newTestService(t)
	storeErr := errors.New("connection reset")
	deps.events.createFn = func(ctx context.Context, event *model.Event) error {
		return storeErr
	}

	_, _, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "", []byte(`{"type":"ping"}`))
	if !errors.Is(err, storeErr) {
		t.Errorf("Ingest = %v, want store error", err)
	}
	if len(deps.broadcaster.frames) != 0 {
		t.Error("nothing should be broadcast when the event insert fails")
	}
}

func TestIngest_TimestampPassedToVerifier(t *testing.T) {
	svc, deps := newTestService(t)

	var gotMillis *int64
	deps.verifier.verifyFn = func(ctx context.Context, appID string, rawBody []byte, claimedSig string, timestampMillis *int64) error {
		gotMillis = timestampMillis
		return nil
	}

	if _, _, err := svc.Ingest(context.Background(), "app-1", "sha256=ok", "1723200000000", []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if gotMillis == nil || *gotMillis != 1723200000000 {
		t.Errorf("timestampMillis = %v, want 1723200000000", gotMillis)
	}
}
