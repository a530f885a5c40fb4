package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hookgate/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
// イベントは追記専用のため、INSERTのみを提供する。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Create はイベントを作成する。
// payloadは受信したJSONボディをそのまま保存する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, app_id, type, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AppID, event.Type, []byte(event.Payload), event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
