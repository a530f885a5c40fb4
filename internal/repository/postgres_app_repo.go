package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/hookgate/internal/model"
)

// PostgresAppRepo はPostgreSQLを使用したアプリケーションリポジトリ。
type PostgresAppRepo struct {
	db *sql.DB
}

// NewPostgresAppRepo はPostgresAppRepoを生成する。
func NewPostgresAppRepo(db *sql.DB) *PostgresAppRepo {
	return &PostgresAppRepo{db: db}
}

// Upsert はapp_idをキーにアプリケーションを作成または上書きする。
// ON CONFLICTによる単一行のアトミックな書き込みで、
// 同一app_idへの並行登録はlast-write-winsで解決される。
func (r *PostgresAppRepo) Upsert(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (app_id, name, webhook_url, secret_ciphertext, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (app_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   webhook_url = EXCLUDED.webhook_url,
		   secret_ciphertext = EXCLUDED.secret_ciphertext`,
		app.AppID, app.Name, app.WebhookURL, app.SecretCiphertext, app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert application: %w", err)
	}
	return nil
}

// FindByAppID は指定app_idのアプリケーションを取得する。見つからない場合はnilを返す。
func (r *PostgresAppRepo) FindByAppID(ctx context.Context, appID string) (*model.Application, error) {
	app := &model.Application{}
	err := r.db.QueryRowContext(ctx,
		`SELECT app_id, name, webhook_url, secret_ciphertext, created_at
		 FROM applications WHERE app_id = $1`,
		appID,
	).Scan(&app.AppID, &app.Name, &app.WebhookURL, &app.SecretCiphertext, &app.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application by app_id: %w", err)
	}

	return app, nil
}

// compile-time interface check
var _ AppRepository = (*PostgresAppRepo)(nil)
