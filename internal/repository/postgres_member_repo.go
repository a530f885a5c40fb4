package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/hookgate/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// Create はメンバーを作成する。external_idによる重複排除は行わない。
func (r *PostgresMemberRepo) Create(ctx context.Context, member *model.Member) error {
	metadata := member.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (id, external_id, app_id, email, status, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		member.ID, member.ExternalID, member.AppID, member.Email,
		string(member.Status), []byte(metadata), member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id string) (*model.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, app_id, email, status, metadata, created_at, approved_by, approved_at
		 FROM members WHERE id = $1`,
		id,
	)

	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member by ID: %w", err)
	}

	return member, nil
}

// List はメンバー一覧をcreated_at昇順で返す。
// statusが空文字列の場合は全件を返す。
func (r *PostgresMemberRepo) List(ctx context.Context, status model.MemberStatus) ([]*model.Member, error) {
	query := `SELECT id, external_id, app_id, email, status, metadata, created_at, approved_by, approved_at
	          FROM members`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*model.Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// UpdateApproval はメンバーをactiveにし、approved_by/approved_atを上書きする。
// RETURNINGで更新後の行を取得する単一行のアトミックな更新。
// 見つからない場合はnilを返す。
func (r *PostgresMemberRepo) UpdateApproval(ctx context.Context, id, approvedBy string, approvedAt time.Time) (*model.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE members
		 SET status = $1, approved_by = $2, approved_at = $3
		 WHERE id = $4
		 RETURNING id, external_id, app_id, email, status, metadata, created_at, approved_by, approved_at`,
		string(model.MemberStatusActive), approvedBy, approvedAt, id,
	)

	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update member approval: %w", err)
	}

	return member, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMember は1行分のメンバーデータをスキャンする。
// approved_by/approved_atはNULL許容のためNull型経由で変換する。
func scanMember(row rowScanner) (*model.Member, error) {
	member := &model.Member{}
	var status string
	var metadata []byte
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(
		&member.ID, &member.ExternalID, &member.AppID, &member.Email,
		&status, &metadata, &member.CreatedAt, &approvedBy, &approvedAt,
	)
	if err != nil {
		return nil, err
	}

	member.Status = model.MemberStatus(status)
	member.Metadata = json.RawMessage(metadata)
	if approvedBy.Valid {
		member.ApprovedBy = approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		member.ApprovedAt = &t
	}

	return member, nil
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
