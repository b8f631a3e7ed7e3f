package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bannerboard/internal/model"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者リポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// FindByEmail はメールアドレスで管理者を検索する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	u := &model.AdminUser{}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT email, key_hash, role, created_at, updated_at
		 FROM admin_access WHERE email = $1`,
		email,
	).Scan(&u.Email, &u.KeyHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("管理者の取得に失敗しました: %w", err)
	}
	u.Role = model.AdminRole(role)
	return u, nil
}

// List は全管理者をメールアドレス順で返す。
func (r *PostgresAdminRepo) List(ctx context.Context) ([]*model.AdminUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, key_hash, role, created_at, updated_at
		 FROM admin_access ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("管理者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.AdminUser
	for rows.Next() {
		u := &model.AdminUser{}
		var role string
		if err := rows.Scan(&u.Email, &u.KeyHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("管理者のスキャンに失敗しました: %w", err)
		}
		u.Role = model.AdminRole(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("管理者一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// Upsert は管理者を作成、または既存のキーとロールを更新する。
func (r *PostgresAdminRepo) Upsert(ctx context.Context, user *model.AdminUser) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_access (email, key_hash, role, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (email) DO UPDATE SET
		    key_hash = EXCLUDED.key_hash,
		    role = EXCLUDED.role,
		    updated_at = now()`,
		user.Email, user.KeyHash, string(user.Role),
	)
	if err != nil {
		return fmt.Errorf("管理者の保存に失敗しました: %w", err)
	}
	return nil
}

// Delete は管理者を削除する。削除した場合はtrueを返す。
func (r *PostgresAdminRepo) Delete(ctx context.Context, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_access WHERE email = $1`,
		email,
	)
	if err != nil {
		return false, fmt.Errorf("管理者の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}
