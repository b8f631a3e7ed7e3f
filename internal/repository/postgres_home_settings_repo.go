package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bannerboard/internal/model"
)

// PostgresHomeSettingsRepo はPostgreSQLを使用したトップページ設定リポジトリ。
// 設定はid=1の単一行で管理する。
type PostgresHomeSettingsRepo struct {
	db *sql.DB
}

// NewPostgresHomeSettingsRepo はPostgresHomeSettingsRepoを生成する。
func NewPostgresHomeSettingsRepo(db *sql.DB) *PostgresHomeSettingsRepo {
	return &PostgresHomeSettingsRepo{db: db}
}

// Get は設定を取得する。行が存在しない場合は空の設定を返す。
func (r *PostgresHomeSettingsRepo) Get(ctx context.Context) (*model.HomeSettings, error) {
	s := &model.HomeSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT bg_pc_url, bg_mobile_url, updated_at FROM home_settings WHERE id = 1`,
	).Scan(&s.PCBackgroundURL, &s.MobileBackgroundURL, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.HomeSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トップページ設定の取得に失敗しました: %w", err)
	}
	return s, nil
}

// Update は設定を保存する。行がなければ作成する。
func (r *PostgresHomeSettingsRepo) Update(ctx context.Context, settings *model.HomeSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO home_settings (id, bg_pc_url, bg_mobile_url, updated_at)
		 VALUES (1, $1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET
		    bg_pc_url = EXCLUDED.bg_pc_url,
		    bg_mobile_url = EXCLUDED.bg_mobile_url,
		    updated_at = EXCLUDED.updated_at`,
		settings.PCBackgroundURL, settings.MobileBackgroundURL,
	)
	if err != nil {
		return fmt.Errorf("トップページ設定の更新に失敗しました: %w", err)
	}
	return nil
}
