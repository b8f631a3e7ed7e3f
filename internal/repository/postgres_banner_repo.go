package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/bannerboard/internal/model"
)

const bannerColumns = `id, nation_key, title, url, banner_link, start_date, end_date, created_at, updated_at`

// PostgresBannerRepo はPostgreSQLを使用したバナーリポジトリ。
type PostgresBannerRepo struct {
	db *sql.DB
}

// NewPostgresBannerRepo はPostgresBannerRepoを生成する。
func NewPostgresBannerRepo(db *sql.DB) *PostgresBannerRepo {
	return &PostgresBannerRepo{db: db}
}

// ListAll は全件をid順で返す。
func (r *PostgresBannerRepo) ListAll(ctx context.Context) ([]model.Banner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bannerColumns+` FROM banners ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("バナー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanBanners(rows)
}

// ListForAdmin は作成日時の降順で返す。nationKeyが空なら全件。
func (r *PostgresBannerRepo) ListForAdmin(ctx context.Context, nationKey string) ([]model.Banner, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if nationKey == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+bannerColumns+` FROM banners ORDER BY created_at DESC, id DESC`,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+bannerColumns+` FROM banners WHERE nation_key = $1 ORDER BY created_at DESC, id DESC`,
			nationKey,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("管理画面用バナー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanBanners(rows)
}

// FindByID は指定IDのバナーを取得する。見つからない場合はnilを返す。
func (r *PostgresBannerRepo) FindByID(ctx context.Context, id int64) (*model.Banner, error) {
	b := &model.Banner{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+bannerColumns+` FROM banners WHERE id = $1`,
		id,
	).Scan(
		&b.ID, &b.NationKey, &b.Title, &b.URL, &b.Link,
		&b.StartDate, &b.EndDate, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("バナーの取得に失敗しました: %w", err)
	}
	return b, nil
}

// Upsert はIDが0なら作成、それ以外は更新して対象IDを返す。
func (r *PostgresBannerRepo) Upsert(ctx context.Context, in *model.BannerInput) (int64, error) {
	var id int64
	if in.ID == 0 {
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO banners (nation_key, title, url, banner_link, start_date, end_date)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			in.NationKey, in.Title, in.URL, in.Link, in.StartDate, in.EndDate,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("バナーの作成に失敗しました: %w", err)
		}
		return id, nil
	}

	err := r.db.QueryRowContext(ctx,
		`UPDATE banners SET
		    nation_key = $2, title = $3, url = $4, banner_link = $5,
		    start_date = $6, end_date = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING id`,
		in.ID, in.NationKey, in.Title, in.URL, in.Link, in.StartDate, in.EndDate,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("バナーの更新に失敗しました: %w", err)
	}
	return id, nil
}

// DeleteByIDs は指定IDを1文でまとめて削除する。
func (r *PostgresBannerRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM banners WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("バナーの一括削除に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func scanBanners(rows *sql.Rows) ([]model.Banner, error) {
	var banners []model.Banner
	for rows.Next() {
		var b model.Banner
		if err := rows.Scan(
			&b.ID, &b.NationKey, &b.Title, &b.URL, &b.Link,
			&b.StartDate, &b.EndDate, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("バナーのスキャンに失敗しました: %w", err)
		}
		banners = append(banners, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("バナー一覧の走査に失敗しました: %w", err)
	}
	return banners, nil
}
