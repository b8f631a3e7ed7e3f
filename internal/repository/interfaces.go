// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/bannerboard/internal/model"
)

// ErrNotFound は更新対象の行が存在しない場合に返る。
var ErrNotFound = errors.New("対象のレコードが存在しません")

// BannerRepository はバナー（ニュース記事を含む）の永続化インターフェース。
type BannerRepository interface {
	// ListAll は全件をid順（取得順）で返す。スナップショットの取得に使用する。
	ListAll(ctx context.Context) ([]model.Banner, error)

	// ListForAdmin は管理画面向けに作成日時の降順で返す。
	// nationKeyが空の場合は全nationを対象とする。
	ListForAdmin(ctx context.Context, nationKey string) ([]model.Banner, error)

	// FindByID は指定IDのバナーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Banner, error)

	// Upsert はIDが0なら新規作成、それ以外は更新し、対象のIDを返す。
	// 更新対象が存在しない場合はErrNotFoundを返す。
	Upsert(ctx context.Context, in *model.BannerInput) (int64, error)

	// DeleteByIDs は指定IDをまとめて削除し、削除件数を返す。
	// 1文で実行するため、失敗時はどの行も削除されない。
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// HomeSettingsRepository はトップページ設定の永続化インターフェース。
type HomeSettingsRepository interface {
	// Get は設定を取得する。行が存在しない場合は空の設定を返す。
	Get(ctx context.Context) (*model.HomeSettings, error)

	// Update は設定を保存する。
	Update(ctx context.Context, settings *model.HomeSettings) error
}

// AdminRepository は管理者アクセス情報の永続化インターフェース。
type AdminRepository interface {
	// FindByEmail はメールアドレスで管理者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.AdminUser, error)

	// List は全管理者をメールアドレス順で返す。
	List(ctx context.Context) ([]*model.AdminUser, error)

	// Upsert は管理者を作成、または既存のキーとロールを更新する。
	Upsert(ctx context.Context, user *model.AdminUser) error

	// Delete は管理者を削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, email string) (bool, error)
}
