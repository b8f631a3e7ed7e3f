// Package model はドメインモデルを定義する。
package model

import "time"

// NewsNationKey はニュース記事を表す予約済みのnation_key。
const NewsNationKey = "news"

// DefaultNationKey は国が未選択の状態を表す予約済みのキー。
const DefaultNationKey = "default"

// Banner は期間付きのプロモーション画像（バナー）またはニュース記事を表す。
// 日付は管理画面で入力された文字列のまま保持し、解釈はbannerパッケージが行う。
type Banner struct {
	ID        int64
	NationKey string
	Title     string
	URL       string // 画像URL
	Link      string // クリック時の遷移先
	StartDate string
	EndDate   string // 任意。空の場合は開始日+10日が実効終了日になる
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BannerInput はバナーの作成・更新の入力を表す。IDが0の場合は新規作成。
type BannerInput struct {
	ID        int64
	NationKey string
	Title     string
	URL       string
	Link      string
	StartDate string
	EndDate   string
}

// HomeSettings はトップページの背景設定を表す。単一行（id=1）で管理する。
type HomeSettings struct {
	PCBackgroundURL     string
	MobileBackgroundURL string
	UpdatedAt           time.Time
}

// Nation はバナーをグループ化する国のカタログ情報を表す。
type Nation struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	Flag string `yaml:"flag"`
}
