// Package render はスナップショットとバナー判定の結果から画面用のビューモデルを組み立てる。
//
// 画面側の振る舞い（オーバーレイ表示、リンク遷移、ダウンロード）はItem.Actionsとして
// データで返し、クライアントがそれに従って処理を割り当てる。
package render

import (
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/bannerboard/internal/banner"
	"github.com/hitoshi/bannerboard/internal/model"
	"github.com/hitoshi/bannerboard/internal/snapshot"
)

// ActionKind はクライアントが実行する操作の種類。
type ActionKind string

const (
	// ActionOpenOverlay は詳細オーバーレイを開く。
	ActionOpenOverlay ActionKind = "open_overlay"
	// ActionOpenLink はバナーのリンク先を開く。
	ActionOpenLink ActionKind = "open_link"
	// ActionDownload はダウンロードプロキシ経由で画像を保存する。
	ActionDownload ActionKind = "download"
)

// Action はItemに紐づく操作の記述。
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target"`
}

// EmptyState は表示するアイテムがない場合のメッセージ種別。
type EmptyState string

const (
	EmptySelectNation EmptyState = "select_nation"
	EmptyNoBanners    EmptyState = "no_banners"
	EmptyNoNews       EmptyState = "no_news"
)

// PageKind はページの種類。
type PageKind string

const (
	PageNation PageKind = "nation"
	PageNews   PageKind = "news"
)

// DownloadPath はダウンロードプロキシのパス。
const DownloadPath = "/api/download"

// Item は一覧の1要素。
type Item struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url"`
	Link      string          `json:"link,omitempty"`
	Category  banner.Category `json:"category"`
	Status    banner.Status   `json:"status"`
	Badge     banner.Status   `json:"badge,omitempty"`
	StartDate string          `json:"start_date,omitempty"`
	EndDate   string          `json:"end_date,omitempty"`
	Order     int             `json:"order"`
	Actions   []Action        `json:"actions"`
}

// Page は1画面分のビューモデル。
type Page struct {
	Kind        PageKind   `json:"kind"`
	NationKey   string     `json:"nation_key,omitempty"`
	Items       []Item     `json:"items"`
	Empty       EmptyState `json:"empty,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	FetchedAt   time.Time  `json:"fetched_at"`
	// Stale は直近の取得に失敗し、前回のスナップショットを表示していることを表す。
	Stale bool `json:"stale"`
}

// NationSummary は国一覧の1要素。
type NationSummary struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Flag         string `json:"flag,omitempty"`
	VisibleCount int    `json:"visible_count"`
}

// NationPage は指定nationのページを組み立てる。
// "default"は国が未選択の状態として、アイテムなしの選択促しを返す。
func NationPage(snap *snapshot.Snapshot, key string, today banner.Date) Page {
	p := Page{
		Kind:        PageNation,
		NationKey:   key,
		Items:       []Item{},
		Fingerprint: snap.Fingerprint,
		FetchedAt:   snap.FetchedAt,
	}
	if key == model.DefaultNationKey {
		p.Empty = EmptySelectNation
		return p
	}

	p.Items = Items(banner.Prepare(snap.Nation(key), today))
	if len(p.Items) == 0 {
		p.Empty = EmptyNoBanners
	}
	return p
}

// NewsPage はニュース一覧のページを組み立てる。ニュースは自動失効しないため全件を並べる。
func NewsPage(snap *snapshot.Snapshot, today banner.Date) Page {
	p := Page{
		Kind:        PageNews,
		Items:       Items(banner.Prepare(snap.News(), today)),
		Fingerprint: snap.Fingerprint,
		FetchedAt:   snap.FetchedAt,
	}
	if len(p.Items) == 0 {
		p.Empty = EmptyNoNews
	}
	return p
}

// LatestNews はトップページ用に最新のニュースをn件返す。
func LatestNews(snap *snapshot.Snapshot, today banner.Date, n int) []Item {
	return Items(banner.LatestNews(snap.News(), today, n))
}

// Nations はカタログの順に、各国の表示対象件数を付けて返す。
func Nations(catalog []model.Nation, snap *snapshot.Snapshot, today banner.Date) []NationSummary {
	out := make([]NationSummary, 0, len(catalog))
	for _, n := range catalog {
		out = append(out, NationSummary{
			Key:          n.Key,
			Name:         n.Name,
			Flag:         n.Flag,
			VisibleCount: len(banner.Visible(snap.Nation(n.Key), today)),
		})
	}
	return out
}

// Items は判定済みのViewを表示順のままItemに変換する。
func Items(views []banner.View) []Item {
	items := make([]Item, 0, len(views))
	for i, v := range views {
		items = append(items, itemOf(v, i))
	}
	return items
}

func itemOf(v banner.View, order int) Item {
	b := v.Banner
	it := Item{
		ID:        b.ID,
		Title:     b.Title,
		ImageURL:  b.URL,
		Link:      b.Link,
		Category:  v.Category,
		Status:    v.Classification.Status,
		Badge:     v.Badge,
		StartDate: v.Start.Display(),
		EndDate:   v.DisplayEnd.Display(),
		Order:     order,
	}

	it.Actions = append(it.Actions, Action{Kind: ActionOpenOverlay, Target: itemTarget(b.ID)})
	if b.Link != "" {
		it.Actions = append(it.Actions, Action{Kind: ActionOpenLink, Target: b.Link})
	}
	// 開始日のないバナーとニュースはダウンロード対象にしない
	if v.Category.Policy().AutoExpire && v.Start.Valid() && b.URL != "" {
		it.Actions = append(it.Actions, Action{Kind: ActionDownload, Target: DownloadURL(b.URL)})
	}
	return it
}

func itemTarget(id int64) string {
	return "banner:" + strconv.FormatInt(id, 10)
}

// DownloadURL は画像URLに対するダウンロードプロキシのURLを返す。
func DownloadURL(imageURL string) string {
	return DownloadPath + "?url=" + url.QueryEscape(imageURL)
}
