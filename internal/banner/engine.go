package banner

import (
	"sort"

	"github.com/hitoshi/bannerboard/internal/model"
)

// View はバナーと、その日の判定結果をまとめた表示用の値。
type View struct {
	Banner         model.Banner
	Category       Category
	Start          Date
	Classification Classification
	// Badge は表示するバッジ。空文字列はバッジなし。
	Badge Status
	// DisplayEnd は詳細表示に出す終了日。ShowEndDateでない種別ではInvalid。
	DisplayEnd Date
}

// Annotate はバナー1件を今日の日付で判定する。
func Annotate(b model.Banner, today Date) View {
	cat := CategoryOf(b.NationKey)
	policy := cat.Policy()
	start := ParseDate(b.StartDate)
	end := ParseDate(b.EndDate)
	c := Classify(start, end, today)

	v := View{
		Banner:         b,
		Category:       cat,
		Start:          start,
		Classification: c,
		Badge:          Badge(policy.Badge, start, c, today),
	}
	if policy.ShowEndDate {
		v.DisplayEnd = EffectiveEnd(start, end)
	}
	return v
}

// AnnotateAll は取得順を保ったまま全件を判定する。
func AnnotateAll(banners []model.Banner, today Date) []View {
	views := make([]View, len(banners))
	for i, b := range banners {
		views[i] = Annotate(b, today)
	}
	return views
}

// IsVisible は表示対象かを返す。
// 自動失効しない種別、開始日がInvalidなもの、実効終了日から30日以内のものを表示する。
func (v View) IsVisible() bool {
	if !v.Category.Policy().AutoExpire {
		return true
	}
	if !v.Start.Valid() {
		return true
	}
	return v.Classification.DaysSinceEnd <= RetentionDays
}

// Visible は表示対象のバナーだけを取得順のまま返す。
func Visible(banners []model.Banner, today Date) []model.Banner {
	out := make([]model.Banner, 0, len(banners))
	for _, b := range banners {
		if Annotate(b, today).IsVisible() {
			out = append(out, b)
		}
	}
	return out
}

// FilterVisible はView列から表示対象だけを取得順のまま返す。
func FilterVisible(views []View) []View {
	out := make([]View, 0, len(views))
	for _, v := range views {
		if v.IsVisible() {
			out = append(out, v)
		}
	}
	return out
}

// Order は表示順に並べ替えた新しいスライスを返す。
//
//  1. 開始日がInvalidなものは最後
//  2. ending は ending 以外より後ろ
//  3. 開始日の降順
//
// 安定ソートのため、同順位は取得順を保つ。
func Order(views []View) []View {
	out := make([]View, len(views))
	copy(out, views)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b View) bool {
	if a.Start.Valid() != b.Start.Valid() {
		return a.Start.Valid()
	}
	aEnding := a.Classification.Status == StatusEnding
	bEnding := b.Classification.Status == StatusEnding
	if aEnding != bEnding {
		return !aEnding
	}
	return a.Start.After(b.Start)
}

// Prepare は判定・表示フィルタ・並べ替えを一括で行う。
func Prepare(banners []model.Banner, today Date) []View {
	return Order(FilterVisible(AnnotateAll(banners, today)))
}

// CleanupCandidates は自動削除の対象となるバナーIDを返す。
//
// 判定には明示的な終了日だけを使い、開始日+10日の補完は行わない。
// 表示判定（Classify）とは意図的に異なる。終了日がない、または解析できないものと
// 自動失効しない種別は対象外。
func CleanupCandidates(banners []model.Banner, today Date) []int64 {
	var ids []int64
	for _, b := range banners {
		if !CategoryOf(b.NationKey).Policy().AutoExpire {
			continue
		}
		end := ParseDate(b.EndDate)
		if !end.Valid() {
			continue
		}
		if today.DaysSince(end) > RetentionDays {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// DefaultLatestNews はトップページに出すニュース件数。
const DefaultLatestNews = 3

// LatestNews はニュース記事を開始日の降順に並べ、先頭n件を返す。
// 開始日がInvalidなものは最後に回す。
func LatestNews(banners []model.Banner, today Date, n int) []View {
	var news []View
	for _, b := range banners {
		if CategoryOf(b.NationKey) != Editorial {
			continue
		}
		news = append(news, Annotate(b, today))
	}
	sort.SliceStable(news, func(i, j int) bool {
		a, b := news[i], news[j]
		if a.Start.Valid() != b.Start.Valid() {
			return a.Start.Valid()
		}
		return a.Start.After(b.Start)
	})
	if n >= 0 && len(news) > n {
		news = news[:n]
	}
	return news
}
