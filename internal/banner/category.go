package banner

import "github.com/hitoshi/bannerboard/internal/model"

// Category はバナーの種別を表す。
type Category int

const (
	// Promotional は国ごとのプロモーションバナー。
	Promotional Category = iota
	// Editorial はニュース記事。自動失効の対象外。
	Editorial
)

// String はJSON出力用の種別名を返す。
func (c Category) String() string {
	if c == Editorial {
		return "editorial"
	}
	return "promotional"
}

// MarshalText は種別名で書き出す。
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// BadgeRule はバッジ表示の判定規則を表す。
type BadgeRule int

const (
	// BadgeLifecycle は upcoming/active/ending の3段階でバッジを表示する。
	BadgeLifecycle BadgeRule = iota
	// BadgeStarted は開始前(upcoming)か開始済み(active)かだけを表示する。
	BadgeStarted
)

// Policy は種別ごとの表示・保持ルール。
type Policy struct {
	// AutoExpire が真の場合、実効終了日から30日を超えたものは非表示・削除候補になる。
	AutoExpire bool
	// Badge はバッジの判定規則。
	Badge BadgeRule
	// ShowEndDate は詳細表示で終了日を出すかどうか。
	ShowEndDate bool
}

var policies = map[Category]Policy{
	Promotional: {AutoExpire: true, Badge: BadgeLifecycle, ShowEndDate: true},
	Editorial:   {AutoExpire: false, Badge: BadgeStarted, ShowEndDate: false},
}

// Policy は種別に対応するルールを返す。
func (c Category) Policy() Policy {
	return policies[c]
}

// CategoryOf はnation_keyから種別を決定する。
// 予約キー "news" の判定はこの関数だけが行う。
func CategoryOf(nationKey string) Category {
	if nationKey == model.NewsNationKey {
		return Editorial
	}
	return Promotional
}
