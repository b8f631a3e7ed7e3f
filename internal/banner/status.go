package banner

// Status はバナーの時間的な状態を表す。
type Status string

const (
	// StatusNone は状態なし（開始日なし、または保持期間超過）。
	StatusNone Status = "none"
	// StatusUpcoming は開始日前。
	StatusUpcoming Status = "upcoming"
	// StatusActive は掲載期間中。
	StatusActive Status = "active"
	// StatusEnding は実効終了日を過ぎ、保持期間（30日）内。
	StatusEnding Status = "ending"
)

const (
	// ImplicitDuration は終了日未指定時の掲載日数。実効終了日 = 開始日 + 10日。
	ImplicitDuration = 10
	// RetentionDays は実効終了日を過ぎてから表示を続ける日数。
	RetentionDays = 30
)

// Classification はClassifyの結果。
type Classification struct {
	Status Status
	// EffectiveEnd は終了日、未指定なら開始日+10日。開始日がInvalidならInvalid。
	EffectiveEnd Date
	// DaysSinceEnd は floor(today - EffectiveEnd)。開始日がInvalidなら0。
	DaysSinceEnd int
	// Expired は保持期間を超過していることを表す。
	Expired bool
}

// EffectiveEnd は終了日が有効ならそれを、そうでなければ開始日+10日を返す。
func EffectiveEnd(start, end Date) Date {
	if end.Valid() {
		return end
	}
	return start.AddDays(ImplicitDuration)
}

// Classify は開始日・終了日・今日の日付からステータスを判定する。
// 同じ入力に対して常に同じ結果を返す。
func Classify(start, end, today Date) Classification {
	if !start.Valid() {
		return Classification{Status: StatusNone}
	}

	effEnd := EffectiveEnd(start, end)
	c := Classification{
		EffectiveEnd: effEnd,
		DaysSinceEnd: today.DaysSince(effEnd),
	}

	switch {
	case today.Before(start):
		c.Status = StatusUpcoming
	case c.DaysSinceEnd < 0:
		c.Status = StatusActive
	case c.DaysSinceEnd <= RetentionDays:
		c.Status = StatusEnding
	default:
		c.Status = StatusNone
		c.Expired = true
	}
	return c
}

// Badge はポリシーに従って表示するバッジを決める。空文字列はバッジなし。
func Badge(rule BadgeRule, start Date, c Classification, today Date) Status {
	if !start.Valid() {
		return ""
	}
	if rule == BadgeStarted {
		if start.After(today) {
			return StatusUpcoming
		}
		return StatusActive
	}
	if c.Status == StatusNone {
		return ""
	}
	return c.Status
}
