// Package banner はバナーのライフサイクル判定と表示制御のエンジンを提供する。
//
// 日付の正規化、ステータス分類、表示フィルタ、保持期間による削除候補の抽出、
// 表示順の決定をすべて副作用のない関数として実装する。
// 日付はすべてUTCの0時に正規化し、日単位で比較する。
package banner

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const day = 24 * time.Hour

// Date はUTC 0時に正規化された暦日を表す。
// ゼロ値はInvalid（日付なし）を表し、呼び出し側は「日付制約なし」として扱う。
type Date struct {
	t     time.Time
	valid bool
}

// Invalid は解析できなかった日付を表すセンチネル値。
var Invalid = Date{}

// NewDate は年月日からDateを生成する。
func NewDate(year int, month time.Month, d int) Date {
	return Date{t: time.Date(year, month, d, 0, 0, 0, 0, time.UTC), valid: true}
}

// DateOf は時刻のUTC上の日付部分を返す。
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// Valid は日付が有効かを返す。
func (d Date) Valid() bool { return d.valid }

// Time はUTC 0時のtime.Timeを返す。Invalidの場合はゼロ値。
func (d Date) Time() time.Time { return d.t }

// AddDays はn日後の日付を返す。Invalidに対してはInvalidを返す。
func (d Date) AddDays(n int) Date {
	if !d.valid {
		return Invalid
	}
	return Date{t: d.t.AddDate(0, 0, n), valid: true}
}

// Before はdがoより前の日かを返す。
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After はdがoより後の日かを返す。
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Equal は同じ日付かを返す。
func (d Date) Equal(o Date) bool { return d.valid == o.valid && d.t.Equal(o.t) }

// DaysSince はfloor((d - o) / 1日) を返す。
func (d Date) DaysSince(o Date) int {
	diff := d.t.Sub(o.t)
	days := int(diff / day)
	if diff%day < 0 {
		days--
	}
	return days
}

// String はISO形式（2006-01-02）を返す。Invalidの場合は空文字列。
func (d Date) String() string {
	if !d.valid {
		return ""
	}
	return d.t.Format("2006-01-02")
}

// Display は画面表示用のdd/mm/yyyy形式を返す。Invalidの場合は空文字列。
func (d Date) Display() string {
	if !d.valid {
		return ""
	}
	return d.t.Format("02/01/2006")
}

// MarshalText はJSON出力用にISO形式で書き出す。Invalidは空文字列になる。
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var dateSeparators = regexp.MustCompile(`[/\-.]`)

// ParseDate は管理画面で入力された日付文字列をDateに変換する。
//
// "/"、"-"、"." 区切りの3要素を受け付け、先頭要素がちょうど4桁なら年・月・日、
// それ以外は日・月・年として解釈する。時刻部分（"T" または空白以降）は無視する。
// 3要素の数値として解釈できない場合は汎用パーサにフォールバックする。
// 2月30日のような範囲外の値は翌月以降に繰り越す（3月1日など）。
// 空文字列や解析不能な入力にはInvalidを返し、エラーにはしない。
func ParseDate(text string) Date {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Invalid
	}

	clean := raw
	if i := strings.IndexAny(clean, "T "); i >= 0 {
		clean = clean[:i]
	}

	parts := dateSeparators.Split(clean, -1)
	if len(parts) == 3 {
		var y, m, d string
		if len(parts[0]) == 4 {
			y, m, d = parts[0], parts[1], parts[2]
		} else {
			d, m, y = parts[0], parts[1], parts[2]
		}
		if date, ok := fromTriple(y, m, d); ok {
			return date
		}
	}

	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return Invalid
	}
	// 時刻とオフセットは捨て、書かれた日付をそのまま使う
	return NewDate(parsed.Year(), parsed.Month(), parsed.Day())
}

// fromTriple は数値文字列の年月日から日付を組み立てる。
// 範囲外の月日はtime.Dateの正規化に従って繰り越す。
func fromTriple(y, m, d string) (Date, bool) {
	year, err := strconv.Atoi(y)
	if err != nil {
		return Invalid, false
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return Invalid, false
	}
	dd, err := strconv.Atoi(d)
	if err != nil {
		return Invalid, false
	}

	return NewDate(year, time.Month(month), dd), true
}
