package download

import "time"

// AttemptResult はHTTPステータスコードに基づく取得結果の分類。
type AttemptResult int

const (
	// AttemptOK は取得成功（2xx）。
	AttemptOK AttemptResult = iota
	// AttemptRetry は再試行するステータス（429/5xx）。
	AttemptRetry
	// AttemptFail は再試行しても結果が変わらないステータス（その他の4xxなど）。
	AttemptFail
)

const (
	// DefaultMaxAttempts は最大試行回数。
	DefaultMaxAttempts = 3
	// DefaultAttemptTimeout は1回の試行のタイムアウト。
	DefaultAttemptTimeout = 30 * time.Second
	// DefaultMaxBodySize は画像の最大サイズ（10MB）。
	DefaultMaxBodySize int64 = 10 << 20
	// backoffUnit は線形バックオフの単位。n回目の失敗後はn秒待つ。
	backoffUnit = time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
// 429と5xxは配信元の一時的な不調とみなして再試行し、それ以外の4xxは
// 何度送っても同じ結果になるため即座に失敗とする。通信エラーはこの分類を通らず、常に再試行する。
func ClassifyHTTPStatus(statusCode int) AttemptResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return AttemptOK
	case statusCode == 429:
		return AttemptRetry
	case statusCode >= 500:
		return AttemptRetry
	default:
		return AttemptFail
	}
}

// Backoff はattempt回目の失敗後に待つ時間を返す。
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return time.Duration(attempt) * backoffUnit
}
