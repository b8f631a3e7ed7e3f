package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, banner, download, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeDownloadFailed      = "DOWNLOAD_FAILED"
	ErrCodeBannerNotFound      = "BANNER_NOT_FOUND"
	ErrCodeInvalidBanner       = "INVALID_BANNER"
	ErrCodeAdminNotFound       = "ADMIN_NOT_FOUND"
	ErrCodeInvalidAdmin        = "INVALID_ADMIN"
	ErrCodeSnapshotUnavailable = "SNAPSHOT_UNAVAILABLE"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// メールアドレスとキーのどちらが誤っているかは区別しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "メールアドレスまたはアクセスキーが正しくありません。",
		Category: "auth",
		Action:   "メールアドレスとアクセスキーを確認して再度ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "上位管理者に操作を依頼してください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されている画像のURLを指定してください。",
	}
}

// NewBannerNotFoundError はバナー未検出エラーを生成する。
func NewBannerNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeBannerNotFound,
		Message:  fmt.Sprintf("指定されたバナーが見つかりません: %d", id),
		Category: "banner",
		Action:   "バナー一覧を再読み込みしてください。",
	}
}

// NewInvalidBannerError はバナー入力値の検証エラーを生成する。
func NewInvalidBannerError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBanner,
		Message:  fmt.Sprintf("バナーの入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewAdminNotFoundError は管理者ユーザー未検出エラーを生成する。
func NewAdminNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAdminNotFound,
		Message:  fmt.Sprintf("指定された管理者が見つかりません: %s", email),
		Category: "auth",
		Action:   "管理者一覧を再読み込みしてください。",
	}
}

// NewInvalidAdminError は管理者ユーザー入力値の検証エラーを生成する。
func NewInvalidAdminError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAdmin,
		Message:  fmt.Sprintf("管理者の入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewSnapshotUnavailableError は初回データ取得前の接続エラーを生成する。
func NewSnapshotUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeSnapshotUnavailable,
		Message:  "コンテンツを読み込めませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
