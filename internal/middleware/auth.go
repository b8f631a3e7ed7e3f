// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hitoshi/bannerboard/internal/model"
)

const (
	// AdminEmailHeader は管理者のメールアドレスを渡すリクエストヘッダー。
	AdminEmailHeader = "X-Admin-Email"
	// AdminKeyHeader は管理者のアクセスキーを渡すリクエストヘッダー。
	AdminKeyHeader = "X-Admin-Key"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// adminContextKey はリクエストコンテキストに認証済み管理者を格納するためのキー。
var adminContextKey = contextKey("admin_user")

// AdminAuthenticator は管理者の認証に必要なインターフェース。
// admin.Serviceの部分集合として定義する。
type AdminAuthenticator interface {
	Authenticate(ctx context.Context, email, key string) (*model.AdminUser, error)
}

// AuthFailureLimiter はクライアントIPごとの認証失敗回数を制限する。
// *RateLimiterが実装する。
type AuthFailureLimiter interface {
	AuthBlocked(ip string) bool
	RecordAuthFailure(ip string)
	AuthRetryLimit() rate.Limit
}

// NewAdminAuthMiddleware はリクエストヘッダーのメールアドレスとアクセスキーを検証し、
// 認証済み管理者をリクエストコンテキストに注入するミドルウェアを返す。
// 認証に失敗したリクエストには401を返す。
// failuresがnilでない場合、認証失敗をクライアントIPごとに数え、枠を使い切ったIPには
// アクセスキーを照合せずに429を返す。
func NewAdminAuthMiddleware(auth AdminAuthenticator, failures AuthFailureLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := r.Header.Get(AdminEmailHeader)
			key := r.Header.Get(AdminKeyHeader)
			if email == "" || key == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ip := ClientIP(r)
			if failures != nil && failures.AuthBlocked(ip) {
				writeRateLimitResponse(w, failures.AuthRetryLimit())
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "admin_auth"),
				)
				return
			}

			user, err := auth.Authenticate(r.Context(), email, key)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					if failures != nil {
						failures.RecordAuthFailure(ip)
					}
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				slog.Error("failed to authenticate admin",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			setLogAdminEmail(r.Context(), user.Email)
			next.ServeHTTP(w, r.WithContext(ContextWithAdmin(r.Context(), user)))
		})
	}
}

// AdminFromContext はリクエストコンテキストから認証済み管理者を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func AdminFromContext(ctx context.Context) (*model.AdminUser, bool) {
	user, ok := ctx.Value(adminContextKey).(*model.AdminUser)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithAdmin はコンテキストに管理者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAdmin(ctx context.Context, user *model.AdminUser) context.Context {
	return context.WithValue(ctx, adminContextKey, user)
}
