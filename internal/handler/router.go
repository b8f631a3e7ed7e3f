package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bannerboard/internal/metrics"
	"github.com/hitoshi/bannerboard/internal/middleware"
	"github.com/hitoshi/bannerboard/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	TrustProxyHeaders bool
	RateLimiter       *middleware.RateLimiter
	Authenticator     middleware.AdminAuthenticator

	// 公開API
	State         SnapshotReader
	Nations       []model.Nation
	HealthChecker HealthChecker
	Downloader    Downloader

	// 管理API
	AdminService AdminServiceInterface

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	(RealIP) → RequestID → Logging → Recovery → SecurityHeaders → CORS
//
// 管理API（/api/admin/*）はさらに AdminAuth → RateLimit(General) を通す。
// ログインのみ認証の外に置き、クライアントIPごとのレート制限をかける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	publicHandler := NewPublicHandler(deps.State, deps.Nations, deps.HealthChecker)
	downloadHandler := NewDownloadHandler(deps.Downloader)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- 認証不要のルート ---
	r.Get("/health", publicHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.SetupMetricsRoute(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/nations", publicHandler.ListNations)
		r.Get("/nations/{key}/banners", publicHandler.NationBanners)
		r.Get("/news", publicHandler.News)
		r.Get("/news/latest", publicHandler.LatestNews)
		r.Get("/home-settings", publicHandler.HomeSettings)
		r.Get("/download", downloadHandler.Download)

		r.Route("/admin", func(r chi.Router) {
			// POST /api/admin/login - ログイン（IP単位のレート制限）
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", adminHandler.Login)

			// --- 認証が必要なルート ---
			// ミドルウェアスタック: AdminAuth（IP単位の認証失敗制限つき） → RateLimit(General)
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAdminAuthMiddleware(deps.Authenticator, deps.RateLimiter))
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Get("/me", adminHandler.Me)

				r.Route("/banners", func(r chi.Router) {
					r.Get("/", adminHandler.ListBanners)
					r.Post("/", adminHandler.CreateBanner)
					r.Delete("/", adminHandler.DeleteBanners)
					r.Post("/cleanup", adminHandler.Cleanup)
					r.Put("/{id}", adminHandler.UpdateBanner)
				})

				r.Get("/home-settings", adminHandler.GetHomeSettings)
				r.Put("/home-settings", adminHandler.UpdateHomeSettings)

				// 管理者ユーザー管理（上位管理者のみ。権限はサービス層で判定する）
				r.Route("/users", func(r chi.Router) {
					r.Get("/", adminHandler.ListAdmins)
					r.Put("/", adminHandler.SaveAdmin)
					r.Delete("/{email}", adminHandler.DeleteAdmin)
				})
			})
		})
	})

	return r
}
