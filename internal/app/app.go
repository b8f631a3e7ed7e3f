// Package app はサブコマンドごとの依存関係のワイヤリングと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bannerboard/internal/admin"
	"github.com/hitoshi/bannerboard/internal/config"
	"github.com/hitoshi/bannerboard/internal/database"
	"github.com/hitoshi/bannerboard/internal/download"
	"github.com/hitoshi/bannerboard/internal/handler"
	"github.com/hitoshi/bannerboard/internal/logger"
	"github.com/hitoshi/bannerboard/internal/metrics"
	"github.com/hitoshi/bannerboard/internal/middleware"
	"github.com/hitoshi/bannerboard/internal/model"
	"github.com/hitoshi/bannerboard/internal/repository"
	"github.com/hitoshi/bannerboard/internal/security"
	"github.com/hitoshi/bannerboard/internal/snapshot"
	"github.com/hitoshi/bannerboard/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込んだ後、
// LOG_LEVELに従ってログレベルを設定し直す。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Int("nations", len(cfg.Nations)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandAdminAdd:
		return runAdminAdd(ctx, cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetrics はプロセス単位のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig は設定のreq/min単位の値をreq/secのリミッター設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitLogin > 0 {
		rlCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
		rlCfg.LoginBurst = cfg.RateLimitLogin
	}
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// HTTPサーバーとスナップショットのポーリングを1つのerrgroupで動かし、
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established")

	// 2. リポジトリ・メトリクスの初期化
	bannerRepo := repository.NewPostgresBannerRepo(db)
	settingsRepo := repository.NewPostgresHomeSettingsRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	reg, collector := newMetrics()

	// 3. 共有状態とポーラー
	state := snapshot.NewState()
	poller := snapshot.NewPoller(bannerRepo, settingsRepo, state, collector, log)

	// 4. ドメインサービスの初期化
	cleanupJob := cleanup.NewCleanupJob(bannerRepo, collector, log)
	adminService := admin.NewService(
		adminRepo, bannerRepo, settingsRepo,
		security.NewTextSanitizer(), cleanupJob, poller,
		cfg.Nations, log,
	)

	ssrfGuard := security.NewSSRFGuard()
	proxy := download.NewProxy(
		ssrfGuard, ssrfGuard.NewSafeClient(cfg.DownloadTimeout), collector, log,
		download.Config{
			MaxAttempts:    cfg.DownloadMaxAttempts,
			AttemptTimeout: cfg.DownloadTimeout,
			MaxBodySize:    cfg.DownloadMaxSize,
		},
	)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       rateLimiter,
		Authenticator:     adminService,
		State:             state,
		Nations:           cfg.Nations,
		HealthChecker:     db,
		Downloader:        proxy,
		AdminService:      adminService,
		Gatherer:          reg,
	})

	// 6. HTTPサーバーとポーラーの起動
	// ダウンロードは最大3回×30秒かかりうるため、書き込みタイムアウトは長めにとる
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		poller.Start(gctx, cfg.PollInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 起動直後に1回、以降はCLEANUP_SCHEDULEのcron式に従ってクリーンアップジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信すると実行中のジョブの完了を待って終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established (worker)")

	_, collector := newMetrics()
	job := cleanup.NewCleanupJob(repository.NewPostgresBannerRepo(db), collector, log)

	runJob := func() {
		if _, err := job.Run(ctx); err != nil {
			log.Error("cleanup job failed", slog.String("error", err.Error()))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.CleanupSchedule, runJob); err != nil {
		return fmt.Errorf("invalid CLEANUP_SCHEDULE %q: %w", cfg.CleanupSchedule, err)
	}

	log.Info("worker starting", slog.String("cleanup_schedule", cfg.CleanupSchedule))

	// 起動直後に1回実行
	runJob()

	c.Start()
	<-ctx.Done()

	log.Info("shutting down worker...")
	<-c.Stop().Done()

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runAdminAdd は管理者を作成または更新する。最初の上位管理者の登録に使う。
// 引数は <email> <key> [role]。roleの省略時はsenior_admin。
func runAdminAdd(ctx context.Context, cfg *config.Config, args []string) error {
	user, err := parseAdminAddArgs(args)
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.NewPostgresAdminRepo(db).Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to save admin: %w", err)
	}

	slog.Info("admin saved",
		slog.String("admin_email", user.Email),
		slog.String("role", string(user.Role)),
	)
	return nil
}

// parseAdminAddArgs はadmin-addの引数を検証し、キーをハッシュ化した管理者を返す。
func parseAdminAddArgs(args []string) (*model.AdminUser, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, errors.New("usage: admin-add <email> <key> [admin|senior_admin]")
	}

	email := admin.NormalizeEmail(args[0])
	if email == "" {
		return nil, errors.New("email is required")
	}

	role := model.AdminRoleSenior
	if len(args) == 3 {
		role = model.AdminRole(args[2])
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role: %s", role)
	}

	hash, err := admin.HashKey(args[1])
	if err != nil {
		return nil, err
	}

	return &model.AdminUser{Email: email, KeyHash: hash, Role: role}, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
