// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/bannerboard/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Snapshot
	PollInterval time.Duration

	// Cleanup（workerモードのcron式）
	CleanupSchedule string

	// Download
	DownloadTimeout     time.Duration
	DownloadMaxSize     int64
	DownloadMaxAttempts int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Logging
	LogLevel string

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string

	// TrustProxyHeaders はX-Forwarded-For等からクライアントIPを求めるか。
	// リバースプロキシ配下でのみ有効にする。
	TrustProxyHeaders bool

	// Nations
	NationsFile string
	Nations     []model.Nation
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または国カタログが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	// Optional fields with defaults
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 30*time.Second)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "0 3 * * *")
	cfg.DownloadTimeout = getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Second)
	cfg.DownloadMaxSize = getEnvInt64("DOWNLOAD_MAX_SIZE", 10485760)
	cfg.DownloadMaxAttempts = getEnvInt("DOWNLOAD_MAX_ATTEMPTS", 3)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.NationsFile = os.Getenv("NATIONS_FILE")

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive: %v", cfg.PollInterval)
	}

	nations, err := LoadNations(cfg.NationsFile)
	if err != nil {
		return nil, err
	}
	cfg.Nations = nations

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
