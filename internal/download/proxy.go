// Package download は外部の画像URLを取得してダウンロードさせるプロキシを提供する。
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/bannerboard/internal/metrics"
)

const (
	defaultContentType = "image/jpeg"
	defaultFileName    = "image.jpg"
	userAgent          = "Mozilla/5.0 (compatible; Bannerboard/1.0; +image-download)"
	acceptHeader       = "image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"
)

// ErrTooLarge は画像が最大サイズを超えたことを表す。再試行しない。
var ErrTooLarge = errors.New("image exceeds maximum size")

// URLValidator はリクエスト前のURL検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Config はプロキシの設定。ゼロ値の項目はデフォルト値を使う。
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	MaxBodySize    int64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	return c
}

// Image は取得に成功した画像。
type Image struct {
	Body        []byte
	ContentType string
	FileName    string
	Attempts    int
}

// Error は全試行が失敗したことを表す。
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d回の試行で画像を取得できませんでした: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Proxy は画像を取得する。429/5xxと通信エラーは線形バックオフで再試行する。
type Proxy struct {
	validator URLValidator
	client    *http.Client
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewProxy はProxyの新しいインスタンスを生成する。
// clientには通常SSRFGuardService.NewSafeClientで生成したクライアントを渡す。
func NewProxy(validator URLValidator, client *http.Client, m metrics.MetricsCollector, logger *slog.Logger, cfg Config) *Proxy {
	return &Proxy{
		validator: validator,
		client:    client,
		metrics:   m,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Download はURLの画像を取得する。
// URL検証の失敗はsecurity.ErrInvalidURL/ErrBlockedURLをそのまま返し、
// 取得の失敗は*Errorを返す。
func (p *Proxy) Download(ctx context.Context, rawURL string) (*Image, error) {
	if err := p.validator.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	var lastErr error
	attempts := 0
	for attempts < p.cfg.MaxAttempts {
		attempts++
		p.metrics.RecordDownloadAttempt()

		img, retry, err := p.attempt(ctx, rawURL)
		if err == nil {
			img.Attempts = attempts
			p.metrics.RecordDownloadResult(true, attempts)
			return img, nil
		}
		lastErr = err

		p.logger.Warn("画像の取得に失敗しました",
			slog.String("url", rawURL),
			slog.Int("attempt", attempts),
			slog.Bool("retry", retry && attempts < p.cfg.MaxAttempts),
			slog.String("error", err.Error()),
		)

		if !retry || attempts >= p.cfg.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, Backoff(attempts)); err != nil {
			lastErr = err
			break
		}
	}

	p.metrics.RecordDownloadResult(false, attempts)
	return nil, &Error{URL: rawURL, Attempts: attempts, Err: lastErr}
}

// attempt は1回分の取得を行う。2番目の戻り値は再試行すべきかを表す。
func (p *Proxy) attempt(ctx context.Context, rawURL string) (*Image, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		// 呼び出し元のキャンセルは再試行しない
		retry := !errors.Is(ctx.Err(), context.Canceled)
		return nil, retry, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	p.metrics.RecordUpstreamStatus(resp.StatusCode)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case AttemptOK:
	case AttemptRetry:
		return nil, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	default:
		return nil, false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodySize+1))
	if err != nil {
		return nil, true, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > p.cfg.MaxBodySize {
		return nil, false, fmt.Errorf("%w (%d bytes)", ErrTooLarge, p.cfg.MaxBodySize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return &Image{
		Body:        body,
		ContentType: contentType,
		FileName:    FileName(rawURL),
	}, false, nil
}

// FileName はURLパスの最後のセグメントをファイル名として返す。
// 取得できない場合はimage.jpg。
func FileName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return defaultFileName
	}
	p := parsed.Path
	name := p[strings.LastIndex(p, "/")+1:]
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return defaultFileName
	}
	return name
}
