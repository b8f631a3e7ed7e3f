package security

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は管理画面から入力された値を保存前に正規化する。
type TextSanitizerService interface {
	// SanitizeTitle はタイトルからHTMLタグを除去し、前後の空白を削ったプレーンテキストを返す。
	SanitizeTitle(raw string) string

	// NormalizeURL は画像URLやリンク先として使える絶対URL（http/https）かを検証し、
	// 前後の空白を除いた値を返す。空文字列はそのまま返す。
	NormalizeURL(raw string) (string, error)
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicy（全タグ除去）でサニタイザーを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeTitle はタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした文字実体参照は元の文字に戻す。
// クライアントはテキストとして表示するため、HTMLとしては扱わない。
func (s *textSanitizer) SanitizeTitle(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

func (s *textSanitizer) NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !isAllowedScheme(u.Scheme) {
		return "", fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return trimmed, nil
}
