package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/bannerboard/internal/model"
)

func adminRequest(email string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/banners", nil)
	return req.WithContext(ContextWithAdmin(req.Context(), &model.AdminUser{Email: email, Role: model.AdminRoleAdmin}))
}

func loginRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- GeneralMiddleware（管理API全般）のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		LoginRate:       1,
		LoginBurst:      10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, adminRequest("staff@example.com"))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		LoginRate:       1,
		LoginBurst:      10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), adminRequest("staff@example.com"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, adminRequest("staff@example.com"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retrySeconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Errorf("Retry-After header should be a number, got %q", resp.Header.Get("Retry-After"))
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestRateLimitMiddleware_IsolatesAdmins(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		LoginRate:       1,
		LoginBurst:      10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, adminRequest("a@example.com"))
	wA2 := httptest.NewRecorder()
	handler.ServeHTTP(wA2, adminRequest("a@example.com"))
	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, adminRequest("b@example.com"))

	if wA.Result().StatusCode != http.StatusOK {
		t.Errorf("admin A first: status = %d, want %d", wA.Result().StatusCode, http.StatusOK)
	}
	if wA2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("admin A second: status = %d, want %d", wA2.Result().StatusCode, http.StatusTooManyRequests)
	}
	// 管理者Bは管理者Aのレートに影響されない
	if wB.Result().StatusCode != http.StatusOK {
		t.Errorf("admin B first: status = %d, want %d", wB.Result().StatusCode, http.StatusOK)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_NoAdmin_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without admin")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/banners", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- LoginMiddleware のテスト ---

func TestLoginRateLimit_PerClientIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    200,
		LoginRate:       1,
		LoginBurst:      3,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	// 同じIPでもポートが違っても同じキー
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, loginRequest("203.0.113.7:"+strconv.Itoa(40000+i)))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, loginRequest("203.0.113.7:50000"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("4th request: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, loginRequest("198.51.100.1:1234"))
	if other.Result().StatusCode != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", other.Result().StatusCode, http.StatusOK)
	}
	if got := rl.LoginLimiterCount(); got != 2 {
		t.Errorf("LoginLimiterCount = %d, want 2", got)
	}
}

func TestLoginRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		LoginRate:       1,
		LoginBurst:      5,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	login := rl.LoginMiddleware()(okHandler())

	general.ServeHTTP(httptest.NewRecorder(), adminRequest("staff@example.com"))
	w := httptest.NewRecorder()
	general.ServeHTTP(w, adminRequest("staff@example.com"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("general: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}

	lw := httptest.NewRecorder()
	login.ServeHTTP(lw, loginRequest("203.0.113.7:1"))
	if lw.Result().StatusCode != http.StatusOK {
		t.Errorf("login: status = %d, want %d", lw.Result().StatusCode, http.StatusOK)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.7:1234", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

// --- クリーンアップ ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		LoginRate:       1,
		LoginBurst:      10,
		CleanupInterval: 50 * time.Millisecond, // テスト用に短く
	})
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), adminRequest("staff@example.com"))
	rl.LoginMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), loginRequest("203.0.113.7:1"))

	if rl.GeneralLimiterCount() == 0 || rl.LoginLimiterCount() == 0 {
		t.Fatal("expected limiter entries")
	}

	// TTLはCleanupIntervalの2倍（100ms）。300ms待てば削除される
	time.Sleep(300 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 general entries after cleanup, got %d", count)
	}
	if count := rl.LoginLimiterCount(); count != 0 {
		t.Errorf("expected 0 login entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

// --- ミドルウェアチェーンとの統合テスト ---

func TestRateLimitMiddleware_InChainWithAuthAndCORS(t *testing.T) {
	auth := &mockAuthenticator{
		user: &model.AdminUser{Email: "staff@example.com", Role: model.AdminRoleAdmin},
	}

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		LoginRate:       1,
		LoginBurst:      10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	// CORS -> Auth -> RateLimit -> Handler
	handler := NewCORSMiddleware("http://localhost:3000")(
		NewAdminAuthMiddleware(auth, nil)(
			rl.GeneralMiddleware()(okHandler()),
		),
	)

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/banners", nil)
		req.Header.Set(AdminEmailHeader, "staff@example.com")
		req.Header.Set(AdminKeyHeader, "long-enough-key")
		return req
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newReq())
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, newReq())
	if w3.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", w3.Result().StatusCode, http.StatusTooManyRequests)
	}
	if got := w3.Result().Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q on 429", got)
	}
}

// --- デフォルト設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.LoginRate == 0 {
		t.Error("LoginRate should not be 0")
	}
	if cfg.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", cfg.LoginBurst)
	}
}
