package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bannerboard/internal/model"
	"github.com/hitoshi/bannerboard/internal/render"
	"github.com/hitoshi/bannerboard/internal/snapshot"
)

// --- テストヘルパー ---

var testNow = time.Date(2024, time.April, 20, 9, 0, 0, 0, time.UTC)

var testNations = []model.Nation{
	{Key: "jp", Name: "Japan"},
	{Key: "fr", Name: "France"},
}

func testBanners() []model.Banner {
	return []model.Banner{
		{ID: 1, NationKey: "jp", Title: "終了間近", URL: "https://img.example.com/1.png", StartDate: "01/04/2024"},
		{ID: 2, NationKey: "jp", Title: "掲載中", URL: "https://img.example.com/2.png", StartDate: "15/04/2024", EndDate: "30/04/2024"},
		{ID: 3, NationKey: "jp", Title: "期限切れ", URL: "https://img.example.com/3.png", StartDate: "01/01/2024"},
		{ID: 4, NationKey: "news", Title: "記事A", URL: "https://img.example.com/4.png", StartDate: "10/04/2024"},
		{ID: 5, NationKey: "news", Title: "記事B", URL: "https://img.example.com/5.png", StartDate: "18/04/2024"},
		{ID: 6, NationKey: "news", Title: "記事C", URL: "https://img.example.com/6.png", StartDate: "01/03/2024"},
		{ID: 7, NationKey: "news", Title: "記事D", URL: "https://img.example.com/7.png", StartDate: "01/02/2024"},
	}
}

// newLoadedState は1回取得に成功した状態のStateを返す。
func newLoadedState(t *testing.T, banners []model.Banner, settings model.HomeSettings) *snapshot.State {
	t.Helper()
	snap, err := snapshot.New(banners, settings, testNow)
	if err != nil {
		t.Fatalf("snapshot.New returned error: %v", err)
	}
	state := snapshot.NewState()
	state.Replace(snap)
	return state
}

func newTestPublicHandler(state SnapshotReader) *PublicHandler {
	h := NewPublicHandler(state, testNations, nil)
	h.now = func() time.Time { return testNow }
	return h
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// pageBody はページレスポンスのうちテストで検証する項目。
type pageBody struct {
	Kind      string `json:"kind"`
	NationKey string `json:"nation_key"`
	Items     []struct {
		ID int64 `json:"id"`
	} `json:"items"`
	Empty       string `json:"empty"`
	Fingerprint string `json:"fingerprint"`
	Stale       bool   `json:"stale"`
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- GET /health テスト ---

func TestPublicHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"DB疎通あり", nil, http.StatusOK},
		{"DB疎通なし", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPublicHandler(snapshot.NewState(), nil, &mockHealthChecker{err: tt.err})
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- 初回取得前 ---

func TestPublicHandler_BeforeFirstLoad_Returns503(t *testing.T) {
	h := newTestPublicHandler(snapshot.NewState())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		req     *http.Request
	}{
		{"nations", h.ListNations, httptest.NewRequest(http.MethodGet, "/api/nations", nil)},
		{"nation banners", h.NationBanners, withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/nations/jp/banners", nil), "key", "jp")},
		{"news", h.News, httptest.NewRequest(http.MethodGet, "/api/news", nil)},
		{"latest news", h.LatestNews, httptest.NewRequest(http.MethodGet, "/api/news/latest", nil)},
		{"home settings", h.HomeSettings, httptest.NewRequest(http.MethodGet, "/api/home-settings", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, tt.req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
			}
			body := parseAPIErrorResponse(t, w)
			if body["code"] != model.ErrCodeSnapshotUnavailable {
				t.Errorf("code = %q, want %q", body["code"], model.ErrCodeSnapshotUnavailable)
			}
		})
	}
}

// --- GET /api/nations/{key}/banners テスト ---

func TestPublicHandler_NationBanners_FiltersExpired(t *testing.T) {
	h := newTestPublicHandler(newLoadedState(t, testBanners(), model.HomeSettings{}))

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/nations/jp/banners", nil), "key", "jp")
	w := httptest.NewRecorder()
	h.NationBanners(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var page pageBody
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if page.Kind != string(render.PageNation) || page.NationKey != "jp" {
		t.Errorf("kind/nation = %q/%q, want nation/jp", page.Kind, page.NationKey)
	}
	if len(page.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(page.Items))
	}
	// 終了間近は後ろに並ぶ
	if page.Items[0].ID != 2 || page.Items[1].ID != 1 {
		t.Errorf("order = [%d %d], want [2 1]", page.Items[0].ID, page.Items[1].ID)
	}
	if page.Stale {
		t.Error("stale = true, want false")
	}
	if page.Fingerprint == "" {
		t.Error("fingerprint is empty")
	}
}

func TestPublicHandler_NationBanners_UnknownNationIsEmpty(t *testing.T) {
	h := newTestPublicHandler(newLoadedState(t, testBanners(), model.HomeSettings{}))

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/nations/fr/banners", nil), "key", "fr")
	w := httptest.NewRecorder()
	h.NationBanners(w, req)

	var page pageBody
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("len(items) = %d, want 0", len(page.Items))
	}
	if page.Empty != string(render.EmptyNoBanners) {
		t.Errorf("empty = %q, want %q", page.Empty, render.EmptyNoBanners)
	}
}

func TestPublicHandler_StaleAfterFailedRefresh(t *testing.T) {
	state := newLoadedState(t, testBanners(), model.HomeSettings{})
	state.Fail(errors.New("db down"))
	h := newTestPublicHandler(state)

	w := httptest.NewRecorder()
	h.News(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var page pageBody
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !page.Stale {
		t.Error("stale = false, want true")
	}
	if len(page.Items) != 4 {
		t.Errorf("len(items) = %d, want 4", len(page.Items))
	}
}

// --- GET /api/news/latest テスト ---

func TestPublicHandler_LatestNews_DefaultLimit(t *testing.T) {
	h := newTestPublicHandler(newLoadedState(t, testBanners(), model.HomeSettings{}))

	w := httptest.NewRecorder()
	h.LatestNews(w, httptest.NewRequest(http.MethodGet, "/api/news/latest", nil))

	var resp pageBody
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	got := make([]int64, len(resp.Items))
	for i, it := range resp.Items {
		got[i] = it.ID
	}
	want := []int64{5, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ids = %v, want %v", got, want)
			break
		}
	}
}

func TestPublicHandler_LatestNews_Limit(t *testing.T) {
	h := newTestPublicHandler(newLoadedState(t, testBanners(), model.HomeSettings{}))

	w := httptest.NewRecorder()
	h.LatestNews(w, httptest.NewRequest(http.MethodGet, "/api/news/latest?limit=1", nil))

	var resp pageBody
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != 5 {
		t.Errorf("items = %v, want only id 5", resp.Items)
	}
}

func TestPublicHandler_LatestNews_InvalidLimit(t *testing.T) {
	h := newTestPublicHandler(newLoadedState(t, testBanners(), model.HomeSettings{}))

	for _, limit := range []string{"0", "-1", "abc", "51"} {
		w := httptest.NewRecorder()
		h.LatestNews(w, httptest.NewRequest(http.MethodGet, "/api/news/latest?limit="+limit, nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want %d", limit, w.Code, http.StatusBadRequest)
		}
	}
}

// --- GET /api/nations テスト ---

func TestPublicHandler_ListNations_CountsVisible(t *testing.T) {
	h := newTestPublicHandler(newLoadedState(t, testBanners(), model.HomeSettings{}))

	w := httptest.NewRecorder()
	h.ListNations(w, httptest.NewRequest(http.MethodGet, "/api/nations", nil))

	var resp nationsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Nations) != 2 {
		t.Fatalf("len(nations) = %d, want 2", len(resp.Nations))
	}
	if resp.Nations[0].Key != "jp" || resp.Nations[0].VisibleCount != 2 {
		t.Errorf("nations[0] = %+v, want jp with 2 visible", resp.Nations[0])
	}
	if resp.Nations[1].Key != "fr" || resp.Nations[1].VisibleCount != 0 {
		t.Errorf("nations[1] = %+v, want fr with 0 visible", resp.Nations[1])
	}
}

// --- GET /api/home-settings テスト ---

func TestPublicHandler_HomeSettings(t *testing.T) {
	settings := model.HomeSettings{
		PCBackgroundURL:     "https://img.example.com/pc.jpg",
		MobileBackgroundURL: "https://img.example.com/sp.jpg",
	}
	h := newTestPublicHandler(newLoadedState(t, nil, settings))

	w := httptest.NewRecorder()
	h.HomeSettings(w, httptest.NewRequest(http.MethodGet, "/api/home-settings", nil))

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["pc_background_url"] != settings.PCBackgroundURL {
		t.Errorf("pc_background_url = %q, want %q", resp["pc_background_url"], settings.PCBackgroundURL)
	}
	if resp["mobile_background_url"] != settings.MobileBackgroundURL {
		t.Errorf("mobile_background_url = %q, want %q", resp["mobile_background_url"], settings.MobileBackgroundURL)
	}
}
