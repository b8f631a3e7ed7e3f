package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bannerboard/internal/banner"
	"github.com/hitoshi/bannerboard/internal/model"
	"github.com/hitoshi/bannerboard/internal/render"
	"github.com/hitoshi/bannerboard/internal/snapshot"
)

// maxLatestNews は/api/news/latestで指定できる件数の上限。
const maxLatestNews = 50

// SnapshotReader は公開APIが参照する共有状態。*snapshot.Stateが満たす。
type SnapshotReader interface {
	Current() *snapshot.Snapshot
	Loaded() bool
	LastError() error
}

// HealthChecker はヘルスチェック用のDB疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// PublicHandler は公開ページ向けのHTTPハンドラー。
// 全てのレスポンスはストアではなくスナップショットから組み立てる。
type PublicHandler struct {
	state   SnapshotReader
	nations []model.Nation
	health  HealthChecker
	now     func() time.Time
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(state SnapshotReader, nations []model.Nation, health HealthChecker) *PublicHandler {
	return &PublicHandler{
		state:   state,
		nations: nations,
		health:  health,
		now:     time.Now,
	}
}

type nationsResponse struct {
	Nations     []render.NationSummary `json:"nations"`
	Fingerprint string                 `json:"fingerprint"`
	Stale       bool                   `json:"stale"`
}

type latestNewsResponse struct {
	Items       []render.Item `json:"items"`
	Fingerprint string        `json:"fingerprint"`
	Stale       bool          `json:"stale"`
}

type homeSettingsResponse struct {
	PCBackgroundURL     string `json:"pc_background_url"`
	MobileBackgroundURL string `json:"mobile_background_url"`
}

// snapshot は現在のスナップショットを返す。初回取得前は503を書き込みnilを返す。
func (h *PublicHandler) snapshot(w http.ResponseWriter) (*snapshot.Snapshot, bool) {
	if !h.state.Loaded() {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewSnapshotUnavailableError())
		return nil, false
	}
	return h.state.Current(), true
}

func (h *PublicHandler) stale() bool {
	return h.state.LastError() != nil
}

func (h *PublicHandler) today() banner.Date {
	return banner.DateOf(h.now())
}

// Health はDBの疎通を確認する。
// GET /health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListNations は国カタログを表示対象件数付きで返す。
// GET /api/nations
func (h *PublicHandler) ListNations(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nationsResponse{
		Nations:     render.Nations(h.nations, snap, h.today()),
		Fingerprint: snap.Fingerprint,
		Stale:       h.stale(),
	})
}

// NationBanners は国ごとのバナーページを返す。
// GET /api/nations/{key}/banners
func (h *PublicHandler) NationBanners(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	page := render.NationPage(snap, chi.URLParam(r, "key"), h.today())
	page.Stale = h.stale()
	writeJSON(w, http.StatusOK, page)
}

// News はニュース一覧ページを返す。
// GET /api/news
func (h *PublicHandler) News(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	page := render.NewsPage(snap, h.today())
	page.Stale = h.stale()
	writeJSON(w, http.StatusOK, page)
}

// LatestNews はトップページ用の最新ニュースを返す。
// GET /api/news/latest?limit=3
func (h *PublicHandler) LatestNews(w http.ResponseWriter, r *http.Request) {
	limit := banner.DefaultLatestNews
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLatestNews {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     model.ErrCodeInvalidRequest,
				Message:  "limitは1から" + strconv.Itoa(maxLatestNews) + "の整数で指定してください。",
				Category: "validation",
				Action:   "limitの値を確認してください。",
			})
			return
		}
		limit = n
	}

	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, latestNewsResponse{
		Items:       render.LatestNews(snap, h.today(), limit),
		Fingerprint: snap.Fingerprint,
		Stale:       h.stale(),
	})
}

// HomeSettings はトップページの背景設定を返す。
// GET /api/home-settings
func (h *PublicHandler) HomeSettings(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, homeSettingsResponse{
		PCBackgroundURL:     snap.HomeSettings.PCBackgroundURL,
		MobileBackgroundURL: snap.HomeSettings.MobileBackgroundURL,
	})
}
