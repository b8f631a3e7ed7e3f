package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bannerboard/internal/admin"
	"github.com/hitoshi/bannerboard/internal/banner"
	"github.com/hitoshi/bannerboard/internal/middleware"
	"github.com/hitoshi/bannerboard/internal/model"
)

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
// *admin.Serviceが満たす。
type AdminServiceInterface interface {
	Login(ctx context.Context, email, key string) (*admin.LoginResult, error)
	Cleanup(ctx context.Context) ([]int64, error)
	ListBanners(ctx context.Context, f admin.BannerFilter) ([]banner.View, error)
	SaveBanner(ctx context.Context, in model.BannerInput) (int64, error)
	DeleteBanners(ctx context.Context, ids []int64) (int64, error)
	HomeSettings(ctx context.Context) (*model.HomeSettings, error)
	UpdateHomeSettings(ctx context.Context, pcURL, mobileURL string) (*model.HomeSettings, error)
	ListAdmins(ctx context.Context, requester *model.AdminUser) ([]*model.AdminUser, error)
	SaveAdmin(ctx context.Context, requester *model.AdminUser, email, key string, role model.AdminRole) (*model.AdminUser, error)
	DeleteAdmin(ctx context.Context, requester *model.AdminUser, email string) error
}

// AdminHandler は管理画面のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email string `json:"email"`
	Key   string `json:"key"`
}

type loginResponse struct {
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	CleanedIDs []int64 `json:"cleaned_ids"`
}

type adminUserResponse struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// bannerRequest はバナー作成・更新リクエストのボディ。
type bannerRequest struct {
	NationKey string `json:"nation_key"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Link      string `json:"link"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// adminBannerResponse は管理画面の一覧の1要素。日付は入力値のまま返す。
type adminBannerResponse struct {
	ID             int64           `json:"id"`
	NationKey      string          `json:"nation_key"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	Link           string          `json:"link"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Category       banner.Category `json:"category"`
	Status         banner.Status   `json:"status"`
	Expired        bool            `json:"expired"`
	DisplayEndDate string          `json:"display_end_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type deleteBannersRequest struct {
	IDs []int64 `json:"ids"`
}

type homeSettingsRequest struct {
	PCBackgroundURL     string `json:"pc_background_url"`
	MobileBackgroundURL string `json:"mobile_background_url"`
}

type saveAdminRequest struct {
	Email string `json:"email"`
	Key   string `json:"key"`
	Role  string `json:"role"`
}

func toAdminUserResponse(u *model.AdminUser) adminUserResponse {
	return adminUserResponse{Email: u.Email, Role: string(u.Role), UpdatedAt: u.UpdatedAt}
}

func toAdminBannerResponse(v banner.View) adminBannerResponse {
	b := v.Banner
	return adminBannerResponse{
		ID:             b.ID,
		NationKey:      b.NationKey,
		Title:          b.Title,
		URL:            b.URL,
		Link:           b.Link,
		StartDate:      b.StartDate,
		EndDate:        b.EndDate,
		Category:       v.Category,
		Status:         v.Classification.Status,
		Expired:        v.Classification.Expired,
		DisplayEndDate: v.DisplayEnd.Display(),
		CreatedAt:      b.CreatedAt,
	}
}

// requester は認証ミドルウェアが注入した管理者を返す。
func requester(w http.ResponseWriter, r *http.Request) (*model.AdminUser, bool) {
	user, ok := middleware.AdminFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return user, true
}

// Login はアクセスキーを検証し、自動削除を1回実行する。
// POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Key)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	cleaned := result.CleanedIDs
	if cleaned == nil {
		cleaned = []int64{}
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Email:      result.User.Email,
		Role:       string(result.User.Role),
		CleanedIDs: cleaned,
	})
}

// Me は認証済みの管理者を返す。
// GET /api/admin/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAdminUserResponse(user))
}

// ListBanners は管理画面のバナー一覧を返す。
// GET /api/admin/banners?nation=&from=&to=
func (h *AdminHandler) ListBanners(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.service.ListBanners(r.Context(), admin.BannerFilter{
		NationKey: q.Get("nation"),
		From:      q.Get("from"),
		To:        q.Get("to"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]adminBannerResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toAdminBannerResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"banners": items})
}

// CreateBanner はバナーを作成する。
// POST /api/admin/banners
func (h *AdminHandler) CreateBanner(w http.ResponseWriter, r *http.Request) {
	h.saveBanner(w, r, 0, http.StatusCreated)
}

// UpdateBanner はバナーを更新する。
// PUT /api/admin/banners/{id}
func (h *AdminHandler) UpdateBanner(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBannerError("IDが不正です"))
		return
	}
	h.saveBanner(w, r, id, http.StatusOK)
}

func (h *AdminHandler) saveBanner(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req bannerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	savedID, err := h.service.SaveBanner(r.Context(), model.BannerInput{
		ID:        id,
		NationKey: req.NationKey,
		Title:     req.Title,
		URL:       req.URL,
		Link:      req.Link,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, status, map[string]int64{"id": savedID})
}

// DeleteBanners は指定IDのバナーをまとめて削除する。
// DELETE /api/admin/banners
func (h *AdminHandler) DeleteBanners(w http.ResponseWriter, r *http.Request) {
	var req deleteBannersRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	n, err := h.service.DeleteBanners(r.Context(), req.IDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Cleanup は保持期間を超過したバナーの削除を手動で実行する。
// POST /api/admin/banners/cleanup
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.Cleanup(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"deleted_ids": ids})
}

// GetHomeSettings はストアの最新のトップページ設定を返す。
// GET /api/admin/home-settings
func (h *AdminHandler) GetHomeSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.HomeSettings(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, homeSettingsResponse{
		PCBackgroundURL:     settings.PCBackgroundURL,
		MobileBackgroundURL: settings.MobileBackgroundURL,
	})
}

// UpdateHomeSettings はトップページ設定を更新する。
// PUT /api/admin/home-settings
func (h *AdminHandler) UpdateHomeSettings(w http.ResponseWriter, r *http.Request) {
	var req homeSettingsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	settings, err := h.service.UpdateHomeSettings(r.Context(), req.PCBackgroundURL, req.MobileBackgroundURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, homeSettingsResponse{
		PCBackgroundURL:     settings.PCBackgroundURL,
		MobileBackgroundURL: settings.MobileBackgroundURL,
	})
}

// ListAdmins は管理者一覧を返す。
// GET /api/admin/users
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListAdmins(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toAdminUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": resp})
}

// SaveAdmin は管理者を作成または更新する。
// PUT /api/admin/users
func (h *AdminHandler) SaveAdmin(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	var req saveAdminRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	saved, err := h.service.SaveAdmin(r.Context(), user, req.Email, req.Key, model.AdminRole(req.Role))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminUserResponse(saved))
}

// DeleteAdmin は管理者を削除する。
// DELETE /api/admin/users/{email}
func (h *AdminHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAdmin(r.Context(), user, chi.URLParam(r, "email")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
