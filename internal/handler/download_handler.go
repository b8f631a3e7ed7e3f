package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/bannerboard/internal/download"
	"github.com/hitoshi/bannerboard/internal/model"
	"github.com/hitoshi/bannerboard/internal/security"
)

// Downloader は画像取得のインターフェース。*download.Proxyが満たす。
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*download.Image, error)
}

// DownloadHandler は画像ダウンロードプロキシのHTTPハンドラー。
type DownloadHandler struct {
	downloader Downloader
}

// NewDownloadHandler はDownloadHandlerを生成する。
func NewDownloadHandler(downloader Downloader) *DownloadHandler {
	return &DownloadHandler{downloader: downloader}
}

// downloadFailedResponse は全試行が失敗した場合のレスポンス。
type downloadFailedResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
	URL      string `json:"url"`
}

// Download は外部の画像を取得し、添付ファイルとして返す。
// GET /api/download?url=
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("urlパラメータは必須です"))
		return
	}

	img, err := h.downloader.Download(r.Context(), rawURL)
	if err != nil {
		h.writeDownloadError(w, rawURL, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+img.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Body)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Download-Attempts", strconv.Itoa(img.Attempts))
	w.WriteHeader(http.StatusOK)
	w.Write(img.Body)
}

func (h *DownloadHandler) writeDownloadError(w http.ResponseWriter, rawURL string, err error) {
	switch {
	case errors.Is(err, security.ErrBlockedURL):
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewSSRFBlockedError())
		return
	case errors.Is(err, security.ErrInvalidURL):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
		return
	}

	var dlErr *download.Error
	if !errors.As(err, &dlErr) {
		handleServiceError(w, err)
		return
	}

	slog.Warn("画像のダウンロードに失敗しました",
		slog.String("url", rawURL),
		slog.Int("attempts", dlErr.Attempts),
		slog.String("error", dlErr.Err.Error()),
	)
	writeJSON(w, http.StatusBadGateway, downloadFailedResponse{
		Error:    "画像のダウンロードに失敗しました",
		Message:  dlErr.Err.Error(),
		Attempts: dlErr.Attempts,
		URL:      dlErr.URL,
	})
}
