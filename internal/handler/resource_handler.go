package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rescat/internal/middleware"
	"github.com/hitoshi/rescat/internal/model"
)

// maxFeedbackBodySize はフィードバック投稿ボディの上限（64KB）。
const maxFeedbackBodySize = 64 << 10

// ResourceServiceInterface はリソースハンドラーが必要とするサービスインターフェース。
type ResourceServiceInterface interface {
	// ListResources は全リソースを作成順で返す。
	ListResources(ctx context.Context) ([]model.Resource, error)
	// GetResource は指定IDのリソースを返す。
	GetResource(ctx context.Context, resourceID string) (*model.Resource, error)
	// AddFeedback はフィードバックを追加し、更新後のリソースを返す。
	AddFeedback(ctx context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error)
}

// ResourceHandler はリソースリポジトリのHTTPハンドラー。
type ResourceHandler struct {
	service ResourceServiceInterface
	logger  *slog.Logger
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler(service ResourceServiceInterface, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{
		service: service,
		logger:  logger,
	}
}

// ListResources はリソース一覧を返す。
// GET /resources
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.ListResources(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if resources == nil {
		resources = []model.Resource{}
	}
	writeJSON(w, http.StatusOK, resources)
}

// GetResource はリソース詳細を返す。
// GET /resources/{id}
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	res, err := h.service.GetResource(r.Context(), resourceID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AddFeedback はフィードバックを追加し、更新後のリソースを201で返す。
// POST /resources/{id}/feedback
func (h *ResourceHandler) AddFeedback(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	var sub model.FeedbackSubmission
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFeedbackBodySize)).Decode(&sub); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	res, err := h.service.AddFeedback(r.Context(), resourceID, sub)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (h *ResourceHandler) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	h.logger.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeResourceNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidResourceID,
		model.ErrCodeEmptyFeedback,
		model.ErrCodeResourceIDMismatch,
		model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
