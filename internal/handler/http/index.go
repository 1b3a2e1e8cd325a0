package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vendure-ecommerce/vendure-sub026/internal/httputil"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
	"github.com/vendure-ecommerce/vendure-sub026/internal/validator"
)

// fullReindexTimeout bounds a background full rebuild.
const fullReindexTimeout = 30 * time.Minute

// IndexHandler handles administrative HTTP requests against the index.
type IndexHandler struct {
	service  *service.IndexService
	defaults ContextDefaults
	logger   *slog.Logger
}

// NewIndexHandler creates a new index HTTP handler.
func NewIndexHandler(svc *service.IndexService, defaults ContextDefaults, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		service:  svc,
		defaults: defaults,
		logger:   logger,
	}
}

// ReindexVariantsRequest is the JSON request body for a targeted reindex.
type ReindexVariantsRequest struct {
	VariantIDs []string `json:"variant_ids" validate:"required,min=1,max=500"`
}

// Reindex handles POST /api/v1/admin/search/reindex. The rebuild runs in the
// background; the response only acknowledges that it started.
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	rctx := requestContext(r, h.defaults)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fullReindexTimeout)
		defer cancel()
		if _, err := h.service.Reindex(ctx, rctx); err != nil {
			h.logger.Error("background reindex failed",
				slog.String("channel_id", rctx.ChannelID),
				slog.String("error", err.Error()),
			)
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Data: map[string]string{"status": "reindex started"},
	})
}

// ReindexVariants handles POST /api/v1/admin/search/reindex/variants and
// waits for the targeted rebuild to finish.
func (h *IndexHandler) ReindexVariants(w http.ResponseWriter, r *http.Request) {
	var req ReindexVariantsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.ReindexVariants(r.Context(), requestContext(r, h.defaults), req.VariantIDs)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// RemoveProduct handles DELETE /api/v1/admin/search/products/{id}.
func (h *IndexHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if productID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "product id is required"},
		})
		return
	}

	if err := h.service.RemoveProduct(r.Context(), requestContext(r, h.defaults), productID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
