package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/httputil"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
	"github.com/vendure-ecommerce/vendure-sub026/internal/validator"
)

// ContextDefaults supplies the channel and language applied when a request
// does not carry its own.
type ContextDefaults struct {
	ChannelID       string
	DefaultLanguage string
}

// SearchHandler handles HTTP requests for search queries.
type SearchHandler struct {
	service  *service.SearchService
	defaults ContextDefaults
	logger   *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, defaults ContextDefaults, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service:  svc,
		defaults: defaults,
		logger:   logger,
	}
}

// --- Request DTOs ---

// SearchSortRequest is the explicit ordering part of a search request.
type SearchSortRequest struct {
	Name  string `json:"name" validate:"omitempty,oneof=ASC DESC"`
	Price string `json:"price" validate:"omitempty,oneof=ASC DESC"`
}

// FacetValueFilterRequest requires one facet value (and) or any of several (or).
type FacetValueFilterRequest struct {
	And string   `json:"and"`
	Or  []string `json:"or"`
}

// SearchRequest is the JSON request body for a search query.
type SearchRequest struct {
	Term               string                    `json:"term"`
	FacetValueIDs      []string                  `json:"facet_value_ids"`
	FacetValueOperator string                    `json:"facet_value_operator" validate:"omitempty,oneof=AND OR"`
	FacetValueFilters  []FacetValueFilterRequest `json:"facet_value_filters"`
	CollectionID       string                    `json:"collection_id"`
	CollectionSlug     string                    `json:"collection_slug"`
	GroupByProduct     bool                      `json:"group_by_product"`
	InStock            *bool                     `json:"in_stock"`
	Skip               int                       `json:"skip"`
	Take               int                       `json:"take"`
	Sort               *SearchSortRequest        `json:"sort"`
}

func (req *SearchRequest) toInput() domain.SearchInput {
	input := domain.SearchInput{
		Term:               strings.TrimSpace(req.Term),
		FacetValueIDs:      req.FacetValueIDs,
		FacetValueOperator: domain.LogicalOperator(req.FacetValueOperator),
		CollectionID:       req.CollectionID,
		CollectionSlug:     req.CollectionSlug,
		GroupByProduct:     req.GroupByProduct,
		InStock:            req.InStock,
		Skip:               req.Skip,
		Take:               req.Take,
	}
	for _, f := range req.FacetValueFilters {
		input.FacetValueFilters = append(input.FacetValueFilters, domain.FacetValueFilter{And: f.And, Or: f.Or})
	}
	if req.Sort != nil {
		input.Sort = &domain.SearchSort{
			Name:  domain.SortOrder(req.Sort.Name),
			Price: domain.SortOrder(req.Sort.Price),
		}
	}
	return input
}

// requestContext builds the channel and language scope from request headers,
// falling back to the configured defaults.
func requestContext(r *http.Request, defaults ContextDefaults) domain.RequestContext {
	rctx := domain.RequestContext{
		ChannelID:           defaults.ChannelID,
		LanguageCode:        defaults.DefaultLanguage,
		DefaultLanguageCode: defaults.DefaultLanguage,
	}
	if channel := r.Header.Get("X-Channel-ID"); channel != "" {
		rctx.ChannelID = channel
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		// Only the primary tag matters; the index stores bare language codes.
		if i := strings.IndexAny(lang, ",;-"); i > 0 {
			lang = lang[:i]
		}
		rctx.LanguageCode = strings.TrimSpace(lang)
	}
	return rctx
}

// --- Handlers ---

// Search handles POST /api/v1/search: the shop-facing query, restricted to
// enabled products.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, true)
}

// AdminSearch handles POST /api/v1/admin/search: same query without the
// enabled-only restriction.
func (h *SearchHandler) AdminSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, false)
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request, enabledOnly bool) {
	var req SearchRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	resp, err := h.service.Search(r.Context(), requestContext(r, h.defaults), req.toInput(), enabledOnly)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}
