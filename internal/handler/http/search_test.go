package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
)

// --- Stub Strategy ---

// stubStrategy records the last query it was asked and answers with canned
// data.
type stubStrategy struct {
	lastCtx         domain.RequestContext
	lastInput       domain.SearchInput
	lastEnabledOnly bool

	rows []domain.SearchResultRow
	err  error
}

func (s *stubStrategy) GetSearchResults(_ context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) ([]domain.SearchResultRow, error) {
	s.lastCtx, s.lastInput, s.lastEnabledOnly = rctx, input, enabledOnly
	return s.rows, s.err
}

func (s *stubStrategy) GetTotalCount(_ context.Context, _ domain.RequestContext, _ domain.SearchInput, _ bool) (int, error) {
	return len(s.rows), s.err
}

func (s *stubStrategy) GetFacetValueIDs(_ context.Context, _ domain.RequestContext, _ domain.SearchInput, _ bool) (map[string]int, error) {
	return map[string]int{"fv-1": 2}, s.err
}

func (s *stubStrategy) GetCollectionIDs(_ context.Context, _ domain.RequestContext, _ domain.SearchInput, _ bool) (map[string]int, error) {
	return map[string]int{"col-1": 1}, s.err
}

// ----------------------------------------------------------------------------

var testDefaults = ContextDefaults{ChannelID: "default-channel", DefaultLanguage: "en"}

func newSearchRouter(strategy *stubStrategy) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewSearchService(strategy, nil, logger)
	h := NewSearchHandler(svc, testDefaults, logger)

	r := chi.NewRouter()
	r.Post("/api/v1/search", h.Search)
	r.Post("/api/v1/admin/search", h.AdminSearch)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Search Handler Tests ---

func TestSearch_ReturnsAssembledResponse(t *testing.T) {
	strategy := &stubStrategy{rows: []domain.SearchResultRow{
		{ProductVariantID: "var-1", ProductID: "prod-1", SKU: "SKU-1", ProductName: "Red Hat"},
	}}
	router := newSearchRouter(strategy)

	w := postJSON(t, router, "/api/v1/search", `{"term":"red hat"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data domain.SearchResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "var-1", resp.Data.Items[0].ProductVariantID)
	assert.Equal(t, 1, resp.Data.TotalItems)
	assert.Equal(t, map[string]int{"fv-1": 2}, resp.Data.FacetValueCounts)
	assert.Equal(t, map[string]int{"col-1": 1}, resp.Data.CollectionCounts)
}

func TestSearch_EnabledOnlyDependsOnRoute(t *testing.T) {
	strategy := &stubStrategy{}
	router := newSearchRouter(strategy)

	postJSON(t, router, "/api/v1/search", `{}`, nil)
	assert.True(t, strategy.lastEnabledOnly, "shop search should be enabled-only")

	postJSON(t, router, "/api/v1/admin/search", `{}`, nil)
	assert.False(t, strategy.lastEnabledOnly, "admin search should include disabled products")
}

func TestSearch_AppliesDefaultContext(t *testing.T) {
	strategy := &stubStrategy{}
	router := newSearchRouter(strategy)

	postJSON(t, router, "/api/v1/search", `{}`, nil)

	assert.Equal(t, "default-channel", strategy.lastCtx.ChannelID)
	assert.Equal(t, "en", strategy.lastCtx.LanguageCode)
	assert.Equal(t, "en", strategy.lastCtx.DefaultLanguageCode)
}

func TestSearch_ReadsContextFromHeaders(t *testing.T) {
	strategy := &stubStrategy{}
	router := newSearchRouter(strategy)

	postJSON(t, router, "/api/v1/search", `{}`, map[string]string{
		"X-Channel-ID":    "channel-uk",
		"Accept-Language": "de-DE,de;q=0.9",
	})

	assert.Equal(t, "channel-uk", strategy.lastCtx.ChannelID)
	assert.Equal(t, "de", strategy.lastCtx.LanguageCode)
	assert.Equal(t, "en", strategy.lastCtx.DefaultLanguageCode, "fallback stays at the configured default")
}

func TestSearch_MapsRequestFieldsToInput(t *testing.T) {
	strategy := &stubStrategy{}
	router := newSearchRouter(strategy)

	body := `{
		"term": "  shoe  ",
		"facet_value_ids": ["fv-1", "fv-2"],
		"facet_value_operator": "OR",
		"collection_slug": "summer",
		"group_by_product": true,
		"in_stock": true,
		"skip": 20,
		"take": 50,
		"sort": {"price": "DESC"}
	}`
	w := postJSON(t, router, "/api/v1/search", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	in := strategy.lastInput
	assert.Equal(t, "shoe", in.Term, "term should be trimmed")
	assert.Equal(t, []string{"fv-1", "fv-2"}, in.FacetValueIDs)
	assert.Equal(t, domain.OperatorOr, in.FacetValueOperator)
	assert.Equal(t, "summer", in.CollectionSlug)
	assert.True(t, in.GroupByProduct)
	require.NotNil(t, in.InStock)
	assert.True(t, *in.InStock)
	assert.Equal(t, 20, in.Skip)
	assert.Equal(t, 50, in.Take)
	require.NotNil(t, in.Sort)
	assert.Equal(t, domain.SortDesc, in.Sort.Price)
}

func TestSearch_ClampsPagination(t *testing.T) {
	strategy := &stubStrategy{}
	router := newSearchRouter(strategy)

	postJSON(t, router, "/api/v1/search", `{"take": 5000, "skip": -10}`, nil)

	assert.Equal(t, 100, strategy.lastInput.Take)
	assert.Equal(t, 0, strategy.lastInput.Skip)
}

func TestSearch_RejectsInvalidOperator(t *testing.T) {
	router := newSearchRouter(&stubStrategy{})

	w := postJSON(t, router, "/api/v1/search", `{"facet_value_operator":"XOR"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestSearch_RejectsInvalidSortOrder(t *testing.T) {
	router := newSearchRouter(&stubStrategy{})

	w := postJSON(t, router, "/api/v1/search", `{"sort":{"name":"UPWARDS"}}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_RejectsMalformedJSON(t *testing.T) {
	router := newSearchRouter(&stubStrategy{})

	w := postJSON(t, router, "/api/v1/search", `{"term":`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_StrategyErrorBecomes500(t *testing.T) {
	strategy := &stubStrategy{err: assert.AnError}
	router := newSearchRouter(strategy)

	w := postJSON(t, router, "/api/v1/search", `{}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
