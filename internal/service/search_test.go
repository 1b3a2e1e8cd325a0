package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
)

// --- Mock Strategy ---

type mockStrategy struct {
	mock.Mock
}

func (m *mockStrategy) GetSearchResults(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) ([]domain.SearchResultRow, error) {
	args := m.Called(ctx, rctx, input, enabledOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResultRow), args.Error(1)
}

func (m *mockStrategy) GetTotalCount(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (int, error) {
	args := m.Called(ctx, rctx, input, enabledOnly)
	return args.Int(0), args.Error(1)
}

func (m *mockStrategy) GetFacetValueIDs(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (map[string]int, error) {
	args := m.Called(ctx, rctx, input, enabledOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockStrategy) GetCollectionIDs(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (map[string]int, error) {
	args := m.Called(ctx, rctx, input, enabledOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// memoryCache is a map-backed repository.SearchCache for tests.
type memoryCache struct {
	entries map[string]*domain.SearchResponse
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*domain.SearchResponse)}
}

func (c *memoryCache) Get(_ context.Context, key string) (*domain.SearchResponse, error) {
	if resp, ok := c.entries[key]; ok {
		return resp, nil
	}
	return nil, apperrors.NotFound("cached search response", key)
}

func (c *memoryCache) Set(_ context.Context, key string, resp *domain.SearchResponse) error {
	c.entries[key] = resp
	return nil
}

func (c *memoryCache) Flush(context.Context) error {
	c.entries = make(map[string]*domain.SearchResponse)
	return nil
}

func sampleRow() domain.SearchResultRow {
	return domain.SearchResultRow{
		ProductVariantID: "var-1",
		ProductID:        "prod-1",
		SKU:              "RED-1",
		ProductName:      "Red Hat",
		PriceMin:         1000,
		PriceMax:         1000,
		FacetValueIDs:    []string{"fv-1"},
		CollectionIDs:    []string{"col-1"},
	}
}

// --- Tests ---

func TestSearchService_Search_AssemblesResponse(t *testing.T) {
	strategy := new(mockStrategy)
	strategy.On("GetSearchResults", mock.Anything, mock.Anything, mock.Anything, true).
		Return([]domain.SearchResultRow{sampleRow()}, nil)
	strategy.On("GetTotalCount", mock.Anything, mock.Anything, mock.Anything, true).
		Return(57, nil)
	strategy.On("GetFacetValueIDs", mock.Anything, mock.Anything, mock.Anything, true).
		Return(map[string]int{"fv-1": 10}, nil)
	strategy.On("GetCollectionIDs", mock.Anything, mock.Anything, mock.Anything, true).
		Return(map[string]int{"col-1": 7}, nil)

	svc := NewSearchService(strategy, nil, newTestLogger())
	resp, err := svc.Search(context.Background(), testRequestContext(), domain.SearchInput{Term: "red", Take: 20}, true)
	require.NoError(t, err)

	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 57, resp.TotalItems)
	assert.Equal(t, map[string]int{"fv-1": 10}, resp.FacetValueCounts)
	assert.Equal(t, map[string]int{"col-1": 7}, resp.CollectionCounts)
	strategy.AssertExpectations(t)
}

func TestSearchService_Search_ClampsPagination(t *testing.T) {
	strategy := new(mockStrategy)
	var captured domain.SearchInput
	strategy.On("GetSearchResults", mock.Anything, mock.Anything, mock.MatchedBy(func(input domain.SearchInput) bool {
		captured = input
		return true
	}), true).Return([]domain.SearchResultRow{}, nil)
	strategy.On("GetTotalCount", mock.Anything, mock.Anything, mock.Anything, true).Return(0, nil)
	strategy.On("GetFacetValueIDs", mock.Anything, mock.Anything, mock.Anything, true).Return(map[string]int{}, nil)
	strategy.On("GetCollectionIDs", mock.Anything, mock.Anything, mock.Anything, true).Return(map[string]int{}, nil)

	svc := NewSearchService(strategy, nil, newTestLogger())

	_, err := svc.Search(context.Background(), testRequestContext(), domain.SearchInput{Take: 5000, Skip: -3}, true)
	require.NoError(t, err)
	assert.Equal(t, maxTake, captured.Take)
	assert.Equal(t, 0, captured.Skip)

	_, err = svc.Search(context.Background(), testRequestContext(), domain.SearchInput{}, true)
	require.NoError(t, err)
	assert.Equal(t, defaultTake, captured.Take)
}

func TestSearchService_Search_CacheHitSkipsStrategy(t *testing.T) {
	strategy := new(mockStrategy)
	strategy.On("GetSearchResults", mock.Anything, mock.Anything, mock.Anything, true).
		Return([]domain.SearchResultRow{sampleRow()}, nil).Once()
	strategy.On("GetTotalCount", mock.Anything, mock.Anything, mock.Anything, true).Return(1, nil).Once()
	strategy.On("GetFacetValueIDs", mock.Anything, mock.Anything, mock.Anything, true).Return(map[string]int{}, nil).Once()
	strategy.On("GetCollectionIDs", mock.Anything, mock.Anything, mock.Anything, true).Return(map[string]int{}, nil).Once()

	svc := NewSearchService(strategy, newMemoryCache(), newTestLogger())
	input := domain.SearchInput{Term: "red"}

	first, err := svc.Search(context.Background(), testRequestContext(), input, true)
	require.NoError(t, err)

	// Second identical query is served from the cache; the Once expectations
	// above would fail if the strategy ran again.
	second, err := svc.Search(context.Background(), testRequestContext(), input, true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	strategy.AssertExpectations(t)
}

func TestSearchService_Search_DistinctQueriesDistinctCacheEntries(t *testing.T) {
	strategy := new(mockStrategy)
	strategy.On("GetSearchResults", mock.Anything, mock.Anything, mock.Anything, true).
		Return([]domain.SearchResultRow{}, nil).Twice()
	strategy.On("GetTotalCount", mock.Anything, mock.Anything, mock.Anything, true).Return(0, nil).Twice()
	strategy.On("GetFacetValueIDs", mock.Anything, mock.Anything, mock.Anything, true).Return(map[string]int{}, nil).Twice()
	strategy.On("GetCollectionIDs", mock.Anything, mock.Anything, mock.Anything, true).Return(map[string]int{}, nil).Twice()

	cache := newMemoryCache()
	svc := NewSearchService(strategy, cache, newTestLogger())

	_, err := svc.Search(context.Background(), testRequestContext(), domain.SearchInput{Term: "red"}, true)
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), testRequestContext(), domain.SearchInput{Term: "blue"}, true)
	require.NoError(t, err)

	assert.Len(t, cache.entries, 2)
	strategy.AssertExpectations(t)
}

func TestSearchService_Search_StrategyError(t *testing.T) {
	strategy := new(mockStrategy)
	strategy.On("GetSearchResults", mock.Anything, mock.Anything, mock.Anything, false).
		Return(nil, errors.New("connection refused"))

	svc := NewSearchService(strategy, nil, newTestLogger())
	_, err := svc.Search(context.Background(), testRequestContext(), domain.SearchInput{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get search results")
}
