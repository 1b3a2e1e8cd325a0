package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
)

const (
	defaultTake = 10
	maxTake     = 100
)

// SearchService answers catalog searches from the persisted index. Reads
// only; all index writes flow through the IndexService.
type SearchService struct {
	strategy repository.SearchStrategy
	cache    repository.SearchCache
	logger   *slog.Logger
}

// NewSearchService creates a new search service. cache may be nil to run
// without response caching.
func NewSearchService(strategy repository.SearchStrategy, cache repository.SearchCache, logger *slog.Logger) *SearchService {
	return &SearchService{
		strategy: strategy,
		cache:    cache,
		logger:   logger,
	}
}

// Search runs one query: the ranked page, the total, and the facet and
// collection counts, all over the same filter pipeline. enabledOnly is set
// for shop-facing callers; administrative callers see disabled rows too.
func (s *SearchService) Search(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (*domain.SearchResponse, error) {
	normalizeInput(&input)

	key, err := cacheKey(rctx, input, enabledOnly)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if resp, err := s.cache.Get(ctx, key); err == nil {
			searchQueriesTotal.WithLabelValues("cache").Inc()
			return resp, nil
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "search cache read failed", slog.String("error", err.Error()))
		}
	}

	start := time.Now()
	items, err := s.strategy.GetSearchResults(ctx, rctx, input, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("get search results: %w", err)
	}
	total, err := s.strategy.GetTotalCount(ctx, rctx, input, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("get total count: %w", err)
	}
	facetCounts, err := s.strategy.GetFacetValueIDs(ctx, rctx, input, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("get facet value counts: %w", err)
	}
	collectionCounts, err := s.strategy.GetCollectionIDs(ctx, rctx, input, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("get collection counts: %w", err)
	}

	searchQueriesTotal.WithLabelValues("index").Inc()
	searchQueryDuration.WithLabelValues(strconv.FormatBool(input.GroupByProduct)).
		Observe(time.Since(start).Seconds())

	resp := &domain.SearchResponse{
		Items:            items,
		TotalItems:       total,
		FacetValueCounts: facetCounts,
		CollectionCounts: collectionCounts,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp); err != nil {
			s.logger.WarnContext(ctx, "search cache write failed", slog.String("error", err.Error()))
		}
	}
	return resp, nil
}

// normalizeInput clamps pagination to sane bounds. An out-of-range value is
// not an error; callers get the nearest valid page.
func normalizeInput(input *domain.SearchInput) {
	if input.Take <= 0 {
		input.Take = defaultTake
	}
	if input.Take > maxTake {
		input.Take = maxTake
	}
	if input.Skip < 0 {
		input.Skip = 0
	}
}

// cacheKey derives a stable digest of everything that shapes a response.
func cacheKey(rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (string, error) {
	payload, err := json.Marshal(struct {
		Ctx         domain.RequestContext `json:"ctx"`
		Input       domain.SearchInput    `json:"input"`
		EnabledOnly bool                  `json:"enabled_only"`
	}{rctx, input, enabledOnly})
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
