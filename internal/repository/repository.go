package repository

import (
	"context"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
)

// CatalogRepository provides read access to the normalized catalog: the raw
// variant batches the index builder consumes. Implementations must exclude
// variants whose product is soft-deleted and order pages deterministically.
type CatalogRepository interface {
	// GetRawBatch fetches batchSize variants ordered by variant id, offset by
	// batchNumber*batchSize, with all index-relevant relations eagerly loaded.
	GetRawBatch(ctx context.Context, batchNumber, batchSize int) ([]domain.RawVariant, error)

	// GetRawBatchByIDs is the same eager-loading contract scoped to an
	// explicit id set, used for targeted incremental reindexing.
	GetRawBatchByIDs(ctx context.Context, ids []string) ([]domain.RawVariant, error)

	// CountVariants returns the number of indexable variants.
	CountVariants(ctx context.Context) (int, error)

	// VariantIDsForProduct returns the variant ids belonging to a product,
	// used to translate product-level change events into variant reindexes.
	VariantIDsForProduct(ctx context.Context, productID string) ([]string, error)
}

// IndexItemRepository owns writes to the denormalized search index table.
// The search strategy reads the same table but never writes it.
type IndexItemRepository interface {
	// BulkUpsert writes all items in one statement keyed by the natural key
	// (productVariantID, languageCode, channelID). All-or-nothing.
	BulkUpsert(ctx context.Context, items []domain.SearchIndexItem) error

	// DeleteByProduct removes every index row of a product within a channel,
	// the wholesale removal path driven by catalog deletion events.
	DeleteByProduct(ctx context.Context, productID, channelID string) error

	// Count returns the number of index rows.
	Count(ctx context.Context) (int, error)
}

// SearchCache memoizes assembled search responses for hot queries. Entries
// expire by TTL; index writes flush the whole cache rather than invalidating
// per key.
type SearchCache interface {
	// Get returns the cached response for the key, or ErrNotFound.
	Get(ctx context.Context, key string) (*domain.SearchResponse, error)

	Set(ctx context.Context, key string, resp *domain.SearchResponse) error

	// Flush drops every cached response.
	Flush(ctx context.Context) error
}

// SearchStrategy answers queries against the persisted index. All four
// operations share one filter pipeline: channel scoping, language fallback,
// term matching, facet and collection filters, optional stock and
// enabled-only predicates.
type SearchStrategy interface {
	GetSearchResults(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) ([]domain.SearchResultRow, error)
	GetTotalCount(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (int, error)
	GetFacetValueIDs(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (map[string]int, error)
	GetCollectionIDs(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (map[string]int, error)
}
