package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vendure-ecommerce/vendure-sub026/internal/database"
	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
)

// executor is the slice of DBTX and pgx.Tx that a chunked upsert needs.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// indexItemColumns are the insert columns of search_index_items, in the
// order produced by indexItemValues.
var indexItemColumns = []string{
	"product_variant_id", "language_code", "channel_id", "product_id",
	"sku", "enabled", "slug", "product_name", "description",
	"product_variant_name", "product_preview", "product_variant_preview",
	"price", "price_with_tax", "in_stock", "product_in_stock",
	"facet_ids", "facet_value_ids", "collection_ids", "collection_slugs",
}

// IndexItemRepository implements repository.IndexItemRepository: the single
// write path into the denormalized search index table.
type IndexItemRepository struct {
	pool database.DBTX
}

// NewIndexItemRepository creates a new PostgreSQL-backed index item store.
func NewIndexItemRepository(pool database.DBTX) *IndexItemRepository {
	return &IndexItemRepository{pool: pool}
}

// upsertChunkSize bounds the rows per INSERT statement. PostgreSQL caps a
// statement at 65,535 bind parameters; at 20 columns per row that allows
// 3,276 rows, so 3,000 leaves headroom.
const upsertChunkSize = 3000

// BulkUpsert writes all items keyed by the natural key. A conflicting row is
// overwritten wholesale; index rows are never mutated field by field. Large
// inputs are split across multiple statements inside one transaction, so the
// write stays all-or-nothing.
func (r *IndexItemRepository) BulkUpsert(ctx context.Context, items []domain.SearchIndexItem) error {
	if len(items) == 0 {
		return nil
	}

	ctx, end := database.TraceQuery(ctx, "BulkUpsertIndexItems", "INSERT INTO search_index_items ...")

	var err error
	if len(items) <= upsertChunkSize {
		err = r.upsertChunk(ctx, r.pool, items)
	} else {
		err = r.upsertChunked(ctx, items)
	}
	end(err)
	if err != nil {
		return fmt.Errorf("bulk upsert %d index items: %w", len(items), err)
	}
	return nil
}

func (r *IndexItemRepository) upsertChunked(ctx context.Context, items []domain.SearchIndexItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(items); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := r.upsertChunk(ctx, tx, items[start:end]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *IndexItemRepository) upsertChunk(ctx context.Context, db executor, items []domain.SearchIndexItem) error {
	var (
		placeholders []string
		args         []any
	)
	for i, item := range items {
		base := i * len(indexItemColumns)
		ph := make([]string, len(indexItemColumns))
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, indexItemValues(item)...)
	}

	query := fmt.Sprintf(`
		INSERT INTO search_index_items (%s)
		VALUES %s
		ON CONFLICT (product_variant_id, language_code, channel_id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			sku = EXCLUDED.sku,
			enabled = EXCLUDED.enabled,
			slug = EXCLUDED.slug,
			product_name = EXCLUDED.product_name,
			description = EXCLUDED.description,
			product_variant_name = EXCLUDED.product_variant_name,
			product_preview = EXCLUDED.product_preview,
			product_variant_preview = EXCLUDED.product_variant_preview,
			price = EXCLUDED.price,
			price_with_tax = EXCLUDED.price_with_tax,
			in_stock = EXCLUDED.in_stock,
			product_in_stock = EXCLUDED.product_in_stock,
			facet_ids = EXCLUDED.facet_ids,
			facet_value_ids = EXCLUDED.facet_value_ids,
			collection_ids = EXCLUDED.collection_ids,
			collection_slugs = EXCLUDED.collection_slugs,
			updated_at = NOW()`,
		strings.Join(indexItemColumns, ", "),
		strings.Join(placeholders, ", "),
	)

	_, err := db.Exec(ctx, query, args...)
	return err
}

// DeleteByProduct removes every index row of a product within a channel.
func (r *IndexItemRepository) DeleteByProduct(ctx context.Context, productID, channelID string) error {
	query := `DELETE FROM search_index_items WHERE product_id = $1 AND channel_id = $2`

	_, err := r.pool.Exec(ctx, query, productID, channelID)
	if err != nil {
		return fmt.Errorf("delete index items for product %s: %w", productID, err)
	}
	return nil
}

// Count returns the number of rows in the index.
func (r *IndexItemRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM search_index_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count index items: %w", err)
	}
	return count, nil
}

func indexItemValues(item domain.SearchIndexItem) []any {
	return []any{
		item.ProductVariantID,
		item.LanguageCode,
		item.ChannelID,
		item.ProductID,
		item.SKU,
		item.Enabled,
		item.Slug,
		item.ProductName,
		item.Description,
		item.ProductVariantName,
		item.ProductPreview,
		item.ProductVariantPreview,
		item.Price,
		item.PriceWithTax,
		item.InStock,
		item.ProductInStock,
		domain.JoinIDs(item.FacetIDs),
		domain.JoinIDs(item.FacetValueIDs),
		domain.JoinIDs(item.CollectionIDs),
		domain.JoinIDs(item.CollectionSlugs),
	}
}
