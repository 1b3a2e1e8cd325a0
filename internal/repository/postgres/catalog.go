package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vendure-ecommerce/vendure-sub026/internal/database"
	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
)

// rawVariantColumns is the eager-loading projection shared by the batch
// queries. Relation sets are aggregated to JSON so one row per variant comes
// back regardless of how many translations, facet values, or collections it
// carries.
const rawVariantColumns = `
	v.id,
	v.product_id,
	v.sku,
	v.enabled AND p.enabled AS enabled,
	v.price,
	COALESCE(tc.rate, 0) AS tax_rate,
	(v.stock_on_hand - v.stock_allocated) > 0 AS in_stock,
	EXISTS (
		SELECT 1 FROM product_variants pv
		WHERE pv.product_id = v.product_id
		  AND pv.deleted_at IS NULL
		  AND (pv.stock_on_hand - pv.stock_allocated) > 0
	) AS product_in_stock,
	COALESCE(pa.preview, '') AS product_preview,
	COALESCE(va.preview, '') AS variant_preview,
	COALESCE((
		SELECT json_agg(json_build_object(
			'language_code', pt.language_code, 'name', pt.name,
			'slug', pt.slug, 'description', pt.description))
		FROM product_translations pt
		WHERE pt.product_id = v.product_id), '[]') AS product_translations,
	COALESCE((
		SELECT json_agg(json_build_object(
			'language_code', vt.language_code, 'name', vt.name))
		FROM product_variant_translations vt
		WHERE vt.variant_id = v.id), '[]') AS variant_translations,
	COALESCE((
		SELECT json_agg(json_build_object('id', fv.id, 'facet_id', fv.facet_id))
		FROM product_variant_facet_values vfv
		JOIN facet_values fv ON fv.id = vfv.facet_value_id
		WHERE vfv.variant_id = v.id), '[]') AS variant_facet_values,
	COALESCE((
		SELECT json_agg(json_build_object('id', fv.id, 'facet_id', fv.facet_id))
		FROM product_facet_values pfv
		JOIN facet_values fv ON fv.id = pfv.facet_value_id
		WHERE pfv.product_id = v.product_id), '[]') AS product_facet_values,
	COALESCE((
		SELECT json_agg(json_build_object('id', c.id, 'slug', c.slug))
		FROM product_collections pc
		JOIN collections c ON c.id = pc.collection_id
		WHERE pc.product_id = v.product_id), '[]') AS collections`

const rawVariantJoins = `
	FROM product_variants v
	JOIN products p ON p.id = v.product_id AND p.deleted_at IS NULL
	LEFT JOIN tax_categories tc ON tc.id = v.tax_category_id
	LEFT JOIN assets pa ON pa.id = p.featured_asset_id
	LEFT JOIN assets va ON va.id = v.featured_asset_id
	WHERE v.deleted_at IS NULL`

// CatalogRepository implements repository.CatalogRepository against the
// normalized catalog tables. Read-only.
type CatalogRepository struct {
	pool database.DBTX
}

// NewCatalogRepository creates a new PostgreSQL-backed catalog reader.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetRawBatch fetches one deterministic page of indexable variants with all
// index-relevant relations loaded. Only the final page returns fewer than
// batchSize items.
func (r *CatalogRepository) GetRawBatch(ctx context.Context, batchNumber, batchSize int) ([]domain.RawVariant, error) {
	query := fmt.Sprintf(`SELECT %s %s ORDER BY v.id LIMIT $1 OFFSET $2`, rawVariantColumns, rawVariantJoins)

	ctx, end := database.TraceQuery(ctx, "GetRawBatch", query)
	variants, err := r.queryRawVariants(ctx, query, batchSize, batchNumber*batchSize)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("get raw batch %d: %w", batchNumber, err)
	}
	return variants, nil
}

// GetRawBatchByIDs fetches the given variants with the same eager-loading
// contract as GetRawBatch. Unknown ids are silently absent from the result.
func (r *CatalogRepository) GetRawBatchByIDs(ctx context.Context, ids []string) ([]domain.RawVariant, error) {
	query := fmt.Sprintf(`SELECT %s %s AND v.id = ANY($1) ORDER BY v.id`, rawVariantColumns, rawVariantJoins)

	ctx, end := database.TraceQuery(ctx, "GetRawBatchByIDs", query)
	variants, err := r.queryRawVariants(ctx, query, ids)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("get raw batch by ids: %w", err)
	}
	return variants, nil
}

// CountVariants returns the number of variants eligible for indexing.
func (r *CatalogRepository) CountVariants(ctx context.Context) (int, error) {
	query := `
		SELECT count(*)
		FROM product_variants v
		JOIN products p ON p.id = v.product_id AND p.deleted_at IS NULL
		WHERE v.deleted_at IS NULL`

	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count variants: %w", err)
	}
	return count, nil
}

// VariantIDsForProduct returns the ids of a product's live variants.
func (r *CatalogRepository) VariantIDsForProduct(ctx context.Context, productID string) ([]string, error) {
	query := `
		SELECT id FROM product_variants
		WHERE product_id = $1 AND deleted_at IS NULL
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("variant ids for product %s: %w", productID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan variant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant ids: %w", err)
	}
	return ids, nil
}

func (r *CatalogRepository) queryRawVariants(ctx context.Context, query string, args ...any) ([]domain.RawVariant, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []domain.RawVariant
	for rows.Next() {
		var (
			v                       domain.RawVariant
			productTranslationsJSON []byte
			variantTranslationsJSON []byte
			variantFacetValuesJSON  []byte
			productFacetValuesJSON  []byte
			collectionsJSON         []byte
		)

		if err := rows.Scan(
			&v.ID,
			&v.ProductID,
			&v.SKU,
			&v.Enabled,
			&v.Price,
			&v.TaxRate,
			&v.InStock,
			&v.ProductInStock,
			&v.ProductPreview,
			&v.VariantPreview,
			&productTranslationsJSON,
			&variantTranslationsJSON,
			&variantFacetValuesJSON,
			&productFacetValuesJSON,
			&collectionsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan raw variant row: %w", err)
		}

		if err := json.Unmarshal(productTranslationsJSON, &v.ProductTranslations); err != nil {
			return nil, fmt.Errorf("unmarshal product translations: %w", err)
		}
		if err := json.Unmarshal(variantTranslationsJSON, &v.VariantTranslations); err != nil {
			return nil, fmt.Errorf("unmarshal variant translations: %w", err)
		}
		if err := json.Unmarshal(variantFacetValuesJSON, &v.VariantFacetValues); err != nil {
			return nil, fmt.Errorf("unmarshal variant facet values: %w", err)
		}
		if err := json.Unmarshal(productFacetValuesJSON, &v.ProductFacetValues); err != nil {
			return nil, fmt.Errorf("unmarshal product facet values: %w", err)
		}
		if err := json.Unmarshal(collectionsJSON, &v.Collections); err != nil {
			return nil, fmt.Errorf("unmarshal collections: %w", err)
		}

		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw variant rows: %w", err)
	}

	if variants == nil {
		variants = []domain.RawVariant{}
	}
	return variants, nil
}
