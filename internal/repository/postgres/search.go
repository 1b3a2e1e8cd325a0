package postgres

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vendure-ecommerce/vendure-sub026/internal/database"
	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
)

// minTermLength is the minimum search term length; shorter terms are treated
// as "no term" rather than as an error.
const minTermLength = 2

// Per-field rank weights. SKU matches dominate, then product name, variant
// name, and description.
const (
	skuWeight         = 10.0
	productNameWeight = 2.0
	variantNameWeight = 1.5
	descriptionWeight = 1.0
)

// SearchStrategy implements repository.SearchStrategy with hand-built
// PostgreSQL. Read-only against search_index_items.
type SearchStrategy struct {
	pool database.DBTX
}

// NewSearchStrategy creates a new PostgreSQL search strategy.
func NewSearchStrategy(pool database.DBTX) *SearchStrategy {
	return &SearchStrategy{pool: pool}
}

// filteredQuery is the shared inner SELECT plus its positional arguments.
type filteredQuery struct {
	sql  string
	args []any
}

// resultColumns is the outer projection shared by the grouped and ungrouped
// result queries; both produce the same aliases so one scan path serves both.
const resultColumns = `
	product_variant_id, product_id, sku, slug, product_name,
	product_variant_name, description, product_preview,
	product_variant_preview, enabled, in_stock,
	price_min, price_max, price_with_tax_min, price_with_tax_max,
	facet_value_ids, collection_ids, score`

// GetSearchResults returns one ranked, paginated page of results.
func (s *SearchStrategy) GetSearchResults(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) ([]domain.SearchResultRow, error) {
	fq, err := s.buildFilteredSelect(rctx, input, enabledOnly)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM (%s) t %s %s`,
		resultColumns,
		s.projectResults(fq.sql, input.GroupByProduct),
		orderClause(input),
		fmt.Sprintf("LIMIT $%d OFFSET $%d", len(fq.args)+1, len(fq.args)+2),
	)
	args := append(fq.args, input.Take, input.Skip)

	ctx, end := database.TraceQuery(ctx, "GetSearchResults", "SELECT ... FROM search_index_items")
	rows, err := s.pool.Query(ctx, query, args...)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("search results: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResultRow
	for rows.Next() {
		var (
			row           domain.SearchResultRow
			facetValueIDs string
			collectionIDs string
		)
		if err := rows.Scan(
			&row.ProductVariantID,
			&row.ProductID,
			&row.SKU,
			&row.Slug,
			&row.ProductName,
			&row.ProductVariantName,
			&row.Description,
			&row.ProductPreview,
			&row.ProductVariantPreview,
			&row.Enabled,
			&row.InStock,
			&row.PriceMin,
			&row.PriceMax,
			&row.PriceWithTaxMin,
			&row.PriceWithTaxMax,
			&facetValueIDs,
			&collectionIDs,
			&row.Score,
		); err != nil {
			return nil, fmt.Errorf("scan search result row: %w", err)
		}
		// Grouped rows concatenate per-variant sets, so re-deduplicate here.
		row.FacetValueIDs = domain.DedupeIDs(domain.SplitIDs(facetValueIDs))
		row.CollectionIDs = domain.DedupeIDs(domain.SplitIDs(collectionIDs))
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search result rows: %w", err)
	}

	if results == nil {
		results = []domain.SearchResultRow{}
	}
	return results, nil
}

// GetTotalCount returns the number of matching rows (or products when
// grouping), independent of sort and pagination.
func (s *SearchStrategy) GetTotalCount(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (int, error) {
	fq, err := s.buildFilteredSelect(rctx, input, enabledOnly)
	if err != nil {
		return 0, err
	}

	countExpr := "count(*)"
	if input.GroupByProduct {
		countExpr = "count(DISTINCT product_id)"
	}
	query := fmt.Sprintf(`SELECT %s FROM (%s) t`, countExpr, fq.sql)

	var count int
	if err := s.pool.QueryRow(ctx, query, fq.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("search total count: %w", err)
	}
	return count, nil
}

// GetFacetValueIDs returns, per facet value id, the number of matching
// results it appears on. Term ranking is irrelevant here; the filter
// pipeline is identical to the result query.
func (s *SearchStrategy) GetFacetValueIDs(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (map[string]int, error) {
	return s.countDelimitedColumn(ctx, rctx, input, enabledOnly, "facet_value_ids")
}

// GetCollectionIDs is symmetric to GetFacetValueIDs for collection ids.
func (s *SearchStrategy) GetCollectionIDs(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (map[string]int, error) {
	return s.countDelimitedColumn(ctx, rctx, input, enabledOnly, "collection_ids")
}

func (s *SearchStrategy) countDelimitedColumn(ctx context.Context, rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool, column string) (map[string]int, error) {
	fq, err := s.buildFilteredSelect(rctx, input, enabledOnly)
	if err != nil {
		return nil, err
	}

	var query string
	if input.GroupByProduct {
		// Count each id once per product, not once per variant.
		query = fmt.Sprintf(`
			SELECT id, count(*) FROM (
				SELECT DISTINCT t.product_id, u.id
				FROM (%s) t,
				unnest(string_to_array(t.%s, ',')) AS u(id)
				WHERE t.%s <> ''
			) d GROUP BY id`, fq.sql, column, column)
	} else {
		query = fmt.Sprintf(`
			SELECT u.id, count(*)
			FROM (%s) t,
			unnest(string_to_array(t.%s, ',')) AS u(id)
			WHERE t.%s <> ''
			GROUP BY u.id`, fq.sql, column, column)
	}

	rows, err := s.pool.Query(ctx, query, fq.args...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan %s count row: %w", column, err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s count rows: %w", column, err)
	}
	return counts, nil
}

// buildFilteredSelect assembles the inner SELECT shared by all four query
// operations: channel scoping, language fallback, term matching and scoring,
// facet and collection filters, stock and enabled predicates.
func (s *SearchStrategy) buildFilteredSelect(rctx domain.RequestContext, input domain.SearchInput, enabledOnly bool) (*filteredQuery, error) {
	if err := validateFacetValueFilters(input.FacetValueFilters); err != nil {
		return nil, err
	}

	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	next := func(v any) string {
		args = append(args, v)
		p := fmt.Sprintf("$%d", argIndex)
		argIndex++
		return p
	}

	conditions = append(conditions, fmt.Sprintf("s.channel_id = %s", next(rctx.ChannelID)))

	// Language constraint with fallback: prefer the requested language, use
	// the channel default only where no requested-language row exists for
	// the variant.
	lang := rctx.Language()
	if lang == rctx.DefaultLanguageCode || rctx.DefaultLanguageCode == "" {
		conditions = append(conditions, fmt.Sprintf("s.language_code = %s", next(lang)))
	} else {
		reqPh := next(lang)
		defPh := next(rctx.DefaultLanguageCode)
		conditions = append(conditions, fmt.Sprintf(`(
			s.language_code = %s
			OR (s.language_code = %s AND NOT EXISTS (
				SELECT 1 FROM search_index_items f
				WHERE f.product_variant_id = s.product_variant_id
				  AND f.channel_id = s.channel_id
				  AND f.language_code = %s
			))
		)`, reqPh, defPh, reqPh))
	}

	scoreExpr := "0::double precision"
	if term := strings.TrimSpace(input.Term); utf8.RuneCountInString(term) > minTermLength {
		termPh := next(term)
		likePh := next("%" + term + "%")
		conditions = append(conditions, fmt.Sprintf(`(
			to_tsvector('simple', s.sku || ' ' || s.product_name || ' ' || s.product_variant_name || ' ' || s.description)
				@@ plainto_tsquery('simple', %s)
			OR s.sku ILIKE %s
		)`, termPh, likePh))

		scoreExpr = fmt.Sprintf(`(
			ts_rank(to_tsvector('simple', s.sku), plainto_tsquery('simple', %[1]s)) * %[2]v +
			ts_rank(to_tsvector('simple', s.product_name), plainto_tsquery('simple', %[1]s)) * %[3]v +
			ts_rank(to_tsvector('simple', s.product_variant_name), plainto_tsquery('simple', %[1]s)) * %[4]v +
			ts_rank(to_tsvector('simple', s.description), plainto_tsquery('simple', %[1]s)) * %[5]v
		)`, termPh, skuWeight, productNameWeight, variantNameWeight, descriptionWeight)
	}

	if len(input.FacetValueIDs) > 0 {
		op := "@>" // AND: every listed value must be present
		if input.FacetValueOperator == domain.OperatorOr {
			op = "&&" // OR: any listed value suffices
		}
		conditions = append(conditions, fmt.Sprintf(
			"string_to_array(s.facet_value_ids, ',') %s %s::text[]", op, next(input.FacetValueIDs)))
	}

	for _, filter := range input.FacetValueFilters {
		if filter.And != "" {
			conditions = append(conditions, fmt.Sprintf(
				"%s = ANY(string_to_array(s.facet_value_ids, ','))", next(filter.And)))
		} else if len(filter.Or) > 0 {
			conditions = append(conditions, fmt.Sprintf(
				"string_to_array(s.facet_value_ids, ',') && %s::text[]", next(filter.Or)))
		}
	}

	if input.CollectionID != "" {
		conditions = append(conditions, fmt.Sprintf(
			"%s = ANY(string_to_array(s.collection_ids, ','))", next(input.CollectionID)))
	}
	if input.CollectionSlug != "" {
		conditions = append(conditions, fmt.Sprintf(
			"%s = ANY(string_to_array(s.collection_slugs, ','))", next(input.CollectionSlug)))
	}

	if input.InStock != nil {
		column := "s.in_stock"
		if input.GroupByProduct {
			column = "s.product_in_stock"
		}
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, next(*input.InStock)))
	}

	if enabledOnly {
		conditions = append(conditions, "s.enabled = TRUE")
	}

	sql := fmt.Sprintf(`
		SELECT s.*, %s AS score
		FROM search_index_items s
		WHERE %s`,
		scoreExpr,
		strings.Join(conditions, "\n\t\t  AND "),
	)

	return &filteredQuery{sql: sql, args: args}, nil
}

// projectResults wraps the inner select into the shared result column shape,
// collapsing to one row per product when grouping is requested.
func (s *SearchStrategy) projectResults(inner string, groupByProduct bool) string {
	if !groupByProduct {
		return fmt.Sprintf(`
			SELECT
				i.product_variant_id, i.product_id, i.sku, i.slug,
				i.product_name, i.product_variant_name, i.description,
				i.product_preview, i.product_variant_preview,
				i.enabled, i.in_stock,
				i.price AS price_min, i.price AS price_max,
				i.price_with_tax AS price_with_tax_min,
				i.price_with_tax AS price_with_tax_max,
				i.facet_value_ids, i.collection_ids, i.score
			FROM (%s) i`, inner)
	}

	// One row per product: min/max for prices, bool_or for flags,
	// string_agg for the delimited relation sets, max for the rank.
	return fmt.Sprintf(`
		SELECT
			min(i.product_variant_id) AS product_variant_id,
			i.product_id,
			min(i.sku) AS sku,
			min(i.slug) AS slug,
			min(i.product_name) AS product_name,
			min(i.product_variant_name) AS product_variant_name,
			min(i.description) AS description,
			min(i.product_preview) AS product_preview,
			min(i.product_variant_preview) AS product_variant_preview,
			bool_or(i.enabled) AS enabled,
			bool_or(i.in_stock) AS in_stock,
			min(i.price) AS price_min,
			max(i.price) AS price_max,
			min(i.price_with_tax) AS price_with_tax_min,
			max(i.price_with_tax) AS price_with_tax_max,
			string_agg(i.facet_value_ids, ',') AS facet_value_ids,
			string_agg(i.collection_ids, ',') AS collection_ids,
			max(i.score) AS score
		FROM (%s) i
		GROUP BY i.product_id`, inner)
}

// orderClause picks the result ordering. An explicit sort always wins; rank
// ordering applies only when a usable term is present and no sort is given.
func orderClause(input domain.SearchInput) string {
	tiebreak := "product_variant_id ASC"
	if input.GroupByProduct {
		tiebreak = "product_id ASC"
	}

	if input.Sort != nil {
		var parts []string
		if input.Sort.Name != "" {
			parts = append(parts, "product_name "+string(input.Sort.Name))
		}
		if input.Sort.Price != "" {
			parts = append(parts, "price_min "+string(input.Sort.Price))
		}
		if len(parts) > 0 {
			return "ORDER BY " + strings.Join(parts, ", ") + ", " + tiebreak
		}
	}

	if term := strings.TrimSpace(input.Term); utf8.RuneCountInString(term) > minTermLength {
		return "ORDER BY score DESC, " + tiebreak
	}
	return "ORDER BY " + tiebreak
}

func validateFacetValueFilters(filters []domain.FacetValueFilter) error {
	for _, f := range filters {
		if f.And != "" && len(f.Or) > 0 {
			return apperrors.InvalidInput("facet value filter cannot set both 'and' and 'or'")
		}
	}
	return nil
}
