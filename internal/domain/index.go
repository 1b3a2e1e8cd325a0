package domain

import (
	"sort"
	"strings"
)

// SearchIndexItem is one denormalized search row. The natural key is
// (ProductVariantID, LanguageCode, ChannelID); writes are always upserts
// keyed on it, so the index never holds two rows for the same combination.
type SearchIndexItem struct {
	ProductVariantID string `json:"product_variant_id"`
	ProductID        string `json:"product_id"`
	ChannelID        string `json:"channel_id"`
	LanguageCode     string `json:"language_code"`

	SKU                   string `json:"sku"`
	Enabled               bool   `json:"enabled"`
	Slug                  string `json:"slug"`
	ProductName           string `json:"product_name"`
	Description           string `json:"description"`
	ProductVariantName    string `json:"product_variant_name"`
	ProductPreview        string `json:"product_preview"`
	ProductVariantPreview string `json:"product_variant_preview"`

	Price          int64 `json:"price"`
	PriceWithTax   int64 `json:"price_with_tax"`
	InStock        bool  `json:"in_stock"`
	ProductInStock bool  `json:"product_in_stock"`

	// Relation sets, deduplicated unions of variant-level and product-level
	// assignments. Persisted as comma-joined TEXT columns so the index table
	// stays flat; query code splits with string_to_array.
	FacetIDs        []string `json:"facet_ids"`
	FacetValueIDs   []string `json:"facet_value_ids"`
	CollectionIDs   []string `json:"collection_ids"`
	CollectionSlugs []string `json:"collection_slugs"`
}

// JoinIDs renders an identifier set as the delimited column representation.
func JoinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitIDs parses the delimited column representation back into a set.
// An empty column yields an empty (non-nil) slice.
func SplitIDs(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}

// DedupeIDs returns the sorted set union of the given identifier slices.
func DedupeIDs(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range groups {
		for _, id := range group {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}
