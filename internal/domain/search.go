package domain

// LogicalOperator composes multiple facet value conditions.
type LogicalOperator string

const (
	OperatorAnd LogicalOperator = "AND"
	OperatorOr  LogicalOperator = "OR"
)

// SortOrder is an explicit result ordering direction.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// SearchSort holds the caller's explicit ordering. When set together with a
// search term it wins over rank ordering; the rank is still computed.
type SearchSort struct {
	Name  SortOrder `json:"name,omitempty"`
	Price SortOrder `json:"price,omitempty"`
}

// FacetValueFilter requires either one specific facet value (And) or any of
// several (Or). Setting both on one entry is a caller error. Entries are
// composed conjunctively.
type FacetValueFilter struct {
	And string   `json:"and,omitempty"`
	Or  []string `json:"or,omitempty"`
}

// SearchInput is the search request against the index.
type SearchInput struct {
	Term               string             `json:"term,omitempty"`
	FacetValueIDs      []string           `json:"facet_value_ids,omitempty"`
	FacetValueOperator LogicalOperator    `json:"facet_value_operator,omitempty"`
	FacetValueFilters  []FacetValueFilter `json:"facet_value_filters,omitempty"`
	CollectionID       string             `json:"collection_id,omitempty"`
	CollectionSlug     string             `json:"collection_slug,omitempty"`
	GroupByProduct     bool               `json:"group_by_product,omitempty"`
	InStock            *bool              `json:"in_stock,omitempty"`
	Skip               int                `json:"skip,omitempty"`
	Take               int                `json:"take,omitempty"`
	Sort               *SearchSort        `json:"sort,omitempty"`
}

// SearchResultRow is one denormalized result. When GroupByProduct is set the
// row represents a whole product: prices become a min/max range, the stock
// and enabled flags are boolean-or over the variants, and the relation sets
// are unions.
type SearchResultRow struct {
	ProductVariantID      string   `json:"product_variant_id"`
	ProductID             string   `json:"product_id"`
	SKU                   string   `json:"sku"`
	Slug                  string   `json:"slug"`
	ProductName           string   `json:"product_name"`
	ProductVariantName    string   `json:"product_variant_name"`
	Description           string   `json:"description"`
	ProductPreview        string   `json:"product_preview"`
	ProductVariantPreview string   `json:"product_variant_preview"`
	Enabled               bool     `json:"enabled"`
	InStock               bool     `json:"in_stock"`
	PriceMin              int64    `json:"price_min"`
	PriceMax              int64    `json:"price_max"`
	PriceWithTaxMin       int64    `json:"price_with_tax_min"`
	PriceWithTaxMax       int64    `json:"price_with_tax_max"`
	FacetValueIDs         []string `json:"facet_value_ids"`
	CollectionIDs         []string `json:"collection_ids"`
	Score                 float64  `json:"score"`
}

// SearchResponse is the assembled answer: ranked page, total, and the
// occurrence counts used to render facet and collection badges.
type SearchResponse struct {
	Items            []SearchResultRow `json:"items"`
	TotalItems       int               `json:"total_items"`
	FacetValueCounts map[string]int    `json:"facet_value_counts"`
	CollectionCounts map[string]int    `json:"collection_counts"`
}
