package domain

// ProductTranslation carries the localized product fields used by the index.
type ProductTranslation struct {
	LanguageCode string `json:"language_code"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
}

// VariantTranslation carries the localized variant name.
type VariantTranslation struct {
	LanguageCode string `json:"language_code"`
	Name         string `json:"name"`
}

// FacetValueRef is a facet value assignment together with its owning facet.
type FacetValueRef struct {
	ID      string `json:"id"`
	FacetID string `json:"facet_id"`
}

// CollectionRef is a collection membership of a variant's product.
type CollectionRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// RawVariant is the eagerly loaded catalog state for one product variant, the
// unit fetched per batch by the index builder. Stock flags and the tax rate
// are computed by the catalog query and copied into the index at build time.
type RawVariant struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Enabled   bool   `json:"enabled"`

	Price   int64   `json:"price"`
	TaxRate float64 `json:"tax_rate"`

	InStock        bool `json:"in_stock"`
	ProductInStock bool `json:"product_in_stock"`

	ProductPreview string `json:"product_preview"`
	VariantPreview string `json:"variant_preview"`

	ProductTranslations []ProductTranslation `json:"product_translations"`
	VariantTranslations []VariantTranslation `json:"variant_translations"`

	// Facet value assignments at both levels. A value assigned to either the
	// variant or its product counts for the variant's index rows.
	VariantFacetValues []FacetValueRef `json:"variant_facet_values"`
	ProductFacetValues []FacetValueRef `json:"product_facet_values"`

	Collections []CollectionRef `json:"collections"`
}

// RequestContext scopes an index build or search query to a sales channel
// and language. DefaultLanguageCode is the channel's fallback language.
type RequestContext struct {
	ChannelID           string `json:"channel_id"`
	LanguageCode        string `json:"language_code"`
	DefaultLanguageCode string `json:"default_language_code"`
}

// Language returns the requested language, falling back to the channel
// default when none is set.
func (c RequestContext) Language() string {
	if c.LanguageCode != "" {
		return c.LanguageCode
	}
	return c.DefaultLanguageCode
}
