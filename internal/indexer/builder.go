package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
)

// BatchSize is the number of variants fetched and indexed per batch during a
// full rebuild.
const BatchSize = 500

// Connector opens the builder's store access from connection options. The
// in-process connector ignores the options and hands back the host's own
// repositories; the worker connector dials a fresh pool from them.
type Connector func(ctx context.Context, opts domain.ConnectionOptions) (repository.CatalogRepository, repository.IndexItemRepository, error)

// Builder transforms raw variant batches into denormalized index rows and
// writes them. It is the callee side of the reindex protocol: the same
// implementation serves in-process and worker-process deployments, only the
// transport in front of it differs.
type Builder struct {
	connector Connector
	log       *slog.Logger

	mu        sync.Mutex
	connected bool
	catalog   repository.CatalogRepository
	items     repository.IndexItemRepository
}

// New creates a builder that connects lazily via the given connector.
func New(connector Connector, log *slog.Logger) *Builder {
	return &Builder{connector: connector, log: log}
}

// Connect establishes store access. It is idempotent: repeated calls after a
// successful connect are no-ops reporting the connected state.
func (b *Builder) Connect(ctx context.Context, opts domain.ConnectionOptions) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return true, nil
	}

	catalog, items, err := b.connector(ctx, opts)
	if err != nil {
		return false, apperrors.Connection("index store", err)
	}
	b.catalog = catalog
	b.items = items
	b.connected = true
	b.log.InfoContext(ctx, "index builder connected")
	return true, nil
}

func (b *Builder) repos() (repository.CatalogRepository, repository.IndexItemRepository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, nil, apperrors.Internal(fmt.Errorf("index builder not connected"))
	}
	return b.catalog, b.items, nil
}

// GetRawBatch fetches one zero-based page of raw variants.
func (b *Builder) GetRawBatch(ctx context.Context, batchNumber int) ([]domain.RawVariant, error) {
	catalog, _, err := b.repos()
	if err != nil {
		return nil, err
	}
	return catalog.GetRawBatch(ctx, batchNumber, BatchSize)
}

// GetRawBatchByIDs fetches the given variants with relations loaded.
func (b *Builder) GetRawBatchByIDs(ctx context.Context, ids []string) ([]domain.RawVariant, error) {
	catalog, _, err := b.repos()
	if err != nil {
		return nil, err
	}
	return catalog.GetRawBatchByIDs(ctx, ids)
}

// SaveVariants denormalizes one batch into index rows and upserts them. The
// returned flag reports whether this was the run's final batch.
func (b *Builder) SaveVariants(ctx context.Context, payload domain.SaveVariantsPayload) (bool, error) {
	_, items, err := b.repos()
	if err != nil {
		return false, err
	}

	rows := BuildIndexItems(payload.Variants, payload.RequestContext)
	if err := items.BulkUpsert(ctx, rows); err != nil {
		return false, err
	}

	b.log.DebugContext(ctx, "index batch saved",
		slog.Int("batch", payload.Batch),
		slog.Int("total", payload.Total),
		slog.Int("variants", len(payload.Variants)),
		slog.Int("rows", len(rows)),
	)
	return payload.Batch == payload.Total-1, nil
}

// ProcessMessage routes one protocol request to the builder and builds the
// reply. The correlation id is left to the transport; replies carry only type
// and payload.
func (b *Builder) ProcessMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	switch msg.Type {
	case domain.MessageConnectionOptions:
		var opts domain.ConnectionOptions
		if err := msg.DecodeValue(&opts); err != nil {
			return nil, err
		}
		connected, err := b.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return domain.NewMessage(domain.MessageConnected, connected)

	case domain.MessageGetRawBatch:
		var payload domain.GetRawBatchPayload
		if err := msg.DecodeValue(&payload); err != nil {
			return nil, err
		}
		variants, err := b.GetRawBatch(ctx, payload.BatchNumber)
		if err != nil {
			return nil, err
		}
		return domain.NewMessage(domain.MessageReturnRawBatch, domain.ReturnRawBatchPayload{Variants: variants})

	case domain.MessageGetRawBatchByIDs:
		var payload domain.GetRawBatchByIDsPayload
		if err := msg.DecodeValue(&payload); err != nil {
			return nil, err
		}
		variants, err := b.GetRawBatchByIDs(ctx, payload.IDs)
		if err != nil {
			return nil, err
		}
		return domain.NewMessage(domain.MessageReturnRawBatch, domain.ReturnRawBatchPayload{Variants: variants})

	case domain.MessageSaveVariants:
		var payload domain.SaveVariantsPayload
		if err := msg.DecodeValue(&payload); err != nil {
			return nil, err
		}
		completed, err := b.SaveVariants(ctx, payload)
		if err != nil {
			return nil, err
		}
		if completed {
			return domain.NewMessage(domain.MessageCompleted, true)
		}
		return domain.NewMessage(domain.MessageVariantsSaved, domain.VariantsSavedPayload{BatchNumber: payload.Batch})

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unexpected message type %q", msg.Type))
	}
}

// BuildIndexItems denormalizes raw variants into index rows: one row per
// variant per language found on the variant's or its product's translations,
// always including the request context's language.
func BuildIndexItems(variants []domain.RawVariant, rctx domain.RequestContext) []domain.SearchIndexItem {
	items := make([]domain.SearchIndexItem, 0, len(variants))
	for _, v := range variants {
		for _, lang := range translationLanguages(v, rctx.Language()) {
			items = append(items, buildIndexItem(v, lang, rctx))
		}
	}
	return items
}

func buildIndexItem(v domain.RawVariant, lang string, rctx domain.RequestContext) domain.SearchIndexItem {
	pt := productTranslationFor(v, lang, rctx.DefaultLanguageCode)
	vt := variantTranslationFor(v, lang, rctx.DefaultLanguageCode)

	variantName := vt.Name
	if variantName == "" {
		variantName = pt.Name
	}

	facetIDs := make([]string, 0, len(v.VariantFacetValues)+len(v.ProductFacetValues))
	facetValueIDs := make([]string, 0, len(v.VariantFacetValues)+len(v.ProductFacetValues))
	for _, fv := range v.VariantFacetValues {
		facetIDs = append(facetIDs, fv.FacetID)
		facetValueIDs = append(facetValueIDs, fv.ID)
	}
	for _, fv := range v.ProductFacetValues {
		facetIDs = append(facetIDs, fv.FacetID)
		facetValueIDs = append(facetValueIDs, fv.ID)
	}

	collectionIDs := make([]string, 0, len(v.Collections))
	collectionSlugs := make([]string, 0, len(v.Collections))
	for _, c := range v.Collections {
		collectionIDs = append(collectionIDs, c.ID)
		collectionSlugs = append(collectionSlugs, c.Slug)
	}

	return domain.SearchIndexItem{
		ProductVariantID:      v.ID,
		ProductID:             v.ProductID,
		ChannelID:             rctx.ChannelID,
		LanguageCode:          lang,
		SKU:                   v.SKU,
		Enabled:               v.Enabled,
		Slug:                  pt.Slug,
		ProductName:           pt.Name,
		Description:           pt.Description,
		ProductVariantName:    variantName,
		ProductPreview:        v.ProductPreview,
		ProductVariantPreview: v.VariantPreview,
		Price:                 v.Price,
		PriceWithTax:          priceWithTax(v.Price, v.TaxRate),
		InStock:               v.InStock,
		ProductInStock:        v.ProductInStock,
		FacetIDs:              domain.DedupeIDs(facetIDs),
		FacetValueIDs:         domain.DedupeIDs(facetValueIDs),
		CollectionIDs:         domain.DedupeIDs(collectionIDs),
		CollectionSlugs:       domain.DedupeIDs(collectionSlugs),
	}
}

// priceWithTax applies a percentage tax rate, rounding half away from zero.
func priceWithTax(price int64, taxRate float64) int64 {
	return int64(math.Round(float64(price) * (1 + taxRate/100)))
}

// translationLanguages returns the sorted set of languages a variant must be
// indexed under.
func translationLanguages(v domain.RawVariant, ctxLanguage string) []string {
	langs := make([]string, 0, len(v.ProductTranslations)+len(v.VariantTranslations)+1)
	for _, t := range v.ProductTranslations {
		langs = append(langs, t.LanguageCode)
	}
	for _, t := range v.VariantTranslations {
		langs = append(langs, t.LanguageCode)
	}
	langs = append(langs, ctxLanguage)
	return domain.DedupeIDs(langs)
}

func productTranslationFor(v domain.RawVariant, lang, defaultLanguage string) domain.ProductTranslation {
	var fallback domain.ProductTranslation
	for i, t := range v.ProductTranslations {
		if t.LanguageCode == lang {
			return t
		}
		if t.LanguageCode == defaultLanguage || i == 0 && fallback.LanguageCode == "" {
			fallback = t
		}
	}
	return fallback
}

func variantTranslationFor(v domain.RawVariant, lang, defaultLanguage string) domain.VariantTranslation {
	var fallback domain.VariantTranslation
	for i, t := range v.VariantTranslations {
		if t.LanguageCode == lang {
			return t
		}
		if t.LanguageCode == defaultLanguage || i == 0 && fallback.LanguageCode == "" {
			fallback = t
		}
	}
	return fallback
}
