package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
)

// --- Test Doubles ---

type fakeCatalog struct {
	variants []domain.RawVariant
}

func (f *fakeCatalog) GetRawBatch(_ context.Context, batchNumber, batchSize int) ([]domain.RawVariant, error) {
	start := batchNumber * batchSize
	if start >= len(f.variants) {
		return []domain.RawVariant{}, nil
	}
	end := start + batchSize
	if end > len(f.variants) {
		end = len(f.variants)
	}
	return f.variants[start:end], nil
}

func (f *fakeCatalog) GetRawBatchByIDs(_ context.Context, ids []string) ([]domain.RawVariant, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.RawVariant
	for _, v := range f.variants {
		if want[v.ID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeCatalog) CountVariants(context.Context) (int, error) {
	return len(f.variants), nil
}

func (f *fakeCatalog) VariantIDsForProduct(_ context.Context, productID string) ([]string, error) {
	var out []string
	for _, v := range f.variants {
		if v.ProductID == productID {
			out = append(out, v.ID)
		}
	}
	return out, nil
}

type fakeItems struct {
	mu        sync.Mutex
	saved     []domain.SearchIndexItem
	deleted   []string
	upsertErr error
}

func (f *fakeItems) BulkUpsert(_ context.Context, items []domain.SearchIndexItem) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, items...)
	return nil
}

func (f *fakeItems) DeleteByProduct(_ context.Context, productID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, productID+"@"+channelID)
	return nil
}

func (f *fakeItems) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved), nil
}

type fakeCache struct {
	mu      sync.Mutex
	flushes int
}

func (f *fakeCache) Get(context.Context, string) (*domain.SearchResponse, error) {
	return nil, errors.New("not cached")
}
func (f *fakeCache) Set(context.Context, string, *domain.SearchResponse) error { return nil }
func (f *fakeCache) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

type fakePublisher struct {
	completed []*ReindexResult
	removed   []string
}

func (f *fakePublisher) PublishIndexCompleted(_ context.Context, _ domain.RequestContext, result *ReindexResult) error {
	f.completed = append(f.completed, result)
	return nil
}

func (f *fakePublisher) PublishProductRemoved(_ context.Context, _ domain.RequestContext, productID string) error {
	f.removed = append(f.removed, productID)
	return nil
}

// builderRequester drives a real builder directly, bypassing the transport.
// The orchestration under test only sees the Requester interface, exactly as
// it would over an in-process or worker channel.
type builderRequester struct {
	builder *indexer.Builder
}

func (r builderRequester) Request(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	reply, err := r.builder.ProcessMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	reply.ChannelID = msg.ChannelID
	return reply, nil
}

type failingRequester struct {
	err error
}

func (r failingRequester) Request(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, r.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRequestContext() domain.RequestContext {
	return domain.RequestContext{
		ChannelID:           "channel-1",
		LanguageCode:        "en",
		DefaultLanguageCode: "en",
	}
}

func makeVariants(n int) []domain.RawVariant {
	variants := make([]domain.RawVariant, n)
	for i := range variants {
		variants[i] = domain.RawVariant{
			ID:        fmt.Sprintf("var-%04d", i),
			ProductID: fmt.Sprintf("prod-%04d", i/4),
			SKU:       fmt.Sprintf("SKU-%04d", i),
			Enabled:   true,
			Price:     1000,
			ProductTranslations: []domain.ProductTranslation{
				{LanguageCode: "en", Name: fmt.Sprintf("Product %04d", i/4), Slug: fmt.Sprintf("product-%04d", i/4)},
			},
		}
	}
	return variants
}

func newIndexService(catalog *fakeCatalog, items *fakeItems, cache *fakeCache, events *fakePublisher) *IndexService {
	builder := indexer.New(func(context.Context, domain.ConnectionOptions) (repository.CatalogRepository, repository.IndexItemRepository, error) {
		return catalog, items, nil
	}, newTestLogger())

	var cacheArg repository.SearchCache
	if cache != nil {
		cacheArg = cache
	}
	var eventsArg IndexPublisher
	if events != nil {
		eventsArg = events
	}
	return NewIndexService(
		builderRequester{builder}, catalog, items, cacheArg, eventsArg,
		domain.ConnectionOptions{Database: "catalog"}, newTestLogger(),
	)
}

// --- Reindex ---

func TestIndexService_Reindex_BatchesWholeCatalog(t *testing.T) {
	catalog := &fakeCatalog{variants: makeVariants(1200)}
	items := &fakeItems{}
	cache := &fakeCache{}
	events := &fakePublisher{}
	svc := newIndexService(catalog, items, cache, events)

	result, err := svc.Reindex(context.Background(), testRequestContext())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 1200, result.Variants)

	count, err := items.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1200, count)

	assert.Equal(t, 1, cache.flushes)
	require.Len(t, events.completed, 1)
	assert.Equal(t, 1200, events.completed[0].Variants)
}

func TestIndexService_Reindex_EmptyCatalog(t *testing.T) {
	svc := newIndexService(&fakeCatalog{}, &fakeItems{}, nil, nil)

	result, err := svc.Reindex(context.Background(), testRequestContext())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Batches)
	assert.Equal(t, 0, result.Variants)
}

func TestIndexService_Reindex_TransportFailure(t *testing.T) {
	svc := NewIndexService(
		failingRequester{errors.New("worker gone")},
		&fakeCatalog{}, &fakeItems{}, nil, nil,
		domain.ConnectionOptions{}, newTestLogger(),
	)

	_, err := svc.Reindex(context.Background(), testRequestContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker gone")
}

func TestIndexService_Reindex_UpsertFailureAborts(t *testing.T) {
	catalog := &fakeCatalog{variants: makeVariants(10)}
	items := &fakeItems{upsertErr: errors.New("deadlock detected")}
	svc := newIndexService(catalog, items, nil, nil)

	_, err := svc.Reindex(context.Background(), testRequestContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reindex batch 0")
}

// --- ReindexVariants / ReindexProduct ---

func TestIndexService_ReindexVariants(t *testing.T) {
	catalog := &fakeCatalog{variants: makeVariants(20)}
	items := &fakeItems{}
	events := &fakePublisher{}
	svc := newIndexService(catalog, items, nil, events)

	result, err := svc.ReindexVariants(context.Background(), testRequestContext(), []string{"var-0003", "var-0007"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Variants)
	assert.Equal(t, 1, result.Batches)

	count, err := items.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, events.completed, 1)
}

func TestIndexService_ReindexVariants_EmptyIDs(t *testing.T) {
	svc := NewIndexService(
		failingRequester{errors.New("must not be called")},
		&fakeCatalog{}, &fakeItems{}, nil, nil,
		domain.ConnectionOptions{}, newTestLogger(),
	)

	result, err := svc.ReindexVariants(context.Background(), testRequestContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Variants)
}

func TestIndexService_ReindexProduct(t *testing.T) {
	catalog := &fakeCatalog{variants: makeVariants(8)}
	items := &fakeItems{}
	svc := newIndexService(catalog, items, nil, nil)

	// prod-0001 owns var-0004..var-0007.
	result, err := svc.ReindexProduct(context.Background(), testRequestContext(), "prod-0001")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Variants)
}

func TestIndexService_ReindexProduct_NoVariantsRemoves(t *testing.T) {
	catalog := &fakeCatalog{}
	items := &fakeItems{}
	events := &fakePublisher{}
	svc := newIndexService(catalog, items, nil, events)

	result, err := svc.ReindexProduct(context.Background(), testRequestContext(), "prod-gone")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Variants)
	assert.Equal(t, []string{"prod-gone@channel-1"}, items.deleted)
	assert.Equal(t, []string{"prod-gone"}, events.removed)
}

// --- RemoveProduct ---

func TestIndexService_RemoveProduct(t *testing.T) {
	items := &fakeItems{}
	cache := &fakeCache{}
	svc := newIndexService(&fakeCatalog{}, items, cache, nil)

	require.NoError(t, svc.RemoveProduct(context.Background(), testRequestContext(), "prod-1"))
	assert.Equal(t, []string{"prod-1@channel-1"}, items.deleted)
	assert.Equal(t, 1, cache.flushes)
}
