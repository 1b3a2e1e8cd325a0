package ipc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
)

// --- Stub Repositories ---

type stubCatalog struct {
	variants []domain.RawVariant
}

func (s *stubCatalog) GetRawBatch(_ context.Context, batchNumber, batchSize int) ([]domain.RawVariant, error) {
	start := batchNumber * batchSize
	if start >= len(s.variants) {
		return []domain.RawVariant{}, nil
	}
	end := start + batchSize
	if end > len(s.variants) {
		end = len(s.variants)
	}
	return s.variants[start:end], nil
}

func (s *stubCatalog) GetRawBatchByIDs(_ context.Context, ids []string) ([]domain.RawVariant, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.RawVariant
	for _, v := range s.variants {
		if want[v.ID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *stubCatalog) CountVariants(context.Context) (int, error) {
	return len(s.variants), nil
}

func (s *stubCatalog) VariantIDsForProduct(_ context.Context, productID string) ([]string, error) {
	var out []string
	for _, v := range s.variants {
		if v.ProductID == productID {
			out = append(out, v.ID)
		}
	}
	return out, nil
}

type stubItems struct {
	mu    sync.Mutex
	saved []domain.SearchIndexItem
}

func (s *stubItems) BulkUpsert(_ context.Context, items []domain.SearchIndexItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, items...)
	return nil
}

func (s *stubItems) DeleteByProduct(context.Context, string, string) error { return nil }

func (s *stubItems) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved), nil
}

func stubVariant(id string) domain.RawVariant {
	return domain.RawVariant{
		ID:        id,
		ProductID: "prod-1",
		SKU:       "SKU-" + id,
		Enabled:   true,
		Price:     1000,
		ProductTranslations: []domain.ProductTranslation{
			{LanguageCode: "en", Name: "Red Hat", Slug: "red-hat"},
		},
	}
}

func newStubBuilder(catalog *stubCatalog, items *stubItems) *indexer.Builder {
	return indexer.New(func(context.Context, domain.ConnectionOptions) (repository.CatalogRepository, repository.IndexItemRepository, error) {
		return catalog, items, nil
	}, newTestLogger())
}

// --- Tests ---

// Exercises the full reindex conversation over the in-process transport:
// connect, fetch, save, complete. The cross-process transport carries the
// same frames; only the plumbing differs.
func TestLocalTarget_FullConversation(t *testing.T) {
	catalog := &stubCatalog{variants: []domain.RawVariant{stubVariant("var-1"), stubVariant("var-2")}}
	items := &stubItems{}
	target := NewLocalTarget(newStubBuilder(catalog, items), newTestLogger())
	c := NewChannel(target, UUIDGenerator(), newTestLogger())
	defer c.Close()

	ctx := context.Background()

	msg, err := domain.NewMessage(domain.MessageConnectionOptions, domain.ConnectionOptions{Database: "catalog"})
	require.NoError(t, err)
	reply, err := c.Request(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageConnected, reply.Type)

	msg, err = domain.NewMessage(domain.MessageGetRawBatch, domain.GetRawBatchPayload{BatchNumber: 0})
	require.NoError(t, err)
	reply, err = c.Request(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, domain.MessageReturnRawBatch, reply.Type)

	var batch domain.ReturnRawBatchPayload
	require.NoError(t, reply.DecodeValue(&batch))
	require.Len(t, batch.Variants, 2)

	msg, err = domain.NewMessage(domain.MessageSaveVariants, domain.SaveVariantsPayload{
		Variants: batch.Variants,
		RequestContext: domain.RequestContext{
			ChannelID:           "channel-1",
			DefaultLanguageCode: "en",
		},
		Batch: 0,
		Total: 1,
	})
	require.NoError(t, err)
	reply, err = c.Request(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageCompleted, reply.Type)

	count, err := items.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Send after Close must fail cleanly rather than race a reply onto the closed
// message channel.
func TestLocalTarget_SendAfterCloseReturnsError(t *testing.T) {
	catalog := &stubCatalog{variants: []domain.RawVariant{stubVariant("var-1")}}
	target := NewLocalTarget(newStubBuilder(catalog, &stubItems{}), newTestLogger())

	ctx := context.Background()
	msg, err := domain.NewMessage(domain.MessageConnectionOptions, domain.ConnectionOptions{Database: "catalog"})
	require.NoError(t, err)
	require.NoError(t, target.Send(ctx, msg))

	require.NoError(t, target.Close())

	for i := 0; i < 50; i++ {
		assert.ErrorIs(t, target.Send(ctx, msg), ErrChannelClosed)
	}

	// Close is idempotent.
	require.NoError(t, target.Close())
}

// Closing while requests are in flight waits for them instead of panicking on
// the reply path.
func TestLocalTarget_CloseWithInFlightRequests(t *testing.T) {
	catalog := &stubCatalog{variants: []domain.RawVariant{stubVariant("var-1")}}
	target := NewLocalTarget(newStubBuilder(catalog, &stubItems{}), newTestLogger())

	ctx := context.Background()
	connect, err := domain.NewMessage(domain.MessageConnectionOptions, domain.ConnectionOptions{Database: "catalog"})
	require.NoError(t, err)
	require.NoError(t, target.Send(ctx, connect))

	for i := 0; i < 20; i++ {
		msg, err := domain.NewMessage(domain.MessageGetRawBatch, domain.GetRawBatchPayload{BatchNumber: 0})
		require.NoError(t, err)
		require.NoError(t, target.Send(ctx, msg))
	}

	require.NoError(t, target.Close())

	// After Close the message channel drains and terminates.
	for range target.Messages() {
	}
}

// A failed request produces no reply frame; the caller observes a timeout,
// exactly as it would if a worker process died mid-request.
func TestLocalTarget_FailedRequestProducesNoReply(t *testing.T) {
	// Not connected: every data operation fails inside the builder.
	builder := indexer.New(nil, newTestLogger())
	target := NewLocalTarget(builder, newTestLogger())
	c := NewChannel(target, UUIDGenerator(), newTestLogger())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msg, err := domain.NewMessage(domain.MessageGetRawBatch, domain.GetRawBatchPayload{BatchNumber: 0})
	require.NoError(t, err)
	_, err = c.Request(ctx, msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
