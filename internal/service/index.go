package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
)

// Requester is the request/reply channel to an index builder endpoint. The
// in-process and worker-process transports satisfy it identically.
type Requester interface {
	Request(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// IndexPublisher emits index lifecycle events for downstream services.
type IndexPublisher interface {
	PublishIndexCompleted(ctx context.Context, rctx domain.RequestContext, result *ReindexResult) error
	PublishProductRemoved(ctx context.Context, rctx domain.RequestContext, productID string) error
}

// ReindexResult summarizes one completed reindex run.
type ReindexResult struct {
	Variants int           `json:"variants"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// IndexService orchestrates index builds. It drives the builder exclusively
// through the message protocol, so it works unchanged whether the builder
// runs in this process or in a worker.
type IndexService struct {
	channel  Requester
	catalog  repository.CatalogRepository
	items    repository.IndexItemRepository
	cache    repository.SearchCache
	events   IndexPublisher
	connOpts domain.ConnectionOptions
	logger   *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewIndexService creates a new index orchestrator. cache and events may be
// nil when those integrations are disabled.
func NewIndexService(
	channel Requester,
	catalog repository.CatalogRepository,
	items repository.IndexItemRepository,
	cache repository.SearchCache,
	events IndexPublisher,
	connOpts domain.ConnectionOptions,
	logger *slog.Logger,
) *IndexService {
	return &IndexService{
		channel:  channel,
		catalog:  catalog,
		items:    items,
		cache:    cache,
		events:   events,
		connOpts: connOpts,
		logger:   logger,
	}
}

// Reindex rebuilds the whole index for the given context, batch by batch.
// Runs are serialized; a second caller blocks until the first finishes.
func (s *IndexService) Reindex(ctx context.Context, rctx domain.RequestContext) (*ReindexResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.ensureConnected(ctx); err != nil {
		reindexRunsTotal.WithLabelValues("full", "error").Inc()
		return nil, err
	}

	count, err := s.catalog.CountVariants(ctx)
	if err != nil {
		reindexRunsTotal.WithLabelValues("full", "error").Inc()
		return nil, err
	}
	totalBatches := (count + indexer.BatchSize - 1) / indexer.BatchSize

	s.logger.InfoContext(ctx, "reindex started",
		slog.String("channel_id", rctx.ChannelID),
		slog.Int("variants", count),
		slog.Int("batches", totalBatches),
	)

	variants := 0
	for batch := 0; batch < totalBatches; batch++ {
		n, err := s.runBatch(ctx, rctx, batch, totalBatches)
		if err != nil {
			reindexRunsTotal.WithLabelValues("full", "error").Inc()
			return nil, fmt.Errorf("reindex batch %d of %d: %w", batch, totalBatches, err)
		}
		variants += n
		reindexBatchesTotal.Inc()
	}

	result := &ReindexResult{Variants: variants, Batches: totalBatches, Duration: time.Since(start)}
	s.finishRun(ctx, rctx, "full", result)
	return result, nil
}

// ReindexVariants rebuilds the index rows of an explicit variant set.
func (s *IndexService) ReindexVariants(ctx context.Context, rctx domain.RequestContext, ids []string) (*ReindexResult, error) {
	if len(ids) == 0 {
		return &ReindexResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.ensureConnected(ctx); err != nil {
		reindexRunsTotal.WithLabelValues("variants", "error").Inc()
		return nil, err
	}

	msg, err := domain.NewMessage(domain.MessageGetRawBatchByIDs, domain.GetRawBatchByIDsPayload{IDs: ids})
	if err != nil {
		return nil, err
	}
	reply, err := s.channel.Request(ctx, msg)
	if err != nil {
		reindexRunsTotal.WithLabelValues("variants", "error").Inc()
		return nil, err
	}
	var batch domain.ReturnRawBatchPayload
	if err := expectReply(reply, domain.MessageReturnRawBatch, &batch); err != nil {
		reindexRunsTotal.WithLabelValues("variants", "error").Inc()
		return nil, err
	}

	if err := s.saveBatch(ctx, rctx, batch.Variants, 0, 1); err != nil {
		reindexRunsTotal.WithLabelValues("variants", "error").Inc()
		return nil, err
	}
	reindexBatchesTotal.Inc()

	result := &ReindexResult{Variants: len(batch.Variants), Batches: 1, Duration: time.Since(start)}
	s.finishRun(ctx, rctx, "variants", result)
	return result, nil
}

// ReindexProduct rebuilds the index rows of one product's variants. A
// product that no longer has live variants is removed from the index
// instead.
func (s *IndexService) ReindexProduct(ctx context.Context, rctx domain.RequestContext, productID string) (*ReindexResult, error) {
	ids, err := s.catalog.VariantIDsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if err := s.RemoveProduct(ctx, rctx, productID); err != nil {
			return nil, err
		}
		return &ReindexResult{}, nil
	}
	return s.ReindexVariants(ctx, rctx, ids)
}

// RemoveProduct deletes every index row of a product within the context's
// channel. The write bypasses the builder; removal needs no denormalization.
func (s *IndexService) RemoveProduct(ctx context.Context, rctx domain.RequestContext, productID string) error {
	if err := s.items.DeleteByProduct(ctx, productID, rctx.ChannelID); err != nil {
		return err
	}
	s.flushCache(ctx)

	s.logger.InfoContext(ctx, "product removed from index",
		slog.String("product_id", productID),
		slog.String("channel_id", rctx.ChannelID),
	)
	if s.events != nil {
		if err := s.events.PublishProductRemoved(ctx, rctx, productID); err != nil {
			s.logger.WarnContext(ctx, "failed to publish product removed event",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *IndexService) runBatch(ctx context.Context, rctx domain.RequestContext, batchNumber, totalBatches int) (int, error) {
	msg, err := domain.NewMessage(domain.MessageGetRawBatch, domain.GetRawBatchPayload{BatchNumber: batchNumber})
	if err != nil {
		return 0, err
	}
	reply, err := s.channel.Request(ctx, msg)
	if err != nil {
		return 0, err
	}
	var batch domain.ReturnRawBatchPayload
	if err := expectReply(reply, domain.MessageReturnRawBatch, &batch); err != nil {
		return 0, err
	}

	if err := s.saveBatch(ctx, rctx, batch.Variants, batchNumber, totalBatches); err != nil {
		return 0, err
	}
	return len(batch.Variants), nil
}

// saveBatch sends one SAVE_VARIANTS request and validates the acknowledgment:
// the final batch must come back COMPLETED, every other one VARIANTS_SAVED.
func (s *IndexService) saveBatch(ctx context.Context, rctx domain.RequestContext, variants []domain.RawVariant, batchNumber, totalBatches int) error {
	msg, err := domain.NewMessage(domain.MessageSaveVariants, domain.SaveVariantsPayload{
		Variants:       variants,
		RequestContext: rctx,
		Batch:          batchNumber,
		Total:          totalBatches,
	})
	if err != nil {
		return err
	}
	reply, err := s.channel.Request(ctx, msg)
	if err != nil {
		return err
	}

	if batchNumber == totalBatches-1 {
		return expectReply(reply, domain.MessageCompleted, nil)
	}
	var saved domain.VariantsSavedPayload
	if err := expectReply(reply, domain.MessageVariantsSaved, &saved); err != nil {
		return err
	}
	if saved.BatchNumber != batchNumber {
		return apperrors.Internal(fmt.Errorf("acknowledgment for batch %d, expected %d", saved.BatchNumber, batchNumber))
	}
	return nil
}

func (s *IndexService) ensureConnected(ctx context.Context) error {
	if s.connected {
		return nil
	}

	msg, err := domain.NewMessage(domain.MessageConnectionOptions, s.connOpts)
	if err != nil {
		return err
	}
	reply, err := s.channel.Request(ctx, msg)
	if err != nil {
		return err
	}
	var connected bool
	if err := expectReply(reply, domain.MessageConnected, &connected); err != nil {
		return err
	}
	if !connected {
		return apperrors.Connection("index builder", fmt.Errorf("builder reported not connected"))
	}
	s.connected = true
	return nil
}

func (s *IndexService) finishRun(ctx context.Context, rctx domain.RequestContext, kind string, result *ReindexResult) {
	s.flushCache(ctx)
	reindexRunsTotal.WithLabelValues(kind, "ok").Inc()
	reindexDuration.WithLabelValues(kind).Observe(result.Duration.Seconds())

	s.logger.InfoContext(ctx, "reindex completed",
		slog.String("kind", kind),
		slog.String("channel_id", rctx.ChannelID),
		slog.Int("variants", result.Variants),
		slog.Int("batches", result.Batches),
		slog.Duration("duration", result.Duration),
	)
	if s.events != nil {
		if err := s.events.PublishIndexCompleted(ctx, rctx, result); err != nil {
			s.logger.WarnContext(ctx, "failed to publish index completed event",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *IndexService) flushCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Flush(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to flush search cache", slog.String("error", err.Error()))
	}
}

// expectReply checks the reply type and decodes its payload into dst when
// dst is non-nil.
func expectReply(reply *domain.Message, want domain.MessageType, dst any) error {
	if reply.Type != want {
		return apperrors.Internal(fmt.Errorf("unexpected reply %s, expected %s", reply.Type, want))
	}
	if dst == nil {
		return nil
	}
	return reply.DecodeValue(dst)
}
