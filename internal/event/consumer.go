package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	pkgkafka "github.com/vendure-ecommerce/vendure-sub026/internal/kafka"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
)

// Kafka topic constants for the catalog domain events that drive incremental
// index updates.
const (
	TopicProductCreated = "ecommerce.product.created"
	TopicProductUpdated = "ecommerce.product.updated"
	TopicProductDeleted = "ecommerce.product.deleted"
	TopicVariantUpdated = "ecommerce.product.variant_updated"
)

// ProductEventData is the payload of product created and updated events.
// Only the id matters here; the index builder re-reads the catalog itself.
type ProductEventData struct {
	ID string `json:"id"`
}

// ProductDeletedData is the payload of a product.deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// VariantEventData is the payload of a variant_updated event.
type VariantEventData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
}

// IndexOps is the slice of the index orchestrator the consumer drives.
type IndexOps interface {
	ReindexProduct(ctx context.Context, rctx domain.RequestContext, productID string) (*service.ReindexResult, error)
	ReindexVariants(ctx context.Context, rctx domain.RequestContext, ids []string) (*service.ReindexResult, error)
	RemoveProduct(ctx context.Context, rctx domain.RequestContext, productID string) error
}

// Consumer translates catalog domain events into targeted index updates.
type Consumer struct {
	index  IndexOps
	rctx   domain.RequestContext
	logger *slog.Logger
}

// NewConsumer creates a new event consumer updating the index for the given
// channel context.
func NewConsumer(index IndexOps, rctx domain.RequestContext, logger *slog.Logger) *Consumer {
	return &Consumer{
		index:  index,
		rctx:   rctx,
		logger: logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return c.handleProductChanged(ctx, event)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	case TopicVariantUpdated:
		return c.handleVariantUpdated(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleProductChanged reindexes all variants of a created or updated
// product.
func (c *Consumer) handleProductChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	result, err := c.index.ReindexProduct(ctx, c.rctx, data.ID)
	if err != nil {
		return fmt.Errorf("reindex product from %s event: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "reindexed product from event",
		slog.String("event_type", event.EventType),
		slog.String("product_id", data.ID),
		slog.Int("variants", result.Variants),
	)
	return nil
}

// handleProductDeleted removes a deleted product from the index.
func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal product.deleted data: %w", err)
	}

	if err := c.index.RemoveProduct(ctx, c.rctx, data.ID); err != nil {
		return fmt.Errorf("remove product from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "removed product from index after deleted event",
		slog.String("product_id", data.ID),
	)
	return nil
}

// handleVariantUpdated reindexes one variant.
func (c *Consumer) handleVariantUpdated(ctx context.Context, event *pkgkafka.Event) error {
	var data VariantEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal variant_updated data: %w", err)
	}

	if _, err := c.index.ReindexVariants(ctx, c.rctx, []string{data.ID}); err != nil {
		return fmt.Errorf("reindex variant from updated event: %w", err)
	}

	c.logger.InfoContext(ctx, "reindexed variant from updated event",
		slog.String("variant_id", data.ID),
		slog.String("product_id", data.ProductID),
	)
	return nil
}
