package event

import (
	"context"
	"log/slog"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	pkgkafka "github.com/vendure-ecommerce/vendure-sub026/internal/kafka"
	"github.com/vendure-ecommerce/vendure-sub026/internal/logger"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
)

// Kafka topic constants for search index lifecycle events.
const (
	TopicIndexCompleted      = "ecommerce.search.index_completed"
	TopicIndexProductRemoved = "ecommerce.search.product_removed"
)

// Aggregate type constant.
const AggregateTypeSearchIndex = "search-index"

// Source identifier for events originating from the search service.
const SourceSearchService = "search-service"

// IndexCompletedData is the payload for an index_completed event.
type IndexCompletedData struct {
	ChannelID  string `json:"channel_id"`
	Variants   int    `json:"variants"`
	Batches    int    `json:"batches"`
	DurationMS int64  `json:"duration_ms"`
}

// ProductRemovedData is the payload for a product_removed event.
type ProductRemovedData struct {
	ProductID string `json:"product_id"`
	ChannelID string `json:"channel_id"`
}

// Producer publishes search index lifecycle events to Kafka. It implements
// service.IndexPublisher.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the search service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishIndexCompleted publishes a search.index_completed event.
func (p *Producer) PublishIndexCompleted(ctx context.Context, rctx domain.RequestContext, result *service.ReindexResult) error {
	data := IndexCompletedData{
		ChannelID:  rctx.ChannelID,
		Variants:   result.Variants,
		Batches:    result.Batches,
		DurationMS: result.Duration.Milliseconds(),
	}

	event, err := pkgkafka.NewEvent(TopicIndexCompleted, rctx.ChannelID, AggregateTypeSearchIndex, SourceSearchService, data)
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	return p.kafka.Publish(ctx, TopicIndexCompleted, event)
}

// PublishProductRemoved publishes a search.product_removed event.
func (p *Producer) PublishProductRemoved(ctx context.Context, rctx domain.RequestContext, productID string) error {
	data := ProductRemovedData{
		ProductID: productID,
		ChannelID: rctx.ChannelID,
	}

	event, err := pkgkafka.NewEvent(TopicIndexProductRemoved, productID, AggregateTypeSearchIndex, SourceSearchService, data)
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	return p.kafka.Publish(ctx, TopicIndexProductRemoved, event)
}
