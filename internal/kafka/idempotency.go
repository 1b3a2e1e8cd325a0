package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers processed event ids. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	// Add marks an event id processed; called only after the handler
	// succeeds.
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps processed ids in memory with a TTL. Fine for
// a single replica; duplicate suppression is an optimization here, since
// index upserts are idempotent anyway.
type MemoryIdempotencyStore struct {
	ttl    time.Duration
	mu     sync.Mutex
	seenAt map[string]time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:    ttl,
		seenAt: make(map[string]time.Time),
	}
}

// Contains reports whether id was processed within the TTL. Expired entries
// are removed on access.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.seenAt[id]
	switch {
	case !ok:
		return false, nil
	case time.Since(at) > s.ttl:
		delete(s.seenAt, id)
		return false, nil
	default:
		return true, nil
	}
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seenAt[id] = time.Now()
	return nil
}

// Len counts stored entries, expired ones included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seenAt)
}

// IdempotentHandler drops events whose id was already processed. Store
// failures fail open: reprocessing a catalog event re-upserts the same index
// rows, losing one does not self-heal. topic and group label the duplicate
// counter.
func IdempotentHandler(store IdempotencyStore, topic, group string, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		switch seen, err := store.Contains(ctx, event.EventID); {
		case err != nil:
			logger.Warn("idempotency store lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		case seen:
			ConsumerMessagesDuplicate.WithLabelValues(topic, group).Inc()
			logger.Debug("skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			logger.Warn("failed to record event id in idempotency store",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
