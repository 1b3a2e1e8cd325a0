package ipc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
)

// LocalTarget runs the builder inside the host process. Send dispatches each
// request on its own goroutine and the reply flows back through the same
// message channel a process transport would use, keeping the call shape
// identical across deployments.
type LocalTarget struct {
	builder *indexer.Builder
	log     *slog.Logger

	out  chan *domain.Message
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewLocalTarget creates an in-process transport in front of the builder.
func NewLocalTarget(builder *indexer.Builder, log *slog.Logger) *LocalTarget {
	return &LocalTarget{
		builder: builder,
		log:     log,
		out:     make(chan *domain.Message, 16),
		done:    make(chan struct{}),
	}
}

// Send routes the request to the builder asynchronously. Processing errors
// are logged and produce no reply, matching what a caller observes when a
// worker process fails mid-request.
func (t *LocalTarget) Send(ctx context.Context, msg *domain.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrChannelClosed
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		reply, err := t.builder.ProcessMessage(ctx, msg)
		if err != nil {
			t.log.ErrorContext(ctx, "index builder request failed",
				slog.String("type", string(msg.Type)),
				slog.String("correlation_id", msg.ChannelID),
				slog.String("error", err.Error()),
			)
			return
		}
		reply.ChannelID = msg.ChannelID

		select {
		case t.out <- reply:
		case <-t.done:
		}
	}()
	return nil
}

func (t *LocalTarget) Messages() <-chan *domain.Message {
	return t.out
}

// Close rejects further sends, waits for in-flight requests, and closes the
// message channel. Safe to call more than once.
func (t *LocalTarget) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	t.wg.Wait()
	close(t.out)
	return nil
}
