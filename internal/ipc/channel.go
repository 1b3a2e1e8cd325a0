package ipc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	apperrors "github.com/vendure-ecommerce/vendure-sub026/internal/errors"
)

// ErrChannelClosed is returned by Request after Close.
var ErrChannelClosed = errors.New("ipc channel closed")

// Target is one end of the reindex protocol transport: it accepts request
// messages and emits reply messages. LocalTarget and ProcessTarget implement
// it; the caller cannot tell them apart.
type Target interface {
	// Send delivers one request. It must not block on the reply.
	Send(ctx context.Context, msg *domain.Message) error

	// Messages emits replies. The channel closes when the target closes.
	Messages() <-chan *domain.Message

	Close() error
}

// Channel gives request/reply semantics on top of a Target. Every request is
// stamped with a fresh correlation id and its reply is matched back by that
// id, so concurrent requests over one target never cross.
type Channel struct {
	target Target
	ids    IDGenerator
	log    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *domain.Message
	closed  bool
	done    chan struct{}
}

// NewChannel wraps a target and starts dispatching its replies.
func NewChannel(target Target, ids IDGenerator, log *slog.Logger) *Channel {
	c := &Channel{
		target:  target,
		ids:     ids,
		log:     log,
		pending: make(map[string]chan *domain.Message),
		done:    make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Request sends one message and blocks until its reply, context cancellation,
// or channel close. The reply is the message whose correlation id matches;
// replies to other in-flight requests are never surfaced here.
func (c *Channel) Request(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	id := c.ids.NewID()
	msg.ChannelID = id

	replyCh := make(chan *domain.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	c.pending[id] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.target.Send(ctx, msg); err != nil {
		return nil, apperrors.Connection("index builder", err)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

// Close tears down the underlying target and fails all in-flight requests.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.target.Close()
	close(c.done)
	return err
}

func (c *Channel) dispatch() {
	for msg := range c.target.Messages() {
		c.mu.Lock()
		replyCh, ok := c.pending[msg.ChannelID]
		c.mu.Unlock()
		if !ok {
			c.log.Warn("dropping reply with no pending request",
				slog.String("type", string(msg.Type)),
				slog.String("correlation_id", msg.ChannelID),
			)
			continue
		}
		select {
		case replyCh <- msg:
		default:
			// One reply per request; a second one is a protocol violation.
			c.log.Warn("dropping duplicate reply",
				slog.String("type", string(msg.Type)),
				slog.String("correlation_id", msg.ChannelID),
			)
		}
	}
}
