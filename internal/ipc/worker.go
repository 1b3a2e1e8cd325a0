package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
)

// Worker is the child-process side of the protocol: it reads request frames,
// routes them through the builder, and writes reply frames stamped with the
// request's correlation id. Malformed frames and failed requests are logged
// and skipped; the loop itself only stops at end of input or cancellation.
type Worker struct {
	builder *indexer.Builder
	log     *slog.Logger
	in      io.Reader
	out     io.Writer
}

// NewWorker creates a worker loop over the given streams, stdin and stdout
// in production.
func NewWorker(builder *indexer.Builder, log *slog.Logger, in io.Reader, out io.Writer) *Worker {
	return &Worker{builder: builder, log: log, in: in, out: out}
}

// Run processes frames until the input closes or the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(w.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg domain.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			w.log.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}

		reply, err := w.builder.ProcessMessage(ctx, &msg)
		if err != nil {
			w.log.ErrorContext(ctx, "request failed",
				slog.String("type", string(msg.Type)),
				slog.String("correlation_id", msg.ChannelID),
				slog.String("error", err.Error()),
			)
			continue
		}
		reply.ChannelID = msg.ChannelID

		if err := w.writeFrame(reply); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request frames: %w", err)
	}
	return nil
}

func (w *Worker) writeFrame(msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", msg.Type, err)
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s frame: %w", msg.Type, err)
	}
	return nil
}
