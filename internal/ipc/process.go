package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
)

// maxFrameSize caps one newline-delimited JSON frame. Batches of raw
// variants are the largest messages on the wire.
const maxFrameSize = 64 * 1024 * 1024

// ProcessTarget runs the builder in a child process and frames messages as
// newline-delimited JSON over the child's stdin and stdout. The child's
// stderr passes through, so its structured logs land in the host's stream.
type ProcessTarget struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   *slog.Logger

	writeMu   sync.Mutex
	out       chan *domain.Message
	closeOnce sync.Once
	closeErr  error
}

// NewProcessTarget starts the worker command and begins reading its replies.
func NewProcessTarget(ctx context.Context, command string, args []string, log *slog.Logger) (*ProcessTarget, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %q: %w", command, err)
	}

	t := &ProcessTarget{
		cmd:   cmd,
		stdin: stdin,
		log:   log,
		out:   make(chan *domain.Message, 16),
	}
	go t.readReplies(stdout)

	log.InfoContext(ctx, "index worker started",
		slog.String("command", command),
		slog.Int("pid", cmd.Process.Pid),
	)
	return t, nil
}

// Send writes one frame to the worker's stdin. Writes are serialized; frames
// must never interleave.
func (t *ProcessTarget) Send(_ context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", msg.Type, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s frame to worker: %w", msg.Type, err)
	}
	return nil
}

func (t *ProcessTarget) Messages() <-chan *domain.Message {
	return t.out
}

// Close signals end of input to the worker and waits for it to exit.
func (t *ProcessTarget) Close() error {
	t.closeOnce.Do(func() {
		if err := t.stdin.Close(); err != nil {
			t.closeErr = fmt.Errorf("close worker stdin: %w", err)
		}
		if err := t.cmd.Wait(); err != nil && t.closeErr == nil {
			t.closeErr = fmt.Errorf("wait for worker: %w", err)
		}
	})
	return t.closeErr
}

func (t *ProcessTarget) readReplies(stdout io.Reader) {
	defer close(t.out)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg domain.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			t.log.Warn("dropping malformed worker frame", slog.String("error", err.Error()))
			continue
		}
		t.out <- &msg
	}
	if err := scanner.Err(); err != nil {
		t.log.Warn("worker stdout read failed", slog.String("error", err.Error()))
	}
}
