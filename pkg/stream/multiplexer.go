package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/pkg/llm"
)

var (
	// ErrAborted means the consumer went away before end of stream. Nothing was persisted.
	ErrAborted = errors.New("stream aborted by consumer")
	// ErrUpstream means generation failed mid-stream.
	ErrUpstream = errors.New("upstream generation failed")
)

// Outcome classifies how a multiplexed turn ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "upstream_failed"
)

// Finalizer persists the assistant message once text production has stopped and
// returns the metadata block to append, or nil. complete is false when the
// upstream failed and text holds only what arrived before the failure; any
// block returned in that case is ignored.
type Finalizer func(ctx context.Context, text string, complete bool) (*Payload, error)

// Result describes a finished turn.
type Result struct {
	Text    string
	Frame   *Payload
	Outcome Outcome
}

type flusher interface {
	Flush() error
}

// Multiplexer streams model deltas to a writer, accumulates the full text, and
// after the last delta persists once and appends at most one metadata block.
type Multiplexer struct {
	logger logger.ILogger
}

func NewMultiplexer(log logger.ILogger) *Multiplexer {
	return &Multiplexer{logger: log}
}

// Pipe drains src into w. It closes src before returning. The finalizer runs at
// most once: on clean end of stream, or best-effort on upstream failure when some
// text was produced. It never runs when the consumer aborted.
func (m *Multiplexer) Pipe(ctx context.Context, w io.Writer, src llm.TokenStream, finalize Finalizer) (Result, error) {
	defer src.Close()

	var full strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return Result{Text: full.String(), Outcome: OutcomeAborted}, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		delta, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return Result{Text: full.String(), Outcome: OutcomeAborted}, fmt.Errorf("%w: %v", ErrAborted, err)
			}
			return m.failed(ctx, full.String(), finalize, err)
		}

		full.WriteString(delta)
		if err := writeAndFlush(w, []byte(delta)); err != nil {
			return Result{Text: full.String(), Outcome: OutcomeAborted}, fmt.Errorf("%w: %v", ErrAborted, err)
		}
	}

	text := full.String()
	frame, err := finalize(ctx, text, true)
	if err != nil {
		return Result{Text: text, Outcome: OutcomeFailed}, fmt.Errorf("persist assistant message: %w", err)
	}

	result := Result{Text: text, Frame: frame, Outcome: OutcomeCompleted}
	if frame == nil {
		return result, nil
	}

	encoded, err := Encode(frame)
	if err != nil {
		return result, err
	}
	if err := writeAndFlush(w, encoded); err != nil {
		// The message is already stored; only the sidecar block was lost.
		m.logger.Warn("MULTIPLEXER", "Consumer left before ad block was delivered", map[string]interface{}{
			"message_id": frame.MessageID,
			"error":      err.Error(),
		})
		return result, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	return result, nil
}

func (m *Multiplexer) failed(ctx context.Context, text string, finalize Finalizer, cause error) (Result, error) {
	m.logger.Error("MULTIPLEXER", "Generation failed mid-stream", map[string]interface{}{
		"error":          cause.Error(),
		"partial_length": len(text),
	})

	if text != "" {
		if _, err := finalize(ctx, text, false); err != nil {
			m.logger.Error("MULTIPLEXER", "Best-effort persistence of partial answer failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return Result{Text: text, Outcome: OutcomeFailed}, fmt.Errorf("%w: %v", ErrUpstream, cause)
}

func writeAndFlush(w io.Writer, p []byte) error {
	if _, err := w.Write(p); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
