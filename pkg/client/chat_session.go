package client

import (
	"context"
	"errors"
	"io"
	"sync"

	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/pkg/stream"
)

// FailureText replaces the assistant message when a turn cannot be read.
const FailureText = "Sorry, something went wrong. Please try again."

// ErrTurnInFlight is returned by Send while another turn of the session is streaming.
var ErrTurnInFlight = errors.New("a turn is already streaming")

// Snapshot is the assistant message as known after the latest chunk.
type Snapshot struct {
	DisplayText string
	AdMode      string
	AdSelection *stream.Payload
	Streaming   bool
	Stopped     bool
	Failed      bool
}

// ShowSponsoredCard reports whether a card should be rendered. ad_meta
// selections are tracked but never shown.
func (s Snapshot) ShowSponsoredCard() bool {
	return s.AdSelection.Displayed()
}

type SessionOption func(*ChatSession)

// WithDecoder sets the factory for the transport decoder used per turn.
func WithDecoder(newDecoder func() stream.DeltaDecoder) SessionOption {
	return func(s *ChatSession) { s.newDecoder = newDecoder }
}

// WithSnapshots registers a callback invoked after every chunk and once at the end.
func WithSnapshots(fn func(Snapshot)) SessionOption {
	return func(s *ChatSession) { s.onSnapshot = fn }
}

func WithReadBufferSize(n int) SessionOption {
	return func(s *ChatSession) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// ChatSession runs turns of one conversation, one at a time.
type ChatSession struct {
	client         *Client
	conversationID string
	logger         logger.ILogger
	newDecoder     func() stream.DeltaDecoder
	onSnapshot     func(Snapshot)
	bufSize        int

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewChatSession(c *Client, conversationID string, log logger.ILogger, opts ...SessionOption) *ChatSession {
	s := &ChatSession{
		client:         c,
		conversationID: conversationID,
		logger:         log,
		newDecoder:     func() stream.DeltaDecoder { return stream.RawText{} },
		onSnapshot:     func(Snapshot) {},
		bufSize:        4096,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send runs one turn to completion and returns the final snapshot. A Stop during
// the turn yields a Stopped snapshot and a nil error. Transport failures yield a
// Failed snapshot carrying FailureText together with the error.
func (s *ChatSession) Send(ctx context.Context, message string) (Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return Snapshot{}, ErrTurnInFlight
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	turn, err := s.client.SendTurn(ctx, s.conversationID, message)
	if err != nil {
		if ctx.Err() != nil {
			return s.publish(Snapshot{Stopped: true}), nil
		}
		return s.fail("", err)
	}
	defer turn.Body.Close()

	demux := stream.NewDemuxer(s.newDecoder(), s.logger)
	buf := make([]byte, s.bufSize)
	for {
		n, readErr := turn.Body.Read(buf)
		if n > 0 {
			_, _ = demux.Write(buf[:n])
			s.publish(Snapshot{
				DisplayText: demux.Text(),
				AdMode:      turn.AdMode,
				AdSelection: demux.Selection(),
				Streaming:   true,
			})
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				// Stopped: keep what arrived, skip the final block pass.
				return s.publish(Snapshot{
					DisplayText: demux.Text(),
					AdMode:      turn.AdMode,
					AdSelection: demux.Selection(),
					Stopped:     true,
				}), nil
			}
			return s.fail(turn.AdMode, readErr)
		}
	}

	demux.Finish()
	return s.publish(Snapshot{
		DisplayText: demux.Text(),
		AdMode:      turn.AdMode,
		AdSelection: demux.Selection(),
	}), nil
}

// Stop aborts the turn in flight, if any. It does not wait for the server.
func (s *ChatSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *ChatSession) fail(mode string, err error) (Snapshot, error) {
	s.logger.Error("CHAT_CLIENT", "Chat turn failed", map[string]interface{}{
		"conversation_id": s.conversationID,
		"error":           err.Error(),
	})
	return s.publish(Snapshot{DisplayText: FailureText, AdMode: mode, Failed: true}), err
}

func (s *ChatSession) publish(snap Snapshot) Snapshot {
	s.onSnapshot(snap)
	return snap
}
