package stream

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"ad-chat-be/internal/pkg/logger"
	"ad-chat-be/pkg/ads/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finalizeCall struct {
	text     string
	complete bool
}

func recordingFinalizer(frame *Payload, err error) (Finalizer, *[]finalizeCall) {
	var calls []finalizeCall
	return func(_ context.Context, text string, complete bool) (*Payload, error) {
		calls = append(calls, finalizeCall{text: text, complete: complete})
		return frame, err
	}, &calls
}

func TestPipeScenarios(t *testing.T) {
	tests := []struct {
		name  string
		frame *Payload
	}{
		{name: "no-ad", frame: nil},
		{name: "out-resp", frame: FrameFor(schedule.ModeOutResp, "m1", "Coffee", roast)},
		{name: "in-resp", frame: FrameFor(schedule.ModeInResp, "m2", "Coffee", roast)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newSliceStream("Hello", ", ", "world")
			finalize, calls := recordingFinalizer(tt.frame, nil)
			var out bytes.Buffer

			res, err := NewMultiplexer(logger.NewNop()).Pipe(context.Background(), &out, src, finalize)
			require.NoError(t, err)

			assert.Equal(t, OutcomeCompleted, res.Outcome)
			assert.Equal(t, "Hello, world", res.Text)
			assert.Equal(t, []finalizeCall{{text: "Hello, world", complete: true}}, *calls)
			assert.True(t, src.closed)

			d := demuxAll(t, out.Bytes(), 5)
			assert.Equal(t, "Hello, world", d.Text())
			assert.Equal(t, tt.frame, d.Selection())
		})
	}
}

func TestPipeAbortedBeforeStartPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finalize, calls := recordingFinalizer(nil, nil)
	src := newSliceStream("never")

	res, err := NewMultiplexer(logger.NewNop()).Pipe(ctx, &bytes.Buffer{}, src, finalize)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Empty(t, *calls)
	assert.True(t, src.closed)
}

func TestPipeConsumerGoneMidStream(t *testing.T) {
	finalize, calls := recordingFinalizer(FrameFor(schedule.ModeOutResp, "m1", "Coffee", roast), nil)
	w := &brokenWriter{okWrites: 1}

	res, err := NewMultiplexer(logger.NewNop()).Pipe(context.Background(), w, newSliceStream("a", "b", "c"), finalize)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Empty(t, *calls)
	assert.Equal(t, "a", string(w.written))
}

func TestPipeRecvErrorAfterCancelIsAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newSliceStream("a", "b")
	src.failAt = 1
	src.failErr = context.Canceled

	finalize, calls := recordingFinalizer(nil, nil)
	w := writerFunc(func(p []byte) (int, error) {
		cancel()
		return len(p), nil
	})

	res, err := NewMultiplexer(logger.NewNop()).Pipe(ctx, w, src, finalize)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Empty(t, *calls)
}

func TestPipeUpstreamFailure(t *testing.T) {
	boom := errors.New("model crashed")

	t.Run("partial text is persisted without a block", func(t *testing.T) {
		src := newSliceStream("partial ", "answer", "never")
		src.failAt = 2
		src.failErr = boom
		finalize, calls := recordingFinalizer(FrameFor(schedule.ModeOutResp, "m1", "Coffee", roast), nil)
		var out bytes.Buffer

		res, err := NewMultiplexer(logger.NewNop()).Pipe(context.Background(), &out, src, finalize)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Nil(t, res.Frame)
		assert.Equal(t, []finalizeCall{{text: "partial answer", complete: false}}, *calls)
		assert.Equal(t, "partial answer", out.String())
	})

	t.Run("nothing produced means nothing persisted", func(t *testing.T) {
		src := newSliceStream()
		src.failAt = 0
		src.failErr = boom
		finalize, calls := recordingFinalizer(nil, nil)

		_, err := NewMultiplexer(logger.NewNop()).Pipe(context.Background(), &bytes.Buffer{}, src, finalize)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Empty(t, *calls)
	})
}

func TestPipePersistenceFailure(t *testing.T) {
	finalize, _ := recordingFinalizer(nil, errors.New("db down"))
	var out bytes.Buffer

	res, err := NewMultiplexer(logger.NewNop()).Pipe(context.Background(), &out, newSliceStream("ok"), finalize)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "ok", out.String())
}

func TestPipeFlushesEveryDelta(t *testing.T) {
	w := &flushCounter{}
	finalize, _ := recordingFinalizer(FrameFor(schedule.ModeOutResp, "m1", "Coffee", roast), nil)

	_, err := NewMultiplexer(logger.NewNop()).Pipe(context.Background(), w, newSliceStream("a", "b"), finalize)
	require.NoError(t, err)
	assert.Equal(t, 3, w.flushes)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (f *flushCounter) Flush() error {
	f.flushes++
	return nil
}
