package engagement

import (
	"context"
	"sync"
	"time"

	"ad-chat-be/internal/pkg/logger"
)

const (
	DefaultFlushInterval = 2 * time.Second
	defaultSubmitTimeout = 10 * time.Second
)

type BufferOption func(*Buffer)

func WithFlushInterval(d time.Duration) BufferOption {
	return func(b *Buffer) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithSubmitTimeout(d time.Duration) BufferOption {
	return func(b *Buffer) {
		if d > 0 {
			b.submitTimeout = d
		}
	}
}

// Buffer queues engagement events in memory and delivers them in batches:
// periodically, and immediately on FlushNow, OnHidden and Close.
//
// Delivery is at-least-once. A failed batch goes back to the front of the queue
// ahead of anything enqueued meanwhile, so it is retried whole on the next flush.
type Buffer struct {
	sink          Sink
	logger        logger.ILogger
	interval      time.Duration
	submitTimeout time.Duration

	mu     sync.Mutex
	queue  []Event
	closed bool

	// flushMu keeps at most one batch in flight.
	flushMu sync.Mutex

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewBuffer starts the periodic flush loop. Close must be called to stop it.
func NewBuffer(sink Sink, log logger.ILogger, opts ...BufferOption) *Buffer {
	b := &Buffer{
		sink:          sink,
		logger:        log,
		interval:      DefaultFlushInterval,
		submitTimeout: defaultSubmitTimeout,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Buffer) Enqueue(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Warn("ENGAGEMENT", "Event dropped after buffer close", map[string]interface{}{
			"event_type": string(e.EventType),
			"message_id": e.MessageID,
		})
		return
	}
	b.queue = append(b.queue, e)
}

// Len is the number of undelivered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// FlushNow drains the queue into one batch. On failure the batch is re-queued
// and the delivery error returned; callers may ignore it.
func (b *Buffer) FlushNow(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	batch := b.drain()
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.submitTimeout)
	defer cancel()

	if err := b.sink.SubmitBatch(ctx, batch); err != nil {
		b.requeue(batch)
		b.logger.Warn("ENGAGEMENT", "Event batch delivery failed, will retry", map[string]interface{}{
			"batch_size": len(batch),
			"error":      err.Error(),
		})
		return err
	}

	b.logger.Debug("ENGAGEMENT", "Event batch delivered", map[string]interface{}{
		"batch_size": len(batch),
	})
	return nil
}

// OnHidden is the emergency flush for when the host view is hidden.
func (b *Buffer) OnHidden() {
	_ = b.FlushNow(context.Background())
}

// Close stops the flush loop and makes a final delivery attempt. Events still
// undelivered after it stay in the queue.
func (b *Buffer) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.stop)
	})
	<-b.done

	err := b.FlushNow(ctx)

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return err
}

func (b *Buffer) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			_ = b.FlushNow(context.Background())
		}
	}
}

func (b *Buffer) drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.queue
	b.queue = nil
	return batch
}

func (b *Buffer) requeue(batch []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]Event, 0, len(batch)+len(b.queue))
	merged = append(merged, batch...)
	merged = append(merged, b.queue...)
	b.queue = merged
}
