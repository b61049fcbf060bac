package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VisibilityThreshold is the visible fraction at which an impression counts.
const VisibilityThreshold = 0.5

// Queue is what a Tracker needs from the buffer.
type Queue interface {
	Enqueue(e Event)
	FlushNow(ctx context.Context) error
}

// AdRef identifies the rendered ad a Tracker observes.
type AdRef struct {
	SessionID string
	MessageID string
	AdMode    string
}

type TrackerOption func(*Tracker)

// WithClock replaces time.Now, for hover durations and timestamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithIDGenerator(newID func() string) TrackerOption {
	return func(t *Tracker) { t.newID = newID }
}

// Tracker turns UI signals on one ad element into engagement events.
// Impression and first_interaction fire at most once per Tracker.
type Tracker struct {
	ref   AdRef
	queue Queue
	now   func() time.Time
	newID func() string

	mu                    sync.Mutex
	firedImpression       bool
	firedFirstInteraction bool
	interactionCount      int
	hoverStart            time.Time
	hovering              bool
}

func NewTracker(ref AdRef, queue Queue, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		ref:   ref,
		queue: queue,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ObserveVisibility reports the element's currently visible fraction in [0,1].
func (t *Tracker) ObserveVisibility(ratio float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.firedImpression || ratio < VisibilityThreshold {
		return
	}
	t.firedImpression = true
	t.emit(EventImpression, nil, nil)
}

func (t *Tracker) PointerEnter() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hoverStart = t.now()
	t.hovering = true
	t.emit(EventMouseoverStart, nil, nil)
	t.firstInteraction()
}

// PointerLeave emits mouseover_end with the hover duration (0 when no enter was seen).
func (t *Tracker) PointerLeave() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var duration int64
	if t.hovering {
		duration = t.now().Sub(t.hoverStart).Milliseconds()
	}
	t.hovering = false
	t.interactionCount++

	t.emit(EventMouseoverEnd, &duration, map[string]interface{}{
		"interactionCount": t.interactionCount,
	})
}

func (t *Tracker) Click(targetTag string, isLink bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.emit(EventClick, nil, map[string]interface{}{
		"targetTag": targetTag,
		"isCtaLink": isLink,
	})
	t.firstInteraction()
}

// Dismiss records the dismissal and flushes right away.
func (t *Tracker) Dismiss(ctx context.Context) {
	t.mu.Lock()
	t.emit(EventDismiss, nil, nil)
	t.mu.Unlock()

	_ = t.queue.FlushNow(ctx)
}

// Teardown flushes whatever the element produced before it goes away.
func (t *Tracker) Teardown(ctx context.Context) {
	_ = t.queue.FlushNow(ctx)
}

func (t *Tracker) firstInteraction() {
	if t.firedFirstInteraction {
		return
	}
	t.firedFirstInteraction = true
	t.emit(EventFirstInteraction, nil, nil)
}

// emit requires t.mu. Events for an unidentified ad are not recorded.
func (t *Tracker) emit(kind EventType, durationMs *int64, metadata map[string]interface{}) {
	if t.ref.SessionID == "" || t.ref.MessageID == "" {
		return
	}
	t.queue.Enqueue(Event{
		EventID:    t.newID(),
		SessionID:  t.ref.SessionID,
		MessageID:  t.ref.MessageID,
		AdMode:     t.ref.AdMode,
		EventType:  kind,
		DurationMs: durationMs,
		Metadata:   metadata,
		OccurredAt: t.now().UTC(),
	})
}
