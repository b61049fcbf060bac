package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ad_chat"

var (
	// turnsTotal counts finished chat turns.
	// Labels: ad_mode, outcome (completed, aborted, upstream_failed)
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "turns_total",
		Help:      "Chat turns by ad mode and outcome",
	}, []string{"ad_mode", "outcome"})

	// turnDuration measures a turn from first byte to persistence.
	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "turn_duration_seconds",
		Help:      "Chat turn streaming duration in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"ad_mode"})

	// activeStreams is the number of responses currently streaming.
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "active_streams",
		Help:      "Chat responses currently streaming",
	})

	// framesTotal counts metadata blocks appended to responses.
	// Labels: kind (ad_data, ad_meta)
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ads",
		Name:      "frames_total",
		Help:      "Ad metadata blocks emitted by kind",
	}, []string{"kind"})

	// categoryFallbacks counts ad selections that did not come from a clean match.
	// Labels: reason (unknown_topic, no_product)
	categoryFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ads",
		Name:      "category_fallbacks_total",
		Help:      "Ad category selections that fell back",
	}, []string{"reason"})

	// adEventsTotal counts ingested engagement events.
	// Labels: event_type
	adEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ads",
		Name:      "events_total",
		Help:      "Ingested ad engagement events by type",
	}, []string{"event_type"})
)

func RecordTurn(adMode, outcome string, durationSec float64) {
	turnsTotal.WithLabelValues(adMode, outcome).Inc()
	turnDuration.WithLabelValues(adMode).Observe(durationSec)
}

func StreamStarted() {
	activeStreams.Inc()
}

func StreamFinished() {
	activeStreams.Dec()
}

func RecordFrame(kind string) {
	framesTotal.WithLabelValues(kind).Inc()
}

func RecordCategoryFallback(reason string) {
	categoryFallbacks.WithLabelValues(reason).Inc()
}

func RecordAdEvents(eventType string, n int) {
	adEventsTotal.WithLabelValues(eventType).Add(float64(n))
}
