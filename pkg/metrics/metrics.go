// Package metrics exposes Prometheus collectors for the streaming engine.
//
// Every method is safe on a nil *Metrics, so the engine runs unchanged
// when metrics are disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "sinn7"

// Metrics contains all Prometheus metrics for the streaming engine.
type Metrics struct {
	// Dispatch loop metrics
	Ticks          prometheus.Counter
	SkippedTicks   prometheus.Counter
	PeriodsElapsed prometheus.Counter

	// Transfer metrics
	Submitted      prometheus.Counter
	Completed      *prometheus.CounterVec
	SubmitFailures prometheus.Counter
	InFlight       prometheus.Gauge

	// Stream lifecycle metrics
	StreamState   prometheus.Gauge
	StreamStarts  prometheus.Counter
	StartLatency  prometheus.Histogram
	Panics        prometheus.Counter
	ForcedReclaim prometheus.Counter

	// Player metrics
	Underruns prometheus.Counter
}

// New creates and registers all metrics on reg. A nil reg registers on
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_ticks_total",
			Help:      "Total number of dispatch loop ticks",
		}),
		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_skipped_ticks_total",
			Help:      "Ticks skipped because every transfer slot was busy",
		}),
		PeriodsElapsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "periods_elapsed_total",
			Help:      "Total number of period boundaries reported to the host",
		}),
		Submitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transfers_submitted_total",
			Help:      "Total number of bulk transfers submitted",
		}),
		Completed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transfers_completed_total",
			Help:      "Total number of bulk transfer completions by status",
		}, []string{"status"}),
		SubmitFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transfer_submit_failures_total",
			Help:      "Total number of rejected bulk transfer submissions",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "transfers_in_flight",
			Help:      "Current number of transfer slots in flight",
		}),
		StreamState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stream_state",
			Help:      "Stream state (0=disabled 1=starting 2=running 3=stopping)",
		}),
		StreamStarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stream_starts_total",
			Help:      "Total number of streams that reached running",
		}),
		StartLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stream_start_seconds",
			Help:      "Time from priming to the first acknowledged transfer",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stream_panics_total",
			Help:      "Total number of times the stream was marked unavailable",
		}),
		ForcedReclaim: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transfers_forced_reclaim_total",
			Help:      "Transfer slots reclaimed after cancellation timed out",
		}),
		Underruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "player_underruns_total",
			Help:      "Total number of host buffer underruns",
		}),
	}
}

// Tick records one dispatch tick.
func (m *Metrics) Tick() {
	if m != nil {
		m.Ticks.Inc()
	}
}

// SkippedTick records a tick with no idle slot.
func (m *Metrics) SkippedTick() {
	if m != nil {
		m.SkippedTicks.Inc()
	}
}

// PeriodElapsed records a period boundary.
func (m *Metrics) PeriodElapsed() {
	if m != nil {
		m.PeriodsElapsed.Inc()
	}
}

// TransferSubmitted records a submission and the resulting in-flight count.
func (m *Metrics) TransferSubmitted(inFlight int) {
	if m != nil {
		m.Submitted.Inc()
		m.InFlight.Set(float64(inFlight))
	}
}

// TransferCompleted records a completion status and the in-flight count.
func (m *Metrics) TransferCompleted(status string, inFlight int) {
	if m != nil {
		m.Completed.WithLabelValues(status).Inc()
		m.InFlight.Set(float64(inFlight))
	}
}

// SubmitFailed records a rejected submission.
func (m *Metrics) SubmitFailed() {
	if m != nil {
		m.SubmitFailures.Inc()
	}
}

// SetState records the stream state.
func (m *Metrics) SetState(state int) {
	if m != nil {
		m.StreamState.Set(float64(state))
	}
}

// StreamStarted records a successful start.
func (m *Metrics) StreamStarted(latency time.Duration) {
	if m != nil {
		m.StreamStarts.Inc()
		m.StartLatency.Observe(latency.Seconds())
	}
}

// Panic records the stream being marked unavailable.
func (m *Metrics) Panic() {
	if m != nil {
		m.Panics.Inc()
	}
}

// Reclaimed records n force-reclaimed slots.
func (m *Metrics) Reclaimed(n int) {
	if m != nil {
		m.ForcedReclaim.Add(float64(n))
	}
}

// Underrun records a host buffer underrun.
func (m *Metrics) Underrun() {
	if m != nil {
		m.Underruns.Inc()
	}
}
