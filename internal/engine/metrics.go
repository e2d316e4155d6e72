package engine

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes external check activity: which checker ran, how
// it resolved (cache_hit, valid, invalid or fail_open) and how long the
// network round trip took. Cache hits carry a zero duration.
type MetricsRecorder interface {
	ObserveExternalCheck(kind, outcome string, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) ObserveExternalCheck(string, string, time.Duration) {}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate check counters and timing via
// expvar, for deployments that prefer process-local metrics without external
// dependencies.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	outcomes  map[string]map[string]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Outcomes    map[string]map[string]int64 `json:"outcomes_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes
// it under the supplied name. When name is empty a unique one is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("engine_check_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		outcomes:  make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for kind, total := range r.durations {
		durations[kind] = total
	}
	outcomes := make(map[string]map[string]int64, len(r.outcomes))
	for kind, counts := range r.outcomes {
		cpy := make(map[string]int64, len(counts))
		for outcome, count := range counts {
			cpy[outcome] = count
		}
		outcomes[kind] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Outcomes:    outcomes,
		RecordedAt:  time.Now().UTC(),
	}
}

// ObserveExternalCheck records one check resolution.
func (r *ExpvarMetricsRecorder) ObserveExternalCheck(kind, outcome string, duration time.Duration) {
	if kind == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	r.durations[kind] += ms
	if _, ok := r.outcomes[kind]; !ok {
		r.outcomes[kind] = make(map[string]int64, 4)
	}
	r.outcomes[kind][outcome]++
	r.mu.Unlock()
}

// PrometheusMetricsRecorder exposes check counters and latency through a
// prometheus registry.
type PrometheusMetricsRecorder struct {
	checks   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with the supplied registerer (nil uses the default registerer).
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemcore",
			Subsystem: "engine",
			Name:      "external_checks_total",
			Help:      "External check resolutions by checker kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "itemcore",
			Subsystem: "engine",
			Name:      "external_check_duration_seconds",
			Help:      "Network round-trip duration of external checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if err := reg.Register(rec.checks); err != nil {
		return nil, fmt.Errorf("register check counter: %w", err)
	}
	if err := reg.Register(rec.duration); err != nil {
		return nil, fmt.Errorf("register check duration histogram: %w", err)
	}
	return rec, nil
}

// ObserveExternalCheck records one check resolution.
func (r *PrometheusMetricsRecorder) ObserveExternalCheck(kind, outcome string, duration time.Duration) {
	r.checks.WithLabelValues(kind, outcome).Inc()
	if outcome != outcomeCacheHit {
		r.duration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}
