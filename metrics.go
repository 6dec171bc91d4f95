package oldgen

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors a GC reports through,
// grounded on the prometheus wiring in ClusterCockpit-cc-backend and
// kopia-kopia (SPEC_FULL.md §2).
type Metrics struct {
	Cycles          prometheus.Counter
	BytesMarked     prometheus.Counter
	SegmentsFree    prometheus.Counter
	SegmentsPartial prometheus.Counter
	SegmentsFilled  prometheus.Counter
	FixpointRounds  prometheus.Histogram
	// MarkCycleSeconds is the supplemented-from-original_source metric
	// (SPEC_FULL.md §4.8): GHC's NonMoving.c tracks per-cycle timing for
	// diagnostics; the distilled spec dropped this, so it is reintroduced
	// here, timed by runCycle around the concurrent mark phase through
	// the final flush.
	MarkCycleSeconds prometheus.Histogram
}

// NewMetrics constructs a Metrics with fresh (unregistered) collectors.
// Callers that want them exposed on /metrics should register them with
// a prometheus.Registerer; Init does not do this automatically so tests
// can run many GCs without collector-name collisions.
func NewMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oldgen_cycles_total",
			Help: "Number of completed major collection cycles.",
		}),
		BytesMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oldgen_bytes_marked_total",
			Help: "Cumulative bytes found live by the mark engine.",
		}),
		SegmentsFree: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oldgen_segments_free_total",
			Help: "Segments reclassified FREE during sweep.",
		}),
		SegmentsPartial: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oldgen_segments_partial_total",
			Help: "Segments reclassified PARTIAL during sweep.",
		}),
		SegmentsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oldgen_segments_filled_total",
			Help: "Segments reclassified FILLED during sweep.",
		}),
		FixpointRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oldgen_weak_fixpoint_rounds",
			Help:    "Rounds taken by the weak/thread fixpoint loop to stabilize.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		MarkCycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oldgen_mark_cycle_seconds",
			Help:    "Wall-clock duration of the concurrent mark phase.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers every collector with r. Safe to call once.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Cycles, m.BytesMarked, m.SegmentsFree, m.SegmentsPartial,
		m.SegmentsFilled, m.FixpointRounds, m.MarkCycleSeconds,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
