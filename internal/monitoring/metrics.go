package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PlaybackMetrics are the counters a playback engine updates. Label values
// are bounded: event kinds and entity type codes only, never entity IDs.
type PlaybackMetrics struct {
	Spawns       prometheus.Counter
	Updates      prometheus.Counter
	Despawns     prometheus.Counter
	ConfigErrors *prometheus.CounterVec
	Active       prometheus.Gauge
	Boundaries   prometheus.Counter
	TickDuration prometheus.Histogram
}

// NewPlaybackMetrics registers the playback metrics with reg. A nil reg
// registers nothing, giving free-standing collectors for tests.
func NewPlaybackMetrics(reg prometheus.Registerer) *PlaybackMetrics {
	f := promauto.With(reg)
	return &PlaybackMetrics{
		Spawns: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_entity_spawns_total",
			Help: "Entities spawned by the playback engine",
		}),
		Updates: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_entity_updates_total",
			Help: "Pose updates emitted by the playback engine",
		}),
		Despawns: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_entity_despawns_total",
			Help: "Entities despawned by the playback engine",
		}),
		ConfigErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_spawn_config_errors_total",
			Help: "Spawns skipped because the entity type has no asset",
		}, []string{"type"}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Name: "replay_active_entities",
			Help: "Entities currently live in the playback engine",
		}),
		Boundaries: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_frame_boundaries_total",
			Help: "Ticks that crossed a frame bucket boundary",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_tick_duration_seconds",
			Help:    "Time spent in one playback tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),
	}
}

// ObserveTick records the duration of a tick that started at start.
func (m *PlaybackMetrics) ObserveTick(start time.Time) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(time.Since(start).Seconds())
}
