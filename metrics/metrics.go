// Package metrics exports build, detection and migration counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "afilmory"

// Detection outcomes.
const (
	DetectionMotionPhoto = "motion_photo"
	DetectionLivePhoto   = "live_photo"
	DetectionNone        = "none"
)

// Migration outcomes.
const (
	MigrationCurrent  = "current"
	MigrationMigrated = "migrated"
	MigrationForced   = "forced"
	MigrationFailed   = "failed"
)

// Build photo results.
const (
	PhotoProcessed = "processed"
	PhotoReused    = "reused"
	PhotoFailed    = "failed"
	PhotoRemoved   = "removed"
)

// Recorder holds the collectors. A nil *Recorder discards every observation.
type Recorder struct {
	detections     *prometheus.CounterVec
	migrations     *prometheus.CounterVec
	migrationSteps *prometheus.CounterVec
	buildPhotos    *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	cacheRequests  *prometheus.CounterVec
}

var (
	defaultRecorder     *Recorder
	defaultRecorderOnce sync.Once
)

// Default returns the recorder registered with the default Prometheus registry.
func Default() *Recorder {
	defaultRecorderOnce.Do(func() {
		defaultRecorder = NewRecorder(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// NewRecorder registers a fresh set of collectors with reg. Tests pass a
// dedicated prometheus.NewRegistry().
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		detections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "photos_total",
			Help:      "Photos inspected for motion photo payloads, by outcome",
		}, []string{"outcome"}),
		migrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manifest",
			Name:      "migrations_total",
			Help:      "Manifest documents passed through the migrator, by outcome",
		}, []string{"outcome"}),
		migrationSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manifest",
			Name:      "migration_steps_total",
			Help:      "Executed migration steps",
		}, []string{"from", "to"}),
		buildPhotos: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "builder",
			Name:      "photos_total",
			Help:      "Photos handled by manifest builds, by result",
		}, []string{"result"}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "builder",
			Name:      "build_duration_seconds",
			Help:      "Wall time of complete manifest builds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "object_cache_requests_total",
			Help:      "Original object cache lookups, by result",
		}, []string{"result"}),
	}
}

func (r *Recorder) RecordDetection(outcome string) {
	if r == nil {
		return
	}
	r.detections.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordMigration(outcome string) {
	if r == nil {
		return
	}
	r.migrations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordMigrationStep(from, to string) {
	if r == nil {
		return
	}
	r.migrationSteps.WithLabelValues(from, to).Inc()
}

func (r *Recorder) RecordPhoto(result string) {
	if r == nil {
		return
	}
	r.buildPhotos.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveBuild(duration time.Duration) {
	if r == nil {
		return
	}
	r.buildDuration.Observe(duration.Seconds())
}

// RecordCacheLookup counts an object cache hit or miss.
func (r *Recorder) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheRequests.WithLabelValues(result).Inc()
}
