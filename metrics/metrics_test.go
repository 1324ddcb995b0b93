package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RecordMigration(MigrationForced)
	r.RecordMigration(MigrationForced)
	r.RecordDetection(DetectionMotionPhoto)
	r.RecordPhoto(PhotoReused)
	r.RecordCacheLookup(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.migrations.WithLabelValues(MigrationForced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.detections.WithLabelValues(DetectionMotionPhoto)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.buildPhotos.WithLabelValues(PhotoReused)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("hit")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordMigration(MigrationMigrated)
		r.RecordDetection(DetectionNone)
		r.RecordPhoto(PhotoFailed)
		r.ObserveBuild(0)
	})
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg).RecordPhoto(PhotoProcessed)

	srv := NewWithGatherer("test", "127.0.0.1:0", reg)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `afilmory_builder_photos_total{result="processed"} 1`)
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New("test", "")
	assert.Error(t, err)
}
