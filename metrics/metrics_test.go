package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProm_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm("romrando", reg)

	p.IncUploads("stored")
	p.IncUploads("stored")
	p.IncUploads("mismatch")
	p.IncIdentified("FRLG")
	p.IncRandomizations("FRLG", "ok")
	p.ObserveEngineDuration("FRLG", 1.5)
	p.IncDownloads("served")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.uploads.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.uploads.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.identified.WithLabelValues("FRLG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.randomizations.WithLabelValues("FRLG", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.downloads.WithLabelValues("served")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.engineDuration))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm("romrando", reg)
	p.IncUploads("duplicate")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `romrando_uploads_total{result="duplicate"} 1`)
}

func TestNoop(t *testing.T) {
	var m Metrics = Noop{}
	m.IncUploads("stored")
	m.IncRandomizations("GSC", "invalid_preset")
}
