package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveAudience("inline", 20*time.Millisecond, 100, 3)
	m.ObserveAudience("stored", time.Second, 50, 0)
	m.ObserveEdit("addRule", "ok")
	m.ObserveEdit("addRule", "ok")
	m.ObserveEdit("updateRule", "invalid")
	m.ObserveTranslation("keyword", "ok")
	m.ObserveRequest("http", "GET /v1/fields", "200", time.Millisecond)

	assert.Equal(t, 150.0, testutil.ToFloat64(m.recordsEvaluated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsUnevaluable))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.edits.WithLabelValues("addRule", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.edits.WithLabelValues("updateRule", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.translations.WithLabelValues("keyword", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.audienceDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "segmenter_editor_operations_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAudience("inline", time.Second, 1, 0)
		m.ObserveEdit("addRule", "ok")
		m.ObserveTranslation("openai", "error")
		m.ObserveRequest("grpc", "/x", "OK", time.Second)
	})
}

func TestMetrics_Independent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ObserveEdit("removeNode", "ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.edits.WithLabelValues("removeNode", "ok")))
}
