// ABOUTME: Tests for the sync layer Prometheus collectors
// ABOUTME: Uses testutil to read counter values back out of a private registry

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/para-sync/internal/entity"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ChangeApplied(entity.Tasks, "INSERT")
	m.ChangeApplied(entity.Tasks, "INSERT")
	m.ChangeDropped(entity.Tasks, "duplicate")
	m.ObserveMutation(entity.Projects, "insert", ResultOK, 10*time.Millisecond)
	m.ObserveMutation(entity.Projects, "insert", ResultRejected, time.Millisecond)
	m.ObserveLoad(false, time.Second)
	m.Resubscribed(entity.Areas, true)
	m.FeedOpened()
	m.FeedOpened()
	m.FeedClosed()

	assert.InDelta(t, 2, testutil.ToFloat64(m.changesApplied.WithLabelValues("tasks", "INSERT")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.changesDropped.WithLabelValues("tasks", "duplicate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.mutations.WithLabelValues("projects", "insert", ResultRejected)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.loads.WithLabelValues(ResultError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resubscribes.WithLabelValues("areas", ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.subscribers), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChangeApplied(entity.Tasks, "INSERT")
		m.ChangeDropped(entity.Tasks, "invalid")
		m.ObserveMutation(entity.Tasks, "delete", ResultOK, 0)
		m.ObserveLoad(true, 0)
		m.Resubscribed(entity.Tasks, false)
		m.FeedOpened()
		m.FeedClosed()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ChangeApplied(entity.Goals, "UPDATE")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `para_sync_changes_applied_total{collection="goals",type="UPDATE"} 1`))
}
