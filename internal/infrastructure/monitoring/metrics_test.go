package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalLifecycleMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.TerminalOpened()
	m.TerminalOpened()
	m.TerminalClosed()
	m.TerminalOpenFailed("spawn")
	m.AddTerminalOutput(1024)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TerminalsOpened))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TerminalsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TerminalOpenErrors.WithLabelValues("spawn")))
	assert.Equal(t, float64(1024), testutil.ToFloat64(m.TerminalOutputBytes))
	assert.Equal(t, int64(1), m.Snapshot().ActiveTerminals)
}

func TestAgentMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetAgentCounts(4, 2)
	m.RecordAgentTransition("running")
	m.AddAgentsReaped(3)
	m.RecordAgentSpawn(5 * time.Millisecond)

	assert.Equal(t, float64(4), testutil.ToFloat64(m.AgentsRegistered))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AgentsActive))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.AgentsReaped))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AgentSpawnLatency))
	assert.Equal(t, int64(2), m.Snapshot().ActiveAgents)
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on one registry panics; separate ones must not.
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/terminals/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/terminals/a", "/terminals/b", "/missing"} {
		w := httptest.NewRecorder()
		req, err := http.NewRequest(http.MethodGet, path, nil)
		require.NoError(t, err)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/terminals/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}
