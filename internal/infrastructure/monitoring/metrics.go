package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "synapse"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Terminal metrics
	TerminalsActive     prometheus.Gauge
	TerminalsOpened     prometheus.Counter
	TerminalsClosed     prometheus.Counter
	TerminalOpenErrors  *prometheus.CounterVec
	TerminalOutputBytes prometheus.Counter

	// Agent metrics
	AgentsRegistered  prometheus.Gauge
	AgentsActive      prometheus.Gauge
	AgentTransitions  *prometheus.CounterVec
	AgentsReaped      prometheus.Counter
	AgentSpawnLatency prometheus.Histogram

	// Host metrics
	HostCPUPercent prometheus.Gauge
	HostMemoryGB   prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveTerminals   int64   `json:"active_terminals"`
	ActiveAgents      int64   `json:"active_agents"`
	ActiveConnections int64   `json:"active_connections"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics registers all collectors with reg. A nil reg uses the
// process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Terminal metrics
		TerminalsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "terminals_active",
				Help:      "Number of open terminal sessions",
			},
		),
		TerminalsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "terminals_opened_total",
				Help:      "Total number of terminal sessions opened",
			},
		),
		TerminalsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "terminals_closed_total",
				Help:      "Total number of terminal sessions closed",
			},
		),
		TerminalOpenErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "terminal_open_errors_total",
				Help:      "Total number of failed terminal opens",
			},
			[]string{"reason"},
		),
		TerminalOutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "terminal_output_bytes_total",
				Help:      "Total bytes read from terminal sessions",
			},
		),

		// Agent metrics
		AgentsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agents_registered",
				Help:      "Number of registered agents",
			},
		),
		AgentsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agents_active",
				Help:      "Number of agents in the running state",
			},
		),
		AgentTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_transitions_total",
				Help:      "Total number of agent status transitions",
			},
			[]string{"status"},
		),
		AgentsReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agents_reaped_total",
				Help:      "Total number of agents whose process exited on its own",
			},
		),
		AgentSpawnLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_spawn_duration_seconds",
				Help:      "Time taken to start an agent process",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		// Host metrics
		HostCPUPercent: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "host_cpu_percent",
				Help:      "Host-wide CPU usage in percent",
			},
		),
		HostMemoryGB: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "host_memory_used_gigabytes",
				Help:      "Host memory in use in gigabytes",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// TerminalOpened records a successful session open
func (m *Metrics) TerminalOpened() {
	m.TerminalsOpened.Inc()
	m.TerminalsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveTerminals++
	m.mu.Unlock()
}

// TerminalClosed records a session that finished tearing down
func (m *Metrics) TerminalClosed() {
	m.TerminalsClosed.Inc()
	m.TerminalsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveTerminals--
	m.mu.Unlock()
}

// TerminalOpenFailed records a failed open
func (m *Metrics) TerminalOpenFailed(reason string) {
	m.TerminalOpenErrors.WithLabelValues(reason).Inc()
}

// AddTerminalOutput counts bytes read from a PTY
func (m *Metrics) AddTerminalOutput(n int) {
	m.TerminalOutputBytes.Add(float64(n))
}

// SetAgentCounts sets the registered and running agent gauges
func (m *Metrics) SetAgentCounts(registered, active int) {
	m.AgentsRegistered.Set(float64(registered))
	m.AgentsActive.Set(float64(active))
	m.mu.Lock()
	m.snapshot.ActiveAgents = int64(active)
	m.mu.Unlock()
}

// RecordAgentTransition counts an agent entering status
func (m *Metrics) RecordAgentTransition(status string) {
	m.AgentTransitions.WithLabelValues(status).Inc()
}

// RecordAgentSpawn observes how long a process start took
func (m *Metrics) RecordAgentSpawn(d time.Duration) {
	m.AgentSpawnLatency.Observe(d.Seconds())
}

// AddAgentsReaped counts agents whose process exited on its own
func (m *Metrics) AddAgentsReaped(n int) {
	m.AgentsReaped.Add(float64(n))
}

// SetHostUsage records the latest telemetry sample
func (m *Metrics) SetHostUsage(cpuPercent, memoryGB float64) {
	m.HostCPUPercent.Set(cpuPercent)
	m.HostMemoryGB.Set(memoryGB)
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.TotalRequests > 0 {
		s.AvgLatencyMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
