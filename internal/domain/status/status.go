package status

import (
	"context"

	"go.uber.org/zap"
)

// Snapshot is the summary shown by the status display
type Snapshot struct {
	TerminalCount    int     `json:"terminal_count"`
	ActiveAgentCount int     `json:"active_agent_count"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryGB         float64 `json:"memory_gb"`
}

// Usage is a host resource reading
type Usage struct {
	CPUPercent float64
	MemoryGB   float64
}

// SessionCounter reports how many terminal sessions are shown
type SessionCounter interface {
	Len() int
}

// AgentCounter reports how many agents are running
type AgentCounter interface {
	ActiveCount() int
}

// Telemetry supplies host usage. Values are carried, not computed here.
type Telemetry interface {
	Usage(ctx context.Context) (Usage, error)
}

// Collector assembles snapshots from its sources
type Collector struct {
	sessions  SessionCounter
	agents    AgentCounter
	telemetry Telemetry
	logger    *zap.Logger
}

// NewCollector creates a collector. telemetry may be nil.
func NewCollector(sessions SessionCounter, agents AgentCounter, telemetry Telemetry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		sessions:  sessions,
		agents:    agents,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Snapshot reads the current counts and telemetry. A telemetry failure
// leaves the usage fields at zero.
func (c *Collector) Snapshot(ctx context.Context) Snapshot {
	var snap Snapshot
	if c.sessions != nil {
		snap.TerminalCount = c.sessions.Len()
	}
	if c.agents != nil {
		snap.ActiveAgentCount = c.agents.ActiveCount()
	}

	if c.telemetry != nil {
		usage, err := c.telemetry.Usage(ctx)
		if err != nil {
			c.logger.Debug("Telemetry unavailable", zap.Error(err))
			return snap
		}
		snap.CPUPercent = usage.CPUPercent
		snap.MemoryGB = usage.MemoryGB
	}

	return snap
}
