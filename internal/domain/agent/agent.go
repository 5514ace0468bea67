package agent

import (
	"slices"
	"sync"
	"time"

	"github.com/GriffinCanCode/synapse/internal/shared/id"
	"github.com/GriffinCanCode/synapse/internal/shared/scrollback"
)

// Status is the lifecycle status of an agent
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Busy reports whether the status blocks a new start
func (s Status) Busy() bool {
	return s == StatusRunning || s == StatusStarting || s == StatusStopping
}

// Agent is a point-in-time copy of a supervised process record
type Agent struct {
	ID        id.AgentID `json:"id"`
	Name      string     `json:"name"`
	Command   string     `json:"command"`
	Args      []string   `json:"args"`
	Status    Status     `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	PID       *int       `json:"pid,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Restarts  int        `json:"restarts"`
}

// Consistent reports whether a pid is held exactly when the agent runs
func (a Agent) Consistent() bool {
	return (a.PID != nil) == (a.Status == StatusRunning)
}

// record is the supervisor's mutable state for one agent. opMu serializes
// start, stop, reset and remove on the agent; mu guards the fields and is
// only held briefly so queries never wait on a spawn.
type record struct {
	opMu    sync.Mutex
	mu      sync.RWMutex
	agent   Agent // Protected by mu
	removed bool  // Protected by mu
	started bool  // Protected by mu
	output  *scrollback.Buffer
}

func (r *record) snapshot() Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agent.clone()
}

func (r *record) status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agent.Status
}

func (a Agent) clone() Agent {
	c := a
	c.Args = slices.Clone(a.Args)
	if a.PID != nil {
		pid := *a.PID
		c.PID = &pid
	}
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	if a.ExitCode != nil {
		code := *a.ExitCode
		c.ExitCode = &code
	}
	return c
}
