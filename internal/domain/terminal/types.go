package terminal

import (
	"time"

	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

// Defaults applied when Options leave a field empty.
const (
	DefaultShell        = "sh"
	DefaultRows         = 24
	DefaultCols         = 80
	DefaultDisplayLines = 100
	DefaultScrollback   = 1000

	readChunkSize = 1024
)

// State is the lifecycle state of a session
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateClosed  State = "closed"
	StateFailed  State = "failed"
)

// Options configures a new session.
type Options struct {
	// Shell is the executable started on the PTY (default "sh").
	Shell string

	// Args are passed to the shell. Empty by default.
	Args []string

	// Dir is the working directory. Empty inherits the server's.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string

	// Rows and Cols set the initial window size (default 24x80).
	Rows int
	Cols int

	// DisplayLines is the default snapshot window (default 100).
	DisplayLines int

	// Scrollback is the number of complete lines retained (default 1000).
	Scrollback int

	// OnOutput is called from the reader goroutine after each read.
	OnOutput func(n int)

	// OnClose is called once the reader has finished and the shell is
	// reaped, before Done is closed. It must not wait on Done.
	OnClose func(s *Session)
}

// merge fills empty fields of o from base.
func (o Options) merge(base Options) Options {
	if o.Shell == "" {
		o.Shell = base.Shell
	}
	if o.Args == nil {
		o.Args = base.Args
	}
	if o.Dir == "" {
		o.Dir = base.Dir
	}
	if o.Env == nil {
		o.Env = base.Env
	}
	if o.Rows <= 0 {
		o.Rows = base.Rows
	}
	if o.Cols <= 0 {
		o.Cols = base.Cols
	}
	if o.DisplayLines <= 0 {
		o.DisplayLines = base.DisplayLines
	}
	if o.Scrollback <= 0 {
		o.Scrollback = base.Scrollback
	}
	return o
}

// withDefaults fills anything still empty with package defaults.
func (o Options) withDefaults() Options {
	return o.merge(Options{
		Shell:        DefaultShell,
		Rows:         DefaultRows,
		Cols:         DefaultCols,
		DisplayLines: DefaultDisplayLines,
		Scrollback:   DefaultScrollback,
	})
}

// Info is the public representation of a session
type Info struct {
	ID        id.SessionID `json:"id"`
	Shell     string       `json:"shell"`
	Args      []string     `json:"args,omitempty"`
	Dir       string       `json:"dir,omitempty"`
	Rows      int          `json:"rows"`
	Cols      int          `json:"cols"`
	PID       int          `json:"pid"`
	State     State        `json:"state"`
	ExitCode  *int         `json:"exit_code,omitempty"`
	Lines     int          `json:"lines"`
	StartedAt time.Time    `json:"started_at"`
}
