package terminal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

// Manager owns the set of open terminal sessions
type Manager struct {
	sessions sync.Map // map[id.SessionID]*Session
	defaults Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewManager creates a session manager. Fields left empty in defaults fall
// back to the package defaults.
func NewManager(defaults Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		defaults: defaults.withDefaults(),
		logger:   logger,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Open starts a new session. Closed sessions remove themselves from the
// manager once their shell has been reaped.
func (m *Manager) Open(ctx context.Context, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts = opts.merge(m.defaults)

	userOutput, userClose := opts.OnOutput, opts.OnClose
	opts.OnOutput = func(n int) {
		if m.metrics != nil {
			m.metrics.AddTerminalOutput(n)
		}
		if userOutput != nil {
			userOutput(n)
		}
	}
	opts.OnClose = func(s *Session) {
		m.sessions.CompareAndDelete(s.ID(), s)
		if m.metrics != nil {
			m.metrics.TerminalClosed()
		}
		if userClose != nil {
			userClose(s)
		}
	}

	session, err := Open(opts, m.logger)
	if err != nil {
		if m.metrics != nil {
			reason := "spawn"
			if errors.Is(err, ErrPtyAllocation) {
				reason = "pty"
			}
			m.metrics.TerminalOpenFailed(reason)
		}
		m.logger.Warn("Failed to open terminal session",
			zap.String("shell", opts.Shell),
			zap.Error(err),
		)
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.TerminalOpened()
	}

	// The shell may already be gone. The state turns closed before OnClose
	// runs, so either OnClose sees this entry or the check below does.
	m.sessions.Store(session.ID(), session)
	if session.State() == StateClosed {
		m.sessions.CompareAndDelete(session.ID(), session)
	}

	return session, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(sessionID id.SessionID) (*Session, bool) {
	value, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return value.(*Session), true
}

// Lookup is Get with an error for unknown IDs
func (m *Manager) Lookup(sessionID id.SessionID) (*Session, error) {
	session, ok := m.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// Close begins teardown of a session and returns its completion channel
func (m *Manager) Close(sessionID id.SessionID) (<-chan struct{}, error) {
	session, err := m.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Close(), nil
}

// CloseAll closes every session and waits for teardown or ctx expiry
func (m *Manager) CloseAll(ctx context.Context) error {
	var pending []<-chan struct{}
	m.sessions.Range(func(_, value interface{}) bool {
		pending = append(pending, value.(*Session).Close())
		return true
	})

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// List returns info for all open sessions, oldest first
func (m *Manager) List() []Info {
	var infos []Info
	m.sessions.Range(func(_, value interface{}) bool {
		infos = append(infos, value.(*Session).Info())
		return true
	})

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	count := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
