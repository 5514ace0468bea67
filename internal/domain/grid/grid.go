package grid

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

// Sessions is the session store the grid arranges
type Sessions interface {
	Open(ctx context.Context, opts terminal.Options) (*terminal.Session, error)
	Get(sessionID id.SessionID) (*terminal.Session, bool)
	Close(sessionID id.SessionID) (<-chan struct{}, error)
}

// Grid holds the ordered session ids shown on screen
type Grid struct {
	mu       sync.RWMutex
	ids      []id.SessionID // Protected by mu
	sessions Sessions
	logger   *zap.Logger
}

// New creates an empty grid over sessions
func New(sessions Sessions, logger *zap.Logger) *Grid {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grid{
		sessions: sessions,
		logger:   logger,
	}
}

// Add opens a new session and appends it. The grid is unchanged on error.
// A session whose shell exits leaves the grid as soon as it has closed.
func (g *Grid) Add(ctx context.Context, opts terminal.Options) (id.SessionID, error) {
	userClose := opts.OnClose
	opts.OnClose = func(s *terminal.Session) {
		if g.drop(s.ID()) {
			g.logger.Debug("Closed session left grid", zap.String("session_id", s.ID().String()))
		}
		if userClose != nil {
			userClose(s)
		}
	}

	session, err := g.sessions.Open(ctx, opts)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.ids = append(g.ids, session.ID())
	count := len(g.ids)
	g.mu.Unlock()

	// OnClose may have run before the append.
	if session.State() == terminal.StateClosed {
		g.drop(session.ID())
		return session.ID(), nil
	}

	g.logger.Debug("Session added to grid",
		zap.String("session_id", session.ID().String()),
		zap.String("layout", string(LayoutFor(count).Kind)),
	)

	return session.ID(), nil
}

// Remove drops sessionID from the grid and closes its session. The returned
// channel closes once the session has been torn down. Unknown ids are a
// no-op and report false.
func (g *Grid) Remove(sessionID id.SessionID) (<-chan struct{}, bool) {
	if !g.drop(sessionID) {
		return nil, false
	}

	done, err := g.sessions.Close(sessionID)
	if err != nil {
		// Already gone from the store: its teardown has finished.
		closed := make(chan struct{})
		close(closed)
		return closed, true
	}
	return done, true
}

// drop removes sessionID if present
func (g *Grid) drop(sessionID id.SessionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.Index(g.ids, sessionID)
	if idx < 0 {
		return false
	}
	g.ids = slices.Delete(g.ids, idx, idx+1)
	return true
}

// Prune drops ids whose sessions have closed on their own and returns them.
func (g *Grid) Prune() []id.SessionID {
	g.mu.Lock()
	defer g.mu.Unlock()

	var pruned []id.SessionID
	g.ids = slices.DeleteFunc(g.ids, func(sessionID id.SessionID) bool {
		if _, ok := g.sessions.Get(sessionID); ok {
			return false
		}
		pruned = append(pruned, sessionID)
		return true
	})
	return pruned
}

// Contains reports whether sessionID is on the grid
func (g *Grid) Contains(sessionID id.SessionID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.ids, sessionID)
}

// IDs returns a copy of the session ids in display order
func (g *Grid) IDs() []id.SessionID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.ids)
}

// Len returns the number of sessions on the grid
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// Layout derives the current layout from the session count
func (g *Grid) Layout() Layout {
	return LayoutFor(g.Len())
}

// Arrangement splits the ids into rows following the current layout
func (g *Grid) Arrangement() [][]id.SessionID {
	ids := g.IDs()
	layout := LayoutFor(len(ids))

	rows := make([][]id.SessionID, 0, layout.RowCount())
	offset := 0
	for _, n := range layout.Rows {
		rows = append(rows, ids[offset:offset+n])
		offset += n
	}
	return rows
}
