package agent

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
	"github.com/GriffinCanCode/synapse/internal/shared/scrollback"
)

// Defaults for supervisor options.
const (
	DefaultMaxConcurrent = 5
	DefaultOutputLines   = 1000

	// waitDelay bounds how long Wait keeps copying output after the agent
	// exits while a grandchild still holds its pipes.
	waitDelay = 2 * time.Second
)

// Options configures a Supervisor
type Options struct {
	// MaxConcurrent caps running agents. Zero means unlimited.
	MaxConcurrent int

	// OutputLines is the number of captured output lines kept per agent.
	OutputLines int

	// Clock generates agent ids. Nil uses the process-wide clock.
	Clock *id.Clock
}

// handle is a live OS process. done is closed by the waiter goroutine once
// the process has been reaped; err is valid after that.
type handle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *handle) exitCode() *int {
	if !h.exited() || h.cmd.ProcessState == nil {
		return nil
	}
	code := h.cmd.ProcessState.ExitCode()
	return &code
}

// Supervisor tracks agent records and their live processes
type Supervisor struct {
	mu      sync.RWMutex
	records map[id.AgentID]*record // Protected by mu
	order   []id.AgentID           // Protected by mu

	// Lock order: record.mu before liveMu.
	liveMu   sync.Mutex
	live     map[id.AgentID]*handle // Protected by liveMu
	reserved int                    // Protected by liveMu

	maxConcurrent int
	outputLines   int
	clock         *id.Clock
	logger        *zap.Logger
	metrics       *monitoring.Metrics
}

// NewSupervisor creates an empty supervisor
func NewSupervisor(opts Options, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrent < 0 {
		opts.MaxConcurrent = 0
	}
	if opts.OutputLines <= 0 {
		opts.OutputLines = DefaultOutputLines
	}
	if opts.Clock == nil {
		opts.Clock = id.DefaultClock()
	}
	return &Supervisor{
		records:       make(map[id.AgentID]*record),
		live:          make(map[id.AgentID]*handle),
		maxConcurrent: opts.MaxConcurrent,
		outputLines:   opts.OutputLines,
		clock:         opts.Clock,
		logger:        logger,
	}
}

// WithMetrics adds metrics tracking to the supervisor
func (s *Supervisor) WithMetrics(metrics *monitoring.Metrics) *Supervisor {
	s.metrics = metrics
	return s
}

// Register creates a stopped agent record. Nothing is launched.
func (s *Supervisor) Register(name, command string, args []string) Agent {
	agentID := s.clock.AgentID()
	createdAt, err := id.AgentTime(agentID)
	if err != nil {
		createdAt = time.Now()
	}
	rec := &record{
		agent: Agent{
			ID:        agentID,
			Name:      name,
			Command:   command,
			Args:      slices.Clone(args),
			Status:    StatusStopped,
			CreatedAt: createdAt,
		},
		output: scrollback.New(s.outputLines),
	}
	if rec.agent.Args == nil {
		rec.agent.Args = []string{}
	}

	s.mu.Lock()
	s.records[agentID] = rec
	s.order = append(s.order, agentID)
	s.mu.Unlock()

	s.logger.Info("Agent registered",
		zap.String("agent_id", agentID.String()),
		zap.String("name", name),
		zap.String("command", command),
	)
	s.updateGauges()

	return rec.snapshot()
}

// Start launches the agent's command. The agent must not be running,
// starting or stopping. A failed spawn leaves the agent in StatusError.
func (s *Supervisor) Start(agentID id.AgentID) error {
	rec, err := s.acquire(agentID)
	if err != nil {
		return err
	}
	defer rec.opMu.Unlock()

	rec.mu.Lock()
	if status := rec.agent.Status; status.Busy() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: cannot start agent %s while %s", ErrInvalidState, agentID, status)
	}
	if !s.reserve() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %d agents running", ErrLimitReached, s.maxConcurrent)
	}
	rec.agent.Status = StatusStarting
	rec.agent.LastError = ""
	command, args := rec.agent.Command, slices.Clone(rec.agent.Args)
	rec.mu.Unlock()

	cmd := exec.Command(command, args...)
	cmd.Stdout = rec.output
	cmd.Stderr = rec.output
	cmd.WaitDelay = waitDelay

	begin := time.Now()
	if err := cmd.Start(); err != nil {
		s.release(nil, "")

		rec.mu.Lock()
		rec.agent.Status = StatusError
		rec.agent.LastError = err.Error()
		rec.agent.PID = nil
		rec.mu.Unlock()

		s.logger.Warn("Agent failed to start",
			zap.String("agent_id", agentID.String()),
			zap.String("command", command),
			zap.Error(err),
		)
		s.recordTransition(StatusError)
		return fmt.Errorf("%w: %s: %w", ErrSpawn, command, err)
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()

	pid := cmd.Process.Pid
	now := time.Now()

	rec.mu.Lock()
	s.release(h, agentID)
	rec.agent.Status = StatusRunning
	rec.agent.PID = &pid
	rec.agent.StartedAt = &now
	rec.agent.ExitCode = nil
	if rec.started {
		rec.agent.Restarts++
	}
	rec.started = true
	rec.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordAgentSpawn(time.Since(begin))
	}
	s.logger.Info("Agent started",
		zap.String("agent_id", agentID.String()),
		zap.Int("pid", pid),
	)
	s.recordTransition(StatusRunning)

	return nil
}

// Stop sends a single kill signal to the agent's process. The live handle
// is dropped whether or not delivery succeeds.
func (s *Supervisor) Stop(agentID id.AgentID) error {
	rec, err := s.acquire(agentID)
	if err != nil {
		return err
	}
	defer rec.opMu.Unlock()

	return s.stop(agentID, rec)
}

// stop requires rec.opMu held.
func (s *Supervisor) stop(agentID id.AgentID, rec *record) error {
	rec.mu.Lock()
	s.liveMu.Lock()
	h, ok := s.live[agentID]
	s.liveMu.Unlock()
	if !ok || rec.agent.Status != StatusRunning {
		status := rec.agent.Status
		rec.mu.Unlock()
		return fmt.Errorf("%w: agent %s is %s", ErrInvalidState, agentID, status)
	}
	rec.agent.Status = StatusStopping
	rec.mu.Unlock()

	killErr := h.cmd.Process.Kill()
	if errors.Is(killErr, os.ErrProcessDone) {
		killErr = nil
	}

	rec.mu.Lock()
	s.liveMu.Lock()
	if s.live[agentID] == h {
		delete(s.live, agentID)
	}
	s.liveMu.Unlock()

	rec.agent.PID = nil
	rec.agent.ExitCode = h.exitCode()
	if killErr != nil {
		rec.agent.Status = StatusError
		rec.agent.LastError = killErr.Error()
	} else {
		rec.agent.Status = StatusStopped
	}
	status := rec.agent.Status
	rec.mu.Unlock()

	s.recordTransition(status)

	if killErr != nil {
		s.logger.Error("Failed to signal agent",
			zap.String("agent_id", agentID.String()),
			zap.Error(killErr),
		)
		return fmt.Errorf("%w: agent %s: %w", ErrSignal, agentID, killErr)
	}

	s.logger.Info("Agent stopped", zap.String("agent_id", agentID.String()))
	return nil
}

// Remove stops a running agent and deletes its record. Unknown ids are a
// no-op. If the stop fails the record is kept and the error returned.
func (s *Supervisor) Remove(agentID id.AgentID) error {
	rec, err := s.acquire(agentID)
	if errors.Is(err, ErrAgentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer rec.opMu.Unlock()

	if rec.status() == StatusRunning {
		if err := s.stop(agentID, rec); err != nil {
			return err
		}
	}

	rec.mu.Lock()
	rec.removed = true
	rec.mu.Unlock()

	s.liveMu.Lock()
	delete(s.live, agentID)
	s.liveMu.Unlock()

	s.mu.Lock()
	delete(s.records, agentID)
	if idx := slices.Index(s.order, agentID); idx >= 0 {
		s.order = slices.Delete(s.order, idx, idx+1)
	}
	s.mu.Unlock()

	s.logger.Info("Agent removed", zap.String("agent_id", agentID.String()))
	s.updateGauges()

	return nil
}

// Reset clears an error status back to stopped
func (s *Supervisor) Reset(agentID id.AgentID) error {
	rec, err := s.acquire(agentID)
	if err != nil {
		return err
	}
	defer rec.opMu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.agent.Status != StatusError {
		return fmt.Errorf("%w: agent %s is %s", ErrInvalidState, agentID, rec.agent.Status)
	}
	rec.agent.Status = StatusStopped
	rec.agent.LastError = ""
	rec.agent.PID = nil
	return nil
}

// Reap moves agents whose process has exited to StatusStopped and returns
// their ids. The finished set is computed in full before any record is
// touched.
func (s *Supervisor) Reap() []id.AgentID {
	finished := make(map[id.AgentID]*handle)

	s.liveMu.Lock()
	for agentID, h := range s.live {
		if h.exited() {
			finished[agentID] = h
		}
	}
	s.liveMu.Unlock()

	if len(finished) == 0 {
		return nil
	}

	var reaped []id.AgentID
	for agentID, h := range finished {
		rec, ok := s.lookup(agentID)
		if !ok {
			s.dropHandle(agentID, h)
			continue
		}

		rec.mu.Lock()
		owned := s.dropHandle(agentID, h)
		if owned && rec.agent.Status == StatusRunning {
			rec.agent.Status = StatusStopped
			rec.agent.PID = nil
			rec.agent.ExitCode = h.exitCode()
			reaped = append(reaped, agentID)
		}
		rec.mu.Unlock()

		if owned {
			s.logger.Info("Agent exited",
				zap.String("agent_id", agentID.String()),
				zap.Error(h.err),
			)
		}
	}

	slices.Sort(reaped)

	if len(reaped) > 0 {
		for range reaped {
			s.recordTransition(StatusStopped)
		}
		if s.metrics != nil {
			s.metrics.AddAgentsReaped(len(reaped))
		}
	}

	return reaped
}

// StopAll stops every running agent
func (s *Supervisor) StopAll() error {
	var errs []error
	for _, agent := range s.List() {
		if agent.Status != StatusRunning {
			continue
		}
		if err := s.Stop(agent.ID); err != nil && !errors.Is(err, ErrInvalidState) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a copy of one agent
func (s *Supervisor) Get(agentID id.AgentID) (Agent, error) {
	rec, ok := s.lookup(agentID)
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return rec.snapshot(), nil
}

// List returns copies of all agents in registration order
func (s *Supervisor) List() []Agent {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.order))
	for _, agentID := range s.order {
		recs = append(recs, s.records[agentID])
	}
	s.mu.RUnlock()

	agents := make([]Agent, 0, len(recs))
	for _, rec := range recs {
		agents = append(agents, rec.snapshot())
	}
	return agents
}

// Output returns the last n lines the agent wrote to stdout or stderr.
// A non-positive n returns everything retained.
func (s *Supervisor) Output(agentID id.AgentID, n int) ([]string, error) {
	rec, ok := s.lookup(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return rec.output.Snapshot(n), nil
}

// ActiveCount returns the number of running agents
func (s *Supervisor) ActiveCount() int {
	count := 0
	for _, agent := range s.List() {
		if agent.Status == StatusRunning {
			count++
		}
	}
	return count
}

// Len returns the number of registered agents
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Supervisor) lookup(agentID id.AgentID) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[agentID]
	return rec, ok
}

// acquire returns the record with its opMu held.
func (s *Supervisor) acquire(agentID id.AgentID) (*record, error) {
	rec, ok := s.lookup(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	rec.opMu.Lock()
	rec.mu.RLock()
	removed := rec.removed
	rec.mu.RUnlock()
	if removed {
		rec.opMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return rec, nil
}

// reserve claims a concurrency slot. Caller holds the record's mu.
func (s *Supervisor) reserve() bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()

	if s.maxConcurrent > 0 && len(s.live)+s.reserved >= s.maxConcurrent {
		return false
	}
	s.reserved++
	return true
}

// release returns a reserved slot, registering h under agentID when set.
func (s *Supervisor) release(h *handle, agentID id.AgentID) {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()

	s.reserved--
	if h != nil {
		s.live[agentID] = h
	}
}

// dropHandle removes the live entry if it is still h.
func (s *Supervisor) dropHandle(agentID id.AgentID, h *handle) bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()

	if s.live[agentID] != h {
		return false
	}
	delete(s.live, agentID)
	return true
}

func (s *Supervisor) recordTransition(status Status) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordAgentTransition(string(status))
	s.updateGauges()
}

func (s *Supervisor) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetAgentCounts(s.Len(), s.ActiveCount())
}
