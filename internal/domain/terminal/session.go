package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/shared/id"
	"github.com/GriffinCanCode/synapse/internal/shared/scrollback"
)

// Session represents an active terminal session
type Session struct {
	id        id.SessionID
	shell     string
	args      []string
	dir       string
	startedAt time.Time

	// Process management
	cmd  *exec.Cmd
	ptmx *os.File

	// Output buffering
	output       *scrollback.Buffer
	displayLines int

	// Lifecycle
	mu       sync.RWMutex
	state    State
	closing  bool
	rows     int
	cols     int
	exitCode *int

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	onOutput func(n int)
	onClose  func(s *Session)
	logger   *zap.Logger
}

// Open allocates a PTY, starts the shell on it and begins streaming its
// output. On failure every partially acquired resource is released and no
// session is returned.
func Open(opts Options, logger *zap.Logger) (*Session, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionID := id.NewSessionID()
	log := logger.With(zap.String("session_id", sessionID.String()))

	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPtyAllocation, err)
	}
	// The child holds its own copy of the slave; the parent never needs it.
	defer tty.Close()

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)}); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("%w: set size: %w", ErrPtyAllocation, err)
	}

	cmd := exec.Command(opts.Shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, opts.Env...)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = controllingTerminal()

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, opts.Shell, err)
	}

	s := &Session{
		id:           sessionID,
		shell:        opts.Shell,
		args:         opts.Args,
		dir:          opts.Dir,
		startedAt:    time.Now(),
		cmd:          cmd,
		ptmx:         ptmx,
		output:       scrollback.New(opts.Scrollback),
		displayLines: opts.DisplayLines,
		state:        StateCreated,
		rows:         opts.Rows,
		cols:         opts.Cols,
		done:         make(chan struct{}),
		onOutput:     opts.OnOutput,
		onClose:      opts.OnClose,
		logger:       log,
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	go s.readOutput()

	log.Info("Terminal session opened",
		zap.String("shell", opts.Shell),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("rows", opts.Rows),
		zap.Int("cols", opts.Cols),
	)

	return s, nil
}

// readOutput continuously reads from the PTY into the line buffer. It is
// the only writer to the buffer and exits on the first empty read or error.
func (s *Session) readOutput() {
	defer s.finish()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Terminal reader panicked", zap.Any("panic", r))
		}
	}()

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.output.Write(buf[:n])
			if s.onOutput != nil {
				s.onOutput(n)
			}
		}
		if err != nil {
			// Linux reports EIO on the master once the slave side is gone.
			if !errors.Is(err, io.EOF) && !s.isClosing() {
				s.logger.Debug("Terminal reader stopped",
					zap.Error(fmt.Errorf("%w: %w", ErrReadFailed, err)))
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

// finish releases the device, reaps the shell and marks the session closed
func (s *Session) finish() {
	s.output.Flush()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	code := -1
	if err := s.cmd.Wait(); err == nil {
		code = 0
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	s.mu.Lock()
	s.exitCode = &code
	s.mu.Unlock()

	s.logger.Info("Terminal session closed", zap.Int("exit_code", code))

	if s.onClose != nil {
		s.onClose(s)
	}
	close(s.done)
}

// SendInput writes raw bytes to the shell. It fails immediately once the
// session is no longer running.
func (s *Session) SendInput(p []byte) error {
	s.mu.RLock()
	state, closing := s.state, s.closing
	s.mu.RUnlock()

	if state != StateRunning || closing {
		return fmt.Errorf("%w: session %s is %s", ErrWriteFailed, s.id, state)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// *os.File is unbuffered, a successful Write has reached the device.
	if _, err := s.ptmx.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Snapshot returns a copy of the most recent maxLines lines. A
// non-positive maxLines uses the session's display window.
func (s *Session) Snapshot(maxLines int) []string {
	if maxLines <= 0 {
		maxLines = s.displayLines
	}
	return s.output.Snapshot(maxLines)
}

// DisplayLines returns the default snapshot window
func (s *Session) DisplayLines() int {
	return s.displayLines
}

// LinesSince returns output lines starting at sequence number seq.
func (s *Session) LinesSince(seq uint64) ([]string, uint64, string) {
	return s.output.LinesSince(seq)
}

// Transcript returns all retained output as text.
func (s *Session) Transcript() string {
	return s.output.Text()
}

// Resize changes terminal dimensions
func (s *Session) Resize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, rows, cols)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning || s.closing {
		return fmt.Errorf("%w: cannot resize %s", ErrSessionClosed, s.id)
	}

	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return err
	}
	s.rows = rows
	s.cols = cols
	return nil
}

// Close kills the shell and closes the PTY master without waiting for the
// reader. The returned channel is closed once teardown has completed.
func (s *Session) Close() <-chan struct{} {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.logger.Warn("Failed to kill shell", zap.Error(err))
			}
		}
		s.ptmx.Close()
	})
	return s.done
}

// Done returns a channel that is closed once the session has closed and
// its shell has been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ID returns the session identifier
func (s *Session) ID() id.SessionID {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) isClosing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closing
}

// Info returns a point-in-time description of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:        s.id,
		Shell:     s.shell,
		Args:      s.args,
		Dir:       s.dir,
		Rows:      s.rows,
		Cols:      s.cols,
		State:     s.state,
		Lines:     s.output.Len(),
		StartedAt: s.startedAt,
	}
	if s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	if s.exitCode != nil {
		code := *s.exitCode
		info.ExitCode = &code
	}
	return info
}
