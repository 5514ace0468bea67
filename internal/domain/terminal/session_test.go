package terminal

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
	"github.com/GriffinCanCode/synapse/internal/shared/scrollback"
)

const waitFor = 5 * time.Second

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(DefaultShell); err != nil {
		t.Skip("sh not available")
	}
}

// hasLine reports whether a line ends with want. Output can share a line
// with the shell prompt when input arrives before the prompt is printed.
func hasLine(lines []string, want string) bool {
	for _, line := range lines {
		if strings.HasSuffix(strings.TrimSpace(line), want) {
			return true
		}
	}
	return false
}

func TestOpenAndEcho(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, StateRunning, s.State())
	assert.True(t, strings.HasPrefix(s.ID().String(), "term_"))

	require.NoError(t, s.SendInput([]byte("echo $((40+2))\n")))

	assert.Eventually(t, func() bool {
		return hasLine(s.Snapshot(0), "42")
	}, waitFor, 10*time.Millisecond)
}

func TestOpenAppliesDefaults(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{}, nil)
	require.NoError(t, err)
	defer s.Close()

	info := s.Info()
	assert.Equal(t, DefaultShell, info.Shell)
	assert.Equal(t, DefaultRows, info.Rows)
	assert.Equal(t, DefaultCols, info.Cols)
	assert.Greater(t, info.PID, 0)
	assert.Nil(t, info.ExitCode)
}

func TestOpenSpawnFailure(t *testing.T) {
	s, err := Open(Options{Shell: "/nonexistent/shell-binary"}, nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestCloseCompletesTeardown(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{}, nil)
	require.NoError(t, err)

	done := s.Close()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("session did not finish closing")
	}

	assert.Equal(t, StateClosed, s.State())
	assert.NotNil(t, s.Info().ExitCode)

	// Idempotent
	assert.Equal(t, done, s.Close())
}

func TestSendInputAfterClose(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{}, nil)
	require.NoError(t, err)

	// Fails as soon as Close has been requested, before teardown completes
	done := s.Close()
	assert.ErrorIs(t, s.SendInput([]byte("echo hi\n")), ErrWriteFailed)

	<-done
	assert.ErrorIs(t, s.SendInput([]byte("echo hi\n")), ErrWriteFailed)
}

func TestShellExitClosesSession(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{Args: []string{"-c", "echo bye"}}, nil)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not close after shell exit")
	}

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, hasLine(s.Snapshot(0), "bye"))
	assert.ErrorIs(t, s.SendInput([]byte("x")), ErrWriteFailed)
}

func TestOutputWithoutNewlinesStaysBounded(t *testing.T) {
	requireShell(t)
	for _, name := range []string{"head", "tr"} {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available", name)
		}
	}

	s, err := Open(Options{
		Args:       []string{"-c", "head -c 2000000 /dev/zero | tr '\\0' a; sleep 0.2"},
		Scrollback: 10,
	}, nil)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not close")
	}

	lines := s.Snapshot(1000)
	assert.LessOrEqual(t, len(lines), 11)
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), scrollback.MaxLineBytes)
	}
	assert.LessOrEqual(t, len(s.Transcript()), 11*(scrollback.MaxLineBytes+1))
}

func TestSnapshotWindow(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{
		Args:         []string{"-c", "i=1; while [ $i -le 50 ]; do echo line$i; i=$((i+1)); done"},
		DisplayLines: 10,
	}, nil)
	require.NoError(t, err)
	<-s.Done()

	lines := s.Snapshot(0)
	assert.LessOrEqual(t, len(lines), 10)
	assert.True(t, hasLine(lines, "line50"))

	all := s.Snapshot(1000)
	assert.True(t, hasLine(all, "line1"))
	assert.True(t, hasLine(all, "line50"))
	assert.Contains(t, s.Transcript(), "line25")
}

func TestResize(t *testing.T) {
	requireShell(t)

	s, err := Open(Options{}, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Resize(40, 120))
	info := s.Info()
	assert.Equal(t, 40, info.Rows)
	assert.Equal(t, 120, info.Cols)

	assert.ErrorIs(t, s.Resize(0, 80), ErrInvalidSize)
	assert.ErrorIs(t, s.Resize(24, -1), ErrInvalidSize)

	<-s.Close()
	assert.ErrorIs(t, s.Resize(30, 100), ErrSessionClosed)
	assert.Equal(t, 40, s.Info().Rows)
}

func TestManagerLifecycle(t *testing.T) {
	requireShell(t)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	mgr := NewManager(Options{Rows: 30}, zap.NewNop()).WithMetrics(metrics)

	s, err := mgr.Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 30, s.Info().Rows)
	assert.Equal(t, 1, mgr.Count())

	got, ok := mgr.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	done, err := mgr.Close(s.ID())
	require.NoError(t, err)
	<-done

	assert.Eventually(t, func() bool { return mgr.Count() == 0 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.TerminalsOpened))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.TerminalsClosed) == 1
	}, waitFor, 10*time.Millisecond)
}

func TestManagerUnknownSession(t *testing.T) {
	mgr := NewManager(Options{}, nil)

	_, err := mgr.Close(id.SessionID("term_missing"))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = mgr.Lookup(id.SessionID("term_missing"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerCanceledContext(t *testing.T) {
	mgr := NewManager(Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Open(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mgr.Count())
}

func TestManagerCloseAll(t *testing.T) {
	requireShell(t)

	mgr := NewManager(Options{}, nil)
	for i := 0; i < 3; i++ {
		_, err := mgr.Open(context.Background(), Options{})
		require.NoError(t, err)
	}
	assert.Len(t, mgr.List(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, mgr.CloseAll(ctx))

	assert.Eventually(t, func() bool { return mgr.Count() == 0 }, waitFor, 10*time.Millisecond)
}
