package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/synapse/internal/domain/agent"
	"github.com/GriffinCanCode/synapse/internal/domain/grid"
	"github.com/GriffinCanCode/synapse/internal/domain/status"
	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
)

type fixedTelemetry struct{}

func (fixedTelemetry) Usage(context.Context) (status.Usage, error) {
	return status.Usage{CPUPercent: 10, MemoryGB: 2}, nil
}

type testServer struct {
	router    *gin.Engine
	terminals *terminal.Manager
	agents    *agent.Supervisor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	terminals := terminal.NewManager(terminal.Options{}, nil).WithMetrics(metrics)
	agents := agent.NewSupervisor(agent.Options{MaxConcurrent: 5}, nil).WithMetrics(metrics)
	g := grid.New(terminals, nil)
	collector := status.NewCollector(g, agents, fixedTelemetry{}, nil)

	t.Cleanup(func() {
		_ = agents.StopAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = terminals.CloseAll(ctx)
	})

	router := gin.New()
	NewHandlers(g, terminals, agents, collector, metrics, nil).Register(router)

	return &testServer{router: router, terminals: terminals, agents: agents}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func requireCommands(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available", name)
		}
	}
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"synapse"`)

	w = s.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "metrics")
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "GET", "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[status.Snapshot](t, w)
	assert.Equal(t, status.Snapshot{CPUPercent: 10, MemoryGB: 2}, snap)
}

func TestTerminalLifecycle(t *testing.T) {
	requireCommands(t, "sh")
	s := newTestServer(t)

	w := s.do(t, "POST", "/terminals", CreateTerminalRequest{Rows: 30, Cols: 100})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[struct {
		ID       string        `json:"id"`
		Layout   grid.Layout   `json:"layout"`
		Terminal terminal.Info `json:"terminal"`
	}](t, w)
	assert.True(t, strings.HasPrefix(created.ID, "term_"))
	assert.Equal(t, grid.Single, created.Layout.Kind)
	assert.Equal(t, 30, created.Terminal.Rows)
	base := "/terminals/" + created.ID

	w = s.do(t, "POST", base+"/input", InputRequest{Data: "echo $((40+2))\n"})
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Eventually(t, func() bool {
		w := s.do(t, "GET", base+"/output?lines=50", nil)
		out := decode[struct {
			Lines []string `json:"lines"`
		}](t, w)
		for _, line := range out.Lines {
			if strings.HasSuffix(strings.TrimSpace(line), "42") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	w = s.do(t, "POST", base+"/resize", ResizeRequest{Rows: 40, Cols: 120})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 40, decode[terminal.Info](t, w).Rows)

	w = s.do(t, "GET", "/terminals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)

	w = s.do(t, "GET", "/status", nil)
	assert.Equal(t, 1, decode[status.Snapshot](t, w).TerminalCount)

	w = s.do(t, "DELETE", base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[map[string]interface{}](t, w)
	assert.Equal(t, true, deleted["closed"])

	w = s.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, "POST", base+"/input", InputRequest{Data: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTerminalSpawnFailure(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/terminals", CreateTerminalRequest{Shell: "/nonexistent/shell-binary"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, "GET", "/layout", nil)
	assert.Contains(t, w.Body.String(), `"kind":"empty"`)
}

func TestExitedTerminalLeavesStatus(t *testing.T) {
	requireCommands(t, "sh")
	s := newTestServer(t)

	w := s.do(t, "POST", "/terminals", CreateTerminalRequest{Args: []string{"-c", "exit 0"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Nothing reaps here, so the count must drop from the close itself.
	assert.Eventually(t, func() bool {
		w := s.do(t, "GET", "/status", nil)
		return decode[status.Snapshot](t, w).TerminalCount == 0
	}, 5*time.Second, 20*time.Millisecond)

	w = s.do(t, "GET", "/layout", nil)
	assert.Contains(t, w.Body.String(), `"kind":"empty"`)
}

func TestTerminalValidation(t *testing.T) {
	requireCommands(t, "sh")
	s := newTestServer(t)

	w := s.do(t, "POST", "/terminals", CreateTerminalRequest{Rows: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/terminals", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := decode[map[string]interface{}](t, w)["id"].(string)

	w = s.do(t, "POST", "/terminals/"+sessionID+"/resize", map[string]int{"rows": 0, "cols": 80})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "GET", "/terminals/"+sessionID+"/output?lines=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/terminals/"+sessionID+"/input", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscriptEncodings(t *testing.T) {
	requireCommands(t, "sh")
	s := newTestServer(t)

	live, err := s.terminals.Open(context.Background(), terminal.Options{})
	require.NoError(t, err)
	require.NoError(t, live.SendInput([]byte("echo transcript-line\n")))
	// The echoed command and its output both contain the marker.
	require.Eventually(t, func() bool {
		return strings.Count(live.Transcript(), "transcript-line") >= 2
	}, 5*time.Second, 20*time.Millisecond)

	path := "/terminals/" + live.ID().String() + "/transcript"

	t.Run("plain", func(t *testing.T) {
		w := s.do(t, "GET", path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Contains(t, w.Body.String(), "transcript-line")
	})

	t.Run("gzip", func(t *testing.T) {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Contains(t, string(body), "transcript-line")
	})

	t.Run("zstd", func(t *testing.T) {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Accept-Encoding", "zstd, gzip")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "zstd", w.Header().Get("Content-Encoding"))

		zr, err := zstd.NewReader(w.Body)
		require.NoError(t, err)
		defer zr.Close()
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Contains(t, string(body), "transcript-line")
	})
}

func TestAgentLifecycle(t *testing.T) {
	requireCommands(t, "sleep")
	s := newTestServer(t)

	w := s.do(t, "POST", "/agents", CreateAgentRequest{Name: "sleeper", Command: "sleep", Args: []string{"30"}})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[agent.Agent](t, w)
	assert.Equal(t, agent.StatusStopped, created.Status)
	base := "/agents/" + created.ID.String()

	w = s.do(t, "POST", base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	started := decode[agent.Agent](t, w)
	assert.Equal(t, agent.StatusRunning, started.Status)
	assert.NotNil(t, started.PID)

	w = s.do(t, "POST", base+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, "GET", "/status", nil)
	assert.Equal(t, 1, decode[status.Snapshot](t, w).ActiveAgentCount)

	w = s.do(t, "POST", base+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stopped := decode[agent.Agent](t, w)
	assert.Equal(t, agent.StatusStopped, stopped.Status)
	assert.Nil(t, stopped.PID)

	w = s.do(t, "GET", "/agents", nil)
	assert.Contains(t, w.Body.String(), created.ID.String())

	w = s.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, "GET", base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAgentSpawnFailureAndReset(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/agents", CreateAgentRequest{Name: "broken", Command: "/nonexistent/agent-binary", Start: true})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	list := s.agents.List()
	require.Len(t, list, 1)
	assert.Equal(t, agent.StatusError, list[0].Status)

	base := "/agents/" + list[0].ID.String()
	w = s.do(t, "POST", base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, agent.StatusStopped, decode[agent.Agent](t, w).Status)

	w = s.do(t, "POST", base+"/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAgentOutput(t *testing.T) {
	requireCommands(t, "echo")
	s := newTestServer(t)

	w := s.do(t, "POST", "/agents", CreateAgentRequest{Name: "echo", Command: "echo", Args: []string{"hi"}, Start: true})
	require.Equal(t, http.StatusCreated, w.Code)
	agentID := decode[agent.Agent](t, w).ID

	require.Eventually(t, func() bool {
		s.agents.Reap()
		a, err := s.agents.Get(agentID)
		return err == nil && a.Status == agent.StatusStopped
	}, 5*time.Second, 10*time.Millisecond)

	w = s.do(t, "GET", "/agents/"+agentID.String()+"/output", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[struct {
		Lines []string `json:"lines"`
	}](t, w)
	assert.Equal(t, []string{"hi"}, out.Lines)
}

func TestAgentValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "POST", "/agents", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/agents/agent_0/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
