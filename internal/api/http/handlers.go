package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/domain/agent"
	"github.com/GriffinCanCode/synapse/internal/domain/grid"
	"github.com/GriffinCanCode/synapse/internal/domain/status"
	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
)

// Version is reported by the root and health endpoints.
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	grid      *grid.Grid
	terminals *terminal.Manager
	agents    *agent.Supervisor
	status    *status.Collector
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(
	g *grid.Grid,
	terminals *terminal.Manager,
	agents *agent.Supervisor,
	collector *status.Collector,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		grid:      g,
		terminals: terminals,
		agents:    agents,
		status:    collector,
		metrics:   metrics,
		logger:    logger,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.GET("/layout", h.Layout)

	terminals := r.Group("/terminals")
	terminals.GET("", h.ListTerminals)
	terminals.POST("", h.CreateTerminal)
	terminals.DELETE("/:id", h.DeleteTerminal)
	terminals.POST("/:id/input", h.SendInput)
	terminals.POST("/:id/resize", h.ResizeTerminal)
	terminals.GET("/:id/output", h.TerminalOutput)
	terminals.GET("/:id/transcript", h.Transcript)

	agents := r.Group("/agents")
	agents.GET("", h.ListAgents)
	agents.POST("", h.CreateAgent)
	agents.GET("/:id", h.GetAgent)
	agents.DELETE("/:id", h.DeleteAgent)
	agents.POST("/:id/start", h.StartAgent)
	agents.POST("/:id/stop", h.StopAgent)
	agents.POST("/:id/reset", h.ResetAgent)
	agents.GET("/:id/output", h.AgentOutput)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "synapse",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":    "healthy",
		"version":   Version,
		"terminals": h.terminals.Count(),
		"agents": gin.H{
			"registered": h.agents.Len(),
			"running":    h.agents.ActiveCount(),
		},
	}
	if h.metrics != nil {
		resp["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// Status returns the status bar snapshot
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Snapshot(c.Request.Context()))
}

// Layout returns the grid layout and the ids in each row
func (h *Handlers) Layout(c *gin.Context) {
	rows := h.grid.Arrangement()
	c.JSON(http.StatusOK, gin.H{
		"layout": grid.LayoutFor(countIDs(rows)),
		"rows":   rows,
	})
}
