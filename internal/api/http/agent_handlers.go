package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/synapse/internal/domain/agent"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

// CreateAgentRequest registers an agent, optionally starting it
type CreateAgentRequest struct {
	Name    string   `json:"name" binding:"required"`
	Command string   `json:"command" binding:"required"`
	Args    []string `json:"args"`
	Start   bool     `json:"start"`
}

// ListAgents lists all agents in registration order
func (h *Handlers) ListAgents(c *gin.Context) {
	agents := h.agents.List()
	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"stats": gin.H{
			"registered": len(agents),
			"running":    runningCount(agents),
		},
	})
}

// CreateAgent registers a new agent
func (h *Handlers) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	registered := h.agents.Register(req.Name, req.Command, req.Args)
	if req.Start {
		if err := h.agents.Start(registered.ID); err != nil {
			h.respondError(c, err)
			return
		}
	}

	h.respondAgent(c, http.StatusCreated, registered.ID)
}

// GetAgent returns one agent
func (h *Handlers) GetAgent(c *gin.Context) {
	h.respondAgent(c, http.StatusOK, paramAgentID(c))
}

// DeleteAgent stops and removes an agent. Unknown ids succeed.
func (h *Handlers) DeleteAgent(c *gin.Context) {
	if err := h.agents.Remove(paramAgentID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartAgent launches an agent's process
func (h *Handlers) StartAgent(c *gin.Context) {
	h.transition(c, h.agents.Start)
}

// StopAgent signals an agent's process
func (h *Handlers) StopAgent(c *gin.Context) {
	h.transition(c, h.agents.Stop)
}

// ResetAgent clears an error status
func (h *Handlers) ResetAgent(c *gin.Context) {
	h.transition(c, h.agents.Reset)
}

// AgentOutput returns captured stdout and stderr lines (?lines=N)
func (h *Handlers) AgentOutput(c *gin.Context) {
	n, err := linesParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	agentID := paramAgentID(c)
	lines, err := h.agents.Output(agentID, n)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    agentID,
		"lines": lines,
	})
}

func (h *Handlers) transition(c *gin.Context, op func(id.AgentID) error) {
	agentID := paramAgentID(c)
	if err := op(agentID); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondAgent(c, http.StatusOK, agentID)
}

func (h *Handlers) respondAgent(c *gin.Context, code int, agentID id.AgentID) {
	a, err := h.agents.Get(agentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(code, a)
}

func paramAgentID(c *gin.Context) id.AgentID {
	return id.AgentID(c.Param("id"))
}

func runningCount(agents []agent.Agent) int {
	n := 0
	for _, a := range agents {
		if a.Status == agent.StatusRunning {
			n++
		}
	}
	return n
}
