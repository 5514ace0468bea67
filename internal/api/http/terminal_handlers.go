package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/synapse/internal/domain/grid"
	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

// closeWait bounds how long DELETE waits for teardown before answering.
const closeWait = 2 * time.Second

// CreateTerminalRequest opens a new session on the grid
type CreateTerminalRequest struct {
	Shell string   `json:"shell"`
	Args  []string `json:"args"`
	Dir   string   `json:"dir"`
	Rows  int      `json:"rows" binding:"omitempty,min=1,max=1000"`
	Cols  int      `json:"cols" binding:"omitempty,min=1,max=1000"`
}

// InputRequest carries keystrokes for a session
type InputRequest struct {
	Data string `json:"data" binding:"required"`
}

// ResizeRequest changes a session's window size
type ResizeRequest struct {
	Rows int `json:"rows" binding:"required,min=1,max=1000"`
	Cols int `json:"cols" binding:"required,min=1,max=1000"`
}

// ListTerminals lists sessions in grid order with the current layout
func (h *Handlers) ListTerminals(c *gin.Context) {
	ids := h.grid.IDs()
	infos := make([]terminal.Info, 0, len(ids))
	for _, sessionID := range ids {
		if session, ok := h.terminals.Get(sessionID); ok {
			infos = append(infos, session.Info())
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"terminals": infos,
		"layout":    grid.LayoutFor(len(ids)),
	})
}

// CreateTerminal opens a session and appends it to the grid
func (h *Handlers) CreateTerminal(c *gin.Context) {
	var req CreateTerminalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	sessionID, err := h.grid.Add(c.Request.Context(), terminal.Options{
		Shell: req.Shell,
		Args:  req.Args,
		Dir:   req.Dir,
		Rows:  req.Rows,
		Cols:  req.Cols,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{
		"id":     sessionID,
		"layout": h.grid.Layout(),
	}
	if session, ok := h.terminals.Get(sessionID); ok {
		resp["terminal"] = session.Info()
	}
	c.JSON(http.StatusCreated, resp)
}

// DeleteTerminal removes a session from the grid and closes it. The
// response reports whether teardown finished within the wait window.
func (h *Handlers) DeleteTerminal(c *gin.Context) {
	sessionID := id.SessionID(c.Param("id"))

	done, ok := h.grid.Remove(sessionID)
	if !ok {
		var err error
		done, err = h.terminals.Close(sessionID)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}

	closed := false
	select {
	case <-done:
		closed = true
	case <-time.After(closeWait):
	case <-c.Request.Context().Done():
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     sessionID,
		"closed": closed,
		"layout": h.grid.Layout(),
	})
}

// SendInput forwards keystrokes to a session
func (h *Handlers) SendInput(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := session.SendInput([]byte(req.Data)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResizeTerminal applies a new window size
func (h *Handlers) ResizeTerminal(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := session.Resize(req.Rows, req.Cols); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Info())
}

// TerminalOutput returns the most recent lines (?lines=N, default the
// display window)
func (h *Handlers) TerminalOutput(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	n, err := linesParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    session.ID(),
		"state": session.State(),
		"lines": session.Snapshot(n),
	})
}

// Transcript streams all retained output as text, compressed when the
// client accepts zstd or gzip
func (h *Handlers) Transcript(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	text := session.Transcript()
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Vary", "Accept-Encoding")
	c.Header("Content-Disposition", `attachment; filename="`+session.ID().String()+`.log"`)

	var w io.WriteCloser
	var err error
	accept := c.GetHeader("Accept-Encoding")
	switch {
	case strings.Contains(accept, "zstd"):
		c.Header("Content-Encoding", "zstd")
		w, err = zstd.NewWriter(c.Writer)
	case strings.Contains(accept, "gzip"):
		c.Header("Content-Encoding", "gzip")
		w = gzip.NewWriter(c.Writer)
	default:
		c.String(http.StatusOK, text)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
	if _, err := io.WriteString(w, text); err != nil {
		_ = c.Error(err)
	}
	if err := w.Close(); err != nil {
		_ = c.Error(err)
	}
}

// session resolves the :id parameter, writing a 404 when unknown
func (h *Handlers) session(c *gin.Context) (*terminal.Session, bool) {
	session, err := h.terminals.Lookup(id.SessionID(c.Param("id")))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return session, true
}

// linesParam parses ?lines=N; absent means 0
func linesParam(c *gin.Context) (int, error) {
	raw := c.Query("lines")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &paramError{name: "lines", value: raw}
	}
	return n, nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter: " + strconv.Quote(e.value)
}

func countIDs(rows [][]id.SessionID) int {
	n := 0
	for _, row := range rows {
		n += len(row)
	}
	return n
}
