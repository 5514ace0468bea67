package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

const (
	// DefaultPollInterval is how often a stream checks its session for new output.
	DefaultPollInterval = 50 * time.Millisecond

	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Message types
const (
	TypeSnapshot = "snapshot"
	TypeOutput   = "output"
	TypeClosed   = "closed"
	TypeInput    = "input"
	TypeResize   = "resize"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is sent by the browser
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Rows int    `json:"rows,omitempty"`
	Cols int    `json:"cols,omitempty"`
}

// ServerMessage is sent to the browser
type ServerMessage struct {
	Type     string         `json:"type"`
	ID       id.SessionID   `json:"id,omitempty"`
	Lines    []string       `json:"lines,omitempty"`
	Partial  string         `json:"partial,omitempty"`
	Seq      uint64         `json:"seq,omitempty"`
	State    terminal.State `json:"state,omitempty"`
	ExitCode *int           `json:"exit_code,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Handler streams terminal sessions over WebSocket connections
type Handler struct {
	terminals    *terminal.Manager
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewHandler creates a new stream handler
func NewHandler(terminals *terminal.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		terminals:    terminals,
		metrics:      metrics,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval overrides the output polling interval
func (h *Handler) WithPollInterval(d time.Duration) *Handler {
	if d > 0 {
		h.pollInterval = d
	}
	return h
}

// Register mounts the stream route on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/terminals/:id/stream", h.HandleStream)
}

// HandleStream upgrades the request and mirrors a session's output to the
// client until either side goes away
func (h *Handler) HandleStream(c *gin.Context) {
	session, err := h.terminals.Lookup(id.SessionID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s := &stream{
		conn:    conn,
		session: session,
		handler: h,
		done:    make(chan struct{}),
	}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	h.logger.Debug("Stream attached", zap.String("session_id", session.ID().String()))
	s.run()
	h.logger.Debug("Stream detached", zap.String("session_id", session.ID().String()))
}

// stream is one attached client
type stream struct {
	conn    *websocket.Conn
	session *terminal.Session
	handler *Handler

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (s *stream) run() {
	defer s.conn.Close()

	next := s.sendSnapshot()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pump(next)
	}()

	s.readLoop()
	s.stop()
	<-pumpDone
}

func (s *stream) stop() {
	s.once.Do(func() { close(s.done) })
}

// sendSnapshot sends the display window and returns the next sequence number
func (s *stream) sendSnapshot() uint64 {
	lines, next, partial := s.session.LinesSince(0)
	if window := s.session.DisplayLines(); window > 0 && len(lines) > window {
		lines = lines[len(lines)-window:]
	}
	s.send(ServerMessage{
		Type:    TypeSnapshot,
		ID:      s.session.ID(),
		Lines:   lines,
		Partial: partial,
		Seq:     next,
		State:   s.session.State(),
	})
	return next
}

// pump forwards new output until the session ends or the client leaves
func (s *stream) pump(next uint64) {
	ticker := time.NewTicker(s.handler.pollInterval)
	defer ticker.Stop()

	var lastPartial string
	flush := func() bool {
		lines, seq, partial := s.session.LinesSince(next)
		if len(lines) == 0 && partial == lastPartial {
			return true
		}
		next, lastPartial = seq, partial
		return s.send(ServerMessage{Type: TypeOutput, Lines: lines, Partial: partial, Seq: seq})
	}

	for {
		select {
		case <-s.done:
			return
		case <-s.session.Done():
			flush()
			info := s.session.Info()
			s.send(ServerMessage{
				Type:     TypeClosed,
				ID:       info.ID,
				State:    info.State,
				ExitCode: info.ExitCode,
			})
			s.closeConn("session closed")
			return
		case <-ticker.C:
			if !flush() {
				_ = s.conn.SetReadDeadline(time.Now())
				return
			}
		}
	}
}

// readLoop handles client messages until the connection fails
func (s *stream) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.sendError("invalid message")
			continue
		}
		s.record("in", msg.Type)

		switch msg.Type {
		case TypeInput:
			if err := s.session.SendInput([]byte(msg.Data)); err != nil {
				s.sendError(err.Error())
			}
		case TypeResize:
			if err := s.session.Resize(msg.Rows, msg.Cols); err != nil {
				s.sendError(err.Error())
			}
		case TypePing:
			s.send(ServerMessage{Type: TypePong})
		default:
			s.sendError("unknown message type")
		}
	}
}

func (s *stream) sendError(message string) {
	s.send(ServerMessage{Type: TypeError, Message: message})
}

// send writes one message, reporting whether the write succeeded
func (s *stream) send(msg ServerMessage) bool {
	data, err := sonic.Marshal(msg)
	if err != nil {
		s.handler.logger.Error("Failed to encode stream message", zap.Error(err))
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	s.record("out", msg.Type)
	return true
}

func (s *stream) closeConn(reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait),
	)
	// Unblock the reader if the client never answers the close.
	_ = s.conn.SetReadDeadline(time.Now().Add(writeWait))
}

func (s *stream) record(direction, msgType string) {
	if s.handler.metrics != nil {
		s.handler.metrics.RecordWSMessage(direction, msgType)
	}
}
