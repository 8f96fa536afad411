package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/sandbox"
	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware decides which origins reach the handler
	},
}

// Message is a client request
type Message struct {
	Type   string `json:"type"` // execute, ping
	Script string `json:"script,omitempty"`
	HTML   string `json:"html,omitempty"`
	Select string `json:"select,omitempty"`
}

// Handler streams guest executions over WebSocket
type Handler struct {
	executor  sandbox.Executor
	logger    *zap.Logger
	frames    *utils.JSONSizeValidator
	maxScript int
	timeout   time.Duration
}

// NewHandler creates a new WebSocket handler. timeout bounds one execution
// including the wait for a sandbox.
func NewHandler(executor sandbox.Executor, logger *zap.Logger, maxScript int, timeout time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		executor:  executor,
		logger:    logger.Named("ws"),
		frames:    utils.NewJSONSizeValidator(utils.MaxJSONSize),
		maxScript: maxScript,
		timeout:   timeout,
	}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(utils.MaxJSONSize))

	reqCtx := c.Request.Context()
	session := uuid.NewString()
	logger := h.logger.With(zap.String("session_id", session))
	logger.Debug("stream opened")
	defer logger.Debug("stream closed")

	h.send(conn, map[string]interface{}{
		"type":       "system",
		"message":    "connected",
		"session_id": session,
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		if err := h.frames.ValidateJSON(data); err != nil {
			h.sendError(conn, "malformed message: "+err.Error())
			continue
		}
		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}

		switch msg.Type {
		case "execute":
			h.handleExecute(reqCtx, conn, msg)
		case "ping":
			h.send(conn, map[string]interface{}{"type": "pong"})
		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

func (h *Handler) handleExecute(reqCtx context.Context, conn *websocket.Conn, msg Message) {
	if err := utils.ValidateScript([]byte(msg.Script), h.maxScript); err != nil {
		h.sendError(conn, err.Error())
		return
	}

	var dom *sandbox.DOM
	if msg.HTML != "" {
		parsed, err := sandbox.ParseHTML([]byte(msg.HTML), sandbox.HTMLOptions{Select: msg.Select})
		if err != nil {
			h.sendError(conn, err.Error())
			return
		}
		dom = parsed
	}

	ctx, cancel := context.WithTimeout(reqCtx, h.timeout)
	defer cancel()

	h.send(conn, map[string]interface{}{
		"type":      "execution_start",
		"timestamp": time.Now().Unix(),
	})

	// Console entries are written from the executing goroutine, which is
	// this one, so writes to conn never overlap.
	result, err := h.executor.ExecuteStream(ctx, msg.Script, dom, func(entry sandbox.LogEntry) {
		h.send(conn, map[string]interface{}{
			"type":    "console",
			"level":   entry.Level,
			"message": entry.Message,
		})
	})
	if err != nil {
		reply := map[string]interface{}{
			"type":      "error",
			"message":   err.Error(),
			"timestamp": time.Now().Unix(),
		}
		if result != nil {
			reply["execution_id"] = result.ExecutionID
		}
		h.send(conn, reply)
		return
	}

	h.send(conn, map[string]interface{}{
		"type":         "result",
		"execution_id": result.ExecutionID,
		"value":        result.Value,
		"dom_changes":  result.DOMChanges,
		"duration_ms":  float64(result.Duration) / float64(time.Millisecond),
	})
	h.send(conn, map[string]interface{}{
		"type":      "complete",
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) send(conn *websocket.Conn, data interface{}) error {
	payload, err := sonic.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) error {
	return h.send(conn, map[string]interface{}{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
