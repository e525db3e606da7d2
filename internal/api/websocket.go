package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/processing"
)

// WebSocket message types for the job feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeJob       = "job"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// wsWriteTimeout bounds a single write to a slow client.
const wsWriteTimeout = 10 * time.Second

// WSMessage is one frame of the job feed.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocketHandler pushes processing job snapshots to the owner's browser.
type WebSocketHandler struct {
	jobs     JobManager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new job feed handler. allowedOrigins lists the
// origins allowed to connect; "*" or an empty list allows any.
func NewWebSocketHandler(jobs JobManager, allowedOrigins []string, logger *zap.Logger) JobStreamHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		jobs:   jobs,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// wsConn serializes writes; gorilla connections support one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(msg)
}

// HandleJobStream upgrades the connection and forwards every update of the
// caller's processing jobs until the client disconnects.
func (h *WebSocketHandler) HandleJobStream(c echo.Context) error {
	user := userID(c)
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{conn: ws}
	log := h.logger.With(zap.String("user_id", user))
	log.Debug("job feed connected")

	updates, unsubscribe := h.jobs.Subscribe(user)
	defer unsubscribe()

	if err := conn.send(WSMessage{Type: MsgTypeConnected}); err != nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(conn, log)
	}()

	for {
		select {
		case <-done:
			log.Debug("job feed disconnected")
			return nil
		case job, ok := <-updates:
			if !ok {
				return nil
			}
			if err := h.sendJob(conn, job); err != nil {
				log.Debug("job feed write failed", zap.Error(err))
				ws.Close()
				<-done
				return nil
			}
		}
	}
}

func (h *WebSocketHandler) sendJob(conn *wsConn, job processing.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return conn.send(WSMessage{Type: MsgTypeJob, ID: job.ID, Payload: payload})
}

// readLoop answers pings and returns when the client goes away.
func (h *WebSocketHandler) readLoop(conn *wsConn, log *zap.Logger) {
	for {
		var msg WSMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("job feed connection error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			_ = conn.send(WSMessage{Type: MsgTypePong})
		default:
			payload, _ := json.Marshal(map[string]string{"message": "Unknown message type: " + msg.Type})
			_ = conn.send(WSMessage{Type: MsgTypeError, Payload: payload})
		}
	}
}
