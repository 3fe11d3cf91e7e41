package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"driveguardian/go-backend/internal/models"
	"driveguardian/go-backend/internal/services"
)

// Client -> server message types.
const (
	MsgPing        = "PING"
	MsgStart       = "START"
	MsgFrame       = "FRAME"
	MsgPause       = "PAUSE"
	MsgResume      = "RESUME"
	MsgRecalibrate = "RECALIBRATE"
	MsgStop        = "STOP"
	MsgError       = "ERROR"
)

// Server -> client message types.
const (
	MsgWelcome          = "WELCOME"
	MsgPong             = "PONG"
	MsgSessionStarted   = "SESSION_STARTED"
	MsgFrameResult      = "FRAME_RESULT"
	MsgFrameDropped     = "FRAME_DROPPED"
	MsgAlert            = "ALERT"
	MsgPaused           = "PAUSED"
	MsgResumed          = "RESUMED"
	MsgRecalibrating    = "RECALIBRATING"
	MsgSessionSaved     = "SESSION_SAVED"
	MsgSessionDiscarded = "SESSION_DISCARDED"
	MsgSessionFailed    = "SESSION_FAILED"
)

const (
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	pingInterval = 50 * time.Second
	sendBuffer   = 256
)

type WebSocketMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type outgoing struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type startPayload struct {
	Driver string `json:"driver,omitempty"`
}

type errorPayload struct {
	Reason string `json:"reason"`
}

type WebSocketClient struct {
	conn     *websocket.Conn
	clientID string
	send     chan outgoing
	done     chan struct{}
	once     sync.Once
	monitor  *services.Monitor
}

// enqueue never blocks; messages for a closed or saturated client are dropped.
func (c *WebSocketClient) enqueue(msg outgoing) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
	default:
	}
	return false
}

func (c *WebSocketClient) close() {
	c.once.Do(func() { close(c.done) })
}

type WebSocketClients struct {
	mu      sync.RWMutex
	clients map[string]*WebSocketClient
}

func newWebSocketClients() *WebSocketClients {
	return &WebSocketClients{clients: make(map[string]*WebSocketClient)}
}

func (wc *WebSocketClients) add(c *WebSocketClient) {
	wc.mu.Lock()
	wc.clients[c.clientID] = c
	wc.mu.Unlock()
}

func (wc *WebSocketClients) remove(id string) {
	wc.mu.Lock()
	delete(wc.clients, id)
	wc.mu.Unlock()
}

func (wc *WebSocketClients) Count() int {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return len(wc.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) message(c *WebSocketClient, typ string, payload interface{}) outgoing {
	return outgoing{Type: typ, Payload: payload, ClientID: c.clientID, Timestamp: h.now().Unix()}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := &WebSocketClient{
		conn:     conn,
		clientID: clientID,
		send:     make(chan outgoing, sendBuffer),
		done:     make(chan struct{}),
	}
	client.monitor = h.NewMonitor(clientID, services.AlerterFunc(func(_ services.AlertSource, active bool) error {
		client.enqueue(h.message(client, MsgAlert, map[string]bool{"active": active}))
		return nil
	}))

	h.clients.add(client)
	h.metrics.IncrementWebSocketConnections()
	h.logger.Info("websocket client connected", zap.String("client_id", clientID))

	go h.writePump(client)
	client.enqueue(h.message(client, MsgWelcome, map[string]interface{}{
		"message": "Connected to Drive Guardian",
		"version": Version,
	}))

	h.readPump(client)

	// a dropped connection saves a running session like STOP
	if rec, err := client.monitor.Close(context.Background()); err != nil {
		h.logger.Error("failed to save session on disconnect", zap.String("client_id", clientID), zap.Error(err))
	} else if rec != nil {
		h.logger.Info("session saved on disconnect", zap.String("client_id", clientID), zap.String("session_id", rec.ID))
	}
	h.clients.remove(clientID)
	client.close()
	conn.Close()
	h.metrics.DecrementWebSocketConnections()
	h.logger.Info("websocket client disconnected", zap.String("client_id", clientID))
}

func (h *Handler) readPump(c *WebSocketClient) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WebSocketMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.metrics.IncrementWebSocketErrors()
				h.logger.Warn("websocket read failed", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.metrics.IncrementWebSocketMessages()
		h.dispatch(c, msg)
	}
}

func (h *Handler) sendError(c *WebSocketClient, err error) {
	c.enqueue(h.message(c, MsgError, models.ErrorResponse{
		Error:     err.Error(),
		Timestamp: h.now().Unix(),
	}))
}

func (h *Handler) dispatch(c *WebSocketClient, msg WebSocketMessage) {
	switch msg.Type {
	case MsgPing:
		c.enqueue(h.message(c, MsgPong, nil))

	case MsgStart:
		var p startPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				h.metrics.IncrementWebSocketErrors()
				h.sendError(c, errors.New("invalid start payload"))
				return
			}
		}
		if p.Driver == "" {
			p.Driver = h.CurrentDriver(context.Background())
		}
		if err := c.monitor.Start(p.Driver); err != nil {
			h.sendError(c, err)
			return
		}
		c.enqueue(h.message(c, MsgSessionStarted, c.monitor.Snapshot()))

	case MsgFrame:
		var f models.LandmarkFrame
		if err := json.Unmarshal(msg.Payload, &f); err != nil {
			h.metrics.IncrementWebSocketErrors()
			h.sendError(c, errors.New("invalid frame payload"))
			return
		}
		// inline, so a later control message never overtakes this frame
		h.processFrame(c, f)

	case MsgPause:
		h.control(c, c.monitor.Pause, MsgPaused)
	case MsgResume:
		h.control(c, c.monitor.Resume, MsgResumed)
	case MsgRecalibrate:
		h.control(c, c.monitor.Recalibrate, MsgRecalibrating)

	case MsgStop:
		rec, err := c.monitor.Stop(context.Background())
		switch {
		case err != nil:
			h.sendError(c, err)
		case rec == nil:
			c.enqueue(h.message(c, MsgSessionDiscarded, nil))
		default:
			c.enqueue(h.message(c, MsgSessionSaved, rec))
		}

	case MsgError:
		var p errorPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				h.logger.Warn("invalid error payload", zap.String("client_id", c.clientID), zap.Error(err))
			}
		}
		if p.Reason == "" {
			p.Reason = "acquisition failed"
		}
		c.monitor.Fail(p.Reason)
		c.enqueue(h.message(c, MsgSessionFailed, c.monitor.Snapshot()))

	default:
		h.logger.Debug("unknown message type", zap.String("client_id", c.clientID), zap.String("type", msg.Type))
		h.sendError(c, errors.New("unknown message type: "+msg.Type))
	}
}

func (h *Handler) control(c *WebSocketClient, action func() error, reply string) {
	if err := action(); err != nil {
		h.sendError(c, err)
		return
	}
	c.enqueue(h.message(c, reply, c.monitor.Snapshot()))
}

func (h *Handler) processFrame(c *WebSocketClient, f models.LandmarkFrame) {
	res, _, err := c.monitor.ProcessFrame(f)
	switch {
	case errors.Is(err, services.ErrFrameDropped):
		c.enqueue(h.message(c, MsgFrameDropped, nil))
	case errors.Is(err, services.ErrNotActive), errors.Is(err, services.ErrPaused):
		// ignored while idle
	case err != nil:
		h.sendError(c, err)
	default:
		c.enqueue(h.message(c, MsgFrameResult, res))
	}
}

func (h *Handler) writePump(c *WebSocketClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.metrics.IncrementWebSocketErrors()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// CloseAll shuts every WebSocket connection down; sessions in progress are
// saved by their handlers as the read loops end.
func (h *Handler) CloseAll() {
	h.clients.mu.RLock()
	defer h.clients.mu.RUnlock()
	for id, c := range h.clients.clients {
		c.close()
		h.logger.Info("closed websocket connection", zap.String("client_id", id))
	}
}
