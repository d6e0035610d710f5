package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"reviewdraft/internal/draft/lifecycle"
	"reviewdraft/internal/draft/model"
	"reviewdraft/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows us to connect from the dashboard dev server
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one editing surface: a websocket plus the controller that owns its
// draft.
type Client struct {
	Hub        *Hub
	Conn       *websocket.Conn
	UserID     string
	Send       chan []byte
	Controller *lifecycle.Controller

	cancel context.CancelFunc
	mu     sync.Mutex
	record string // record currently claimed in the hub
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}
	client.Controller = hub.newController(client.onSnapshot)

	// The request context ends when this handler returns, so the controller
	// lives on its own context until the readPump exits.
	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel
	go client.Controller.Run(ctx)

	select {
	case hub.Register <- client:
	case <-hub.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// onSnapshot runs on the controller loop.
func (c *Client) onSnapshot(s model.Snapshot) {
	if s.Phase == model.PhaseClosed {
		c.mu.Lock()
		if c.record != "" {
			c.Hub.release(c, c.record)
			c.record = ""
		}
		c.mu.Unlock()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling snapshot: %v", err)
		return
	}
	c.enqueue(WSMessage{Type: StatusType, RecordID: s.RecordID, Payload: payload})
}

func (c *Client) enqueue(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s message: %v", msg.Type, err)
		return
	}
	select {
	case c.Send <- data:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping %s message.", c.UserID, msg.Type)
	}
}

func (c *Client) sendError(message string) {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	c.enqueue(WSMessage{Type: ErrorType, Payload: payload})
}

func (c *Client) open(recordID string) {
	if !c.Hub.claim(recordID, c) {
		logger.Sugar.Warnf("User %s tried to open record %s while it is being edited elsewhere", c.UserID, recordID)
		c.sendError("record is being reviewed in another session")
		return
	}
	c.mu.Lock()
	c.record = recordID
	c.mu.Unlock()
	c.Controller.Open(recordID)
}

func (c *Client) readPump() {
	defer func() {
		// Stopping the controller flushes unsaved content; it must finish
		// before the hub closes Send under the listener.
		c.cancel()
		<-c.Controller.Done()
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			c.sendError("malformed message")
			continue
		}

		switch msg.Type {
		case OpenType:
			if msg.RecordID == "" {
				c.sendError("record_id is required")
				continue
			}
			c.open(msg.RecordID)
		case EditType:
			c.Controller.Edit(msg.Content)
		case BlurType:
			c.Controller.Blur()
		case CloseType:
			c.Controller.Close()
		case ConfirmCloseType:
			c.Controller.ConfirmClose()
		case CancelCloseType:
			c.Controller.CancelClose()
		case FinalizeType:
			if !msg.Decision.Valid() {
				c.sendError("decision must be approve or reject")
				continue
			}
			c.Controller.Finalize(msg.Decision)
		default:
			logger.Sugar.Warnf("Unknown message type %q from user %s", msg.Type, c.UserID)
			c.sendError("unknown message type")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
