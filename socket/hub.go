package socket

import (
	"context"
	"encoding/json"
	"sync"

	"reviewdraft/internal/draft/lifecycle"
	"reviewdraft/internal/draft/model"
	"reviewdraft/internal/draft/repository"
	"reviewdraft/internal/draft/scheduler"
	"reviewdraft/pkg/logger"
	"reviewdraft/pkg/metrics"
)

const (
	OpenType         = "OPEN"          // Editing surface became visible
	EditType         = "EDIT"          // Review comment text changed
	BlurType         = "BLUR"          // Textarea lost focus
	CloseType        = "CLOSE"         // User asked to leave the surface
	ConfirmCloseType = "CONFIRM_CLOSE" // User confirmed the "draft preserved" prompt
	CancelCloseType  = "CANCEL_CLOSE"  // User went back to editing
	FinalizeType     = "FINALIZE"      // Approve or reject
	StatusType       = "STATUS"        // Server -> client snapshot
	ErrorType        = "ERROR"         // Server -> client rejection
)

type WSMessage struct {
	Type     string          `json:"type"`
	RecordID string          `json:"record_id,omitempty"`
	Content  string          `json:"content,omitempty"`
	Decision model.Decision  `json:"decision,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Deps are what every editing session's controller is built from.
type Deps struct {
	Store     repository.Store
	Decisions repository.DecisionRecorder
	Config    lifecycle.Config
	Metrics   *metrics.Metrics
	Clock     scheduler.Clock
}

// Hub tracks connected editing surfaces and which of them is editing which
// record. Only one surface may edit a record at a time.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client

	deps    Deps
	mu      sync.Mutex
	editors map[string]*Client // recordID -> client editing it
	done    chan struct{}
}

func NewHub(deps Deps) *Hub {
	if deps.Clock == nil {
		deps.Clock = scheduler.RealClock()
	}
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		deps:       deps,
		editors:    make(map[string]*Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.Clients[client] = true
			logger.Sugar.Infof("Editing surface connected: user %s, session %s", client.UserID, client.Controller.ID())

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				h.release(client, "")
				close(client.Send)
				logger.Sugar.Infof("Editing surface disconnected: user %s, session %s", client.UserID, client.Controller.ID())
			}

		case <-ctx.Done():
			// Closing the connections makes every readPump exit, which flushes
			// and stops its controller. Run returns once those flushes are done.
			for client := range h.Clients {
				client.Conn.Close()
			}
			for client := range h.Clients {
				<-client.Controller.Done()
			}
			return
		}
	}
}

// claim marks c as the editor of recordID. It fails if another surface holds it.
func (h *Hub) claim(recordID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if holder, ok := h.editors[recordID]; ok && holder != c {
		return false
	}
	for id, holder := range h.editors {
		if holder == c && id != recordID {
			delete(h.editors, id)
		}
	}
	h.editors[recordID] = c
	return true
}

// release drops c's claim on recordID, or on every record when recordID is empty.
func (h *Hub) release(c *Client, recordID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, holder := range h.editors {
		if holder == c && (recordID == "" || id == recordID) {
			delete(h.editors, id)
		}
	}
}

// Editor reports which user is editing recordID, if any.
func (h *Hub) Editor(recordID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.editors[recordID]
	if !ok {
		return "", false
	}
	return c.UserID, true
}

func (h *Hub) newController(listener lifecycle.Listener) *lifecycle.Controller {
	opts := []lifecycle.Option{
		lifecycle.WithClock(h.deps.Clock),
		lifecycle.WithMetrics(h.deps.Metrics),
		lifecycle.WithListener(listener),
		lifecycle.WithLogger(logger.Log),
	}
	if h.deps.Decisions != nil {
		opts = append(opts, lifecycle.WithDecisionRecorder(h.deps.Decisions))
	}
	return lifecycle.New(h.deps.Store, h.deps.Config, opts...)
}
