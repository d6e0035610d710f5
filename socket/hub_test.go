package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reviewdraft/internal/draft/lifecycle"
	"reviewdraft/internal/draft/model"
	"reviewdraft/internal/draft/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Hub, *repository.MemoryStore, string) {
	t.Helper()
	st := repository.NewMemoryStore("review_draft_", repository.WithLatency(repository.Latency{}))
	hub := NewHub(Deps{
		Store:     st,
		Decisions: st,
		Config:    lifecycle.Config{Debounce: 50 * time.Millisecond, FlushInterval: time.Hour},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// For simplicity, we'll hardcode the user ID for tests.
		ServeWs(hub, w, r, r.URL.Query().Get("user_id"))
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hub.done
	})
	return hub, st, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?user_id="+userID, nil)
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readMessage reads one message with a timeout so tests cannot hang.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal WSMessage JSON")
	return msg
}

func waitSnapshot(t *testing.T, conn *websocket.Conn, cond func(model.Snapshot) bool) model.Snapshot {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type != StatusType {
			continue
		}
		var snap model.Snapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		if cond(snap) {
			return snap
		}
	}
}

func TestEditingSessionOverWebSocket(t *testing.T) {
	hub, st, wsURL := newTestServer(t)
	conn := dial(t, wsURL, "supervisor-1")

	send(t, conn, WSMessage{Type: OpenType, RecordID: "S0077"})
	snap := waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseEditing })
	assert.Equal(t, "S0077", snap.RecordID)
	assert.Equal(t, model.StatusUnsaved, snap.Status)
	assert.Equal(t, "Unsaved", snap.Label.Text)

	editor, ok := hub.Editor("S0077")
	require.True(t, ok)
	assert.Equal(t, "supervisor-1", editor)

	send(t, conn, WSMessage{Type: EditType, Content: "income proof verified"})
	send(t, conn, WSMessage{Type: BlurType})
	snap = waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Status == model.StatusSaved })
	require.NotNil(t, snap.UpdatedAt)

	d, err := st.Load(context.Background(), "S0077")
	require.NoError(t, err)
	assert.Equal(t, "income proof verified", d.Content)

	send(t, conn, WSMessage{Type: FinalizeType, Decision: model.DecisionApprove})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseClosed })

	d, err = st.Load(context.Background(), "S0077")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, []repository.RecordedDecision{
		{RecordID: "S0077", Decision: model.DecisionApprove, Notes: "income proof verified"},
	}, st.Decisions())

	_, ok = hub.Editor("S0077")
	assert.False(t, ok)
}

func TestDebounceSavesOverWebSocket(t *testing.T) {
	_, st, wsURL := newTestServer(t)
	conn := dial(t, wsURL, "supervisor-1")

	send(t, conn, WSMessage{Type: OpenType, RecordID: "A"})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseEditing })

	send(t, conn, WSMessage{Type: EditType, Content: "x"})
	send(t, conn, WSMessage{Type: EditType, Content: "xy"})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Status == model.StatusSaved })

	d, err := st.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "xy", d.Content)
}

func TestSecondEditorIsRejected(t *testing.T) {
	_, _, wsURL := newTestServer(t)
	first := dial(t, wsURL, "supervisor-1")
	second := dial(t, wsURL, "supervisor-2")

	send(t, first, WSMessage{Type: OpenType, RecordID: "A"})
	waitSnapshot(t, first, func(s model.Snapshot) bool { return s.Phase == model.PhaseEditing })

	send(t, second, WSMessage{Type: OpenType, RecordID: "A"})
	msg := readMessage(t, second)
	assert.Equal(t, ErrorType, msg.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, "another session")
}

func TestCloseFlowOverWebSocket(t *testing.T) {
	_, st, wsURL := newTestServer(t)
	conn := dial(t, wsURL, "supervisor-1")

	send(t, conn, WSMessage{Type: OpenType, RecordID: "A"})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseEditing })
	send(t, conn, WSMessage{Type: EditType, Content: "come back later"})
	send(t, conn, WSMessage{Type: CloseType})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseConfirmExit })

	send(t, conn, WSMessage{Type: ConfirmCloseType})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseClosed })

	d, err := st.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "come back later", d.Content)
}

func TestDisconnectFlushesUnsavedContent(t *testing.T) {
	_, st, wsURL := newTestServer(t)
	conn := dial(t, wsURL, "supervisor-1")

	send(t, conn, WSMessage{Type: OpenType, RecordID: "A"})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Phase == model.PhaseEditing })
	send(t, conn, WSMessage{Type: EditType, Content: "tab closed mid-sentence"})
	waitSnapshot(t, conn, func(s model.Snapshot) bool { return s.Content == "tab closed mid-sentence" })
	conn.Close()

	require.Eventually(t, func() bool {
		d, err := st.Load(context.Background(), "A")
		return err == nil && d != nil && d.Content == "tab closed mid-sentence"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsBadMessages(t *testing.T) {
	_, _, wsURL := newTestServer(t)
	conn := dial(t, wsURL, "supervisor-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, ErrorType, readMessage(t, conn).Type)

	send(t, conn, WSMessage{Type: FinalizeType, Decision: "escalate"})
	assert.Equal(t, ErrorType, readMessage(t, conn).Type)

	send(t, conn, WSMessage{Type: "CURSOR"})
	assert.Equal(t, ErrorType, readMessage(t, conn).Type)
}
