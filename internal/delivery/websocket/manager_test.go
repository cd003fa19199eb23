package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chaos-stories/internal/game"
	"chaos-stories/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startManager(t *testing.T, sessionID uuid.UUID) (*Manager, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := NewManager(zap.NewNop())
	go m.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.ServeSession(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return m, conn
}

func TestManagerDeliversSessionEvents(t *testing.T) {
	sessionID := uuid.New()
	m, conn := startManager(t, sessionID)

	m.Notify(service.GameEvent{ID: uuid.New(), SessionID: uuid.New(), Type: service.EventPhaseChanged})
	m.Notify(service.GameEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		Type:      service.EventPhaseChanged,
		From:      game.PhaseMenu,
		View:      service.View{SessionID: sessionID, State: game.State{Phase: game.PhaseCharacterSelect}},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got service.GameEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sessionID, got.SessionID)
	assert.Equal(t, game.PhaseMenu, got.From)
	assert.Equal(t, game.PhaseCharacterSelect, got.View.State.Phase)
}

func TestManagerSubscribeCommand(t *testing.T) {
	other := uuid.New()
	m, conn := startManager(t, uuid.New())

	require.NoError(t, conn.WriteJSON(clientCommand{Action: "subscribe", Topic: other.String()}))
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, c := range m.clients {
			if c.IsSubscribed(other.String()) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	m.Notify(service.GameEvent{ID: uuid.New(), SessionID: other, Type: service.EventFinished})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"playthrough_finished"`)
}

func TestManagerUnregistersClosedClients(t *testing.T) {
	m, conn := startManager(t, uuid.New())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return m.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}
