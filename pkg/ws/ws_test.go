package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/pkg/event"
	"github.com/simplepos/shell/pkg/ws"
)

func startHub(t *testing.T, origins ...string) (*ws.Hub, *event.Bus, string) {
	t.Helper()
	bus := event.New()
	hub := ws.NewHub(bus, origins...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitClients(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastsBusEvents(t *testing.T) {
	hub, bus, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitClients(t, hub, 1)

	bus.Emit("updater://progress", map[string]int{"downloaded": 10, "total": 100})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"updater://progress","payload":{"downloaded":10,"total":100}}`, string(msg))
}

func TestHub_InboundFramesReachBus(t *testing.T) {
	hub, bus, url := startHub(t)
	got := make(chan event.Event, 4)
	bus.Listen("ui://ready", func(e event.Event) { got <- e })

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitClients(t, hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	frame, _ := json.Marshal(event.Event{Name: "ui://ready", Payload: "till-1"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	select {
	case e := <-got:
		assert.Equal(t, "till-1", e.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, _, url := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, _, url := startHub(t, "tauri://localhost")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"tauri://localhost"}})
	require.NoError(t, err)
	conn.Close()
}
