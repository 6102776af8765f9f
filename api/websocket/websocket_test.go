package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

func startHub(t *testing.T, settings *WebSocketSettings) *Hub {
	t.Helper()
	hub := NewHub(settings)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSettings_Defaults(t *testing.T) {
	s := NewWebSocketSettings(nil)
	assert.Equal(t, defaultPongWait, s.PongWait)
	assert.Equal(t, defaultPongWait*9/10, s.PingPeriod)

	s = NewWebSocketSettings(&config.WebSocketConfig{
		PongTimeout:  10 * time.Second,
		PingInterval: 20 * time.Second,
		ClientBuffer: 4,
	})
	assert.Equal(t, 9*time.Second, s.PingPeriod)
	assert.Equal(t, 4, s.ClientBuffer)
}

func TestHub_RoutesByRun(t *testing.T) {
	hub := startHub(t, nil)

	all := NewClient(hub, nil, "")
	runA := NewClient(hub, nil, "run-a")
	runB := NewClient(hub, nil, "run-b")
	for _, c := range []*Client{all, runA, runB} {
		hub.Register(c)
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	hub.BroadcastToRun("run-a", []byte("a"))

	assert.Equal(t, "a", string(receive(t, all)))
	assert.Equal(t, "a", string(receive(t, runA)))
	assertNothing(t, runB)

	hub.Broadcast([]byte("everyone"))
	assert.Equal(t, "everyone", string(receive(t, runB)))
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := startHub(t, &WebSocketSettings{ClientBuffer: 1, BroadcastBuffer: 8, PongWait: time.Second, PingPeriod: time.Second})

	slow := NewClient(hub, nil, "")
	hub.Register(slow)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast([]byte("1"))
	hub.Broadcast([]byte("2"))

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_Full(t *testing.T) {
	hub := startHub(t, &WebSocketSettings{MaxConnections: 1, ClientBuffer: 1, BroadcastBuffer: 1})
	assert.False(t, hub.Full())

	hub.Register(NewClient(hub, nil, ""))
	require.Eventually(t, hub.Full, time.Second, 5*time.Millisecond)
}

func TestFromEvent(t *testing.T) {
	event := models.NewEvent(models.EventTypeModelTrained, "run-1", "trained").WithTraceID("trace")
	msg := FromEvent(event)
	require.NotNil(t, msg)
	assert.Equal(t, MessageTypeModelUpdate, msg.Type)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, "trace", msg.TraceID)

	assert.Nil(t, FromEvent(models.NewEvent(models.EventType("unknown"), "run-1", "")))
}

func TestEventBridge_Forwards(t *testing.T) {
	hub := startHub(t, nil)
	client := NewClient(hub, nil, "run-1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	events := make(chan *models.Event, 2)
	bridge := NewEventBridge(hub, events)
	bridge.Start()
	defer bridge.Stop()

	events <- models.NewEvent(models.EventTypeRunCompleted, "run-1", "done")

	var msg OutgoingMessage
	require.NoError(t, json.Unmarshal(receive(t, client), &msg))
	assert.Equal(t, MessageTypeRunCompleted, msg.Type)
	assert.Equal(t, "done", msg.Message)
}

func TestServeWebSocket_Subscribe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t, nil)

	r := gin.New()
	r.GET("/ws", ServeWebSocket(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "subscribe", RunID: "run-9"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var confirm OutgoingMessage
	require.NoError(t, conn.ReadJSON(&confirm))
	assert.Equal(t, MessageTypeSubscription, confirm.Type)
	assert.Equal(t, "run-9", confirm.RunID)

	hub.BroadcastToRun("other", NewMessage(MessageTypeRunStarted, "other", nil).JSON())
	hub.BroadcastToRun("run-9", NewMessage(MessageTypeRunStarted, "run-9", nil).JSON())

	var msg OutgoingMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "run-9", msg.RunID)
}
