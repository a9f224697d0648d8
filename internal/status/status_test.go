package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xboxbt-driver/internal/device"
)

type fakeSource struct {
	mu       sync.Mutex
	statuses []device.Status
}

func (f *fakeSource) Statuses() []device.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Status(nil), f.statuses...)
}

type fixture struct {
	hub *Hub
	b   *Broadcaster
	ts  *httptest.Server
}

func start(t *testing.T) *fixture {
	t.Helper()
	src := &fakeSource{statuses: []device.Status{{ID: 0, Name: "Xbox Wireless Controller", Quirks: "none"}}}
	ctx, cancel := context.WithCancel(context.Background())

	f := &fixture{hub: NewHub(nil)}
	f.b = NewBroadcaster(f.hub, src, nil)
	go f.hub.Run(ctx)
	go f.b.Run(ctx)
	f.ts = httptest.NewServer(NewServer(f.hub, f.b, src, "", nil).Handler())

	t.Cleanup(func() {
		cancel()
		f.ts.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestInitialState(t *testing.T) {
	f := start(t)
	conn := f.dial(t)

	msg := read(t, conn)
	assert.Equal(t, "full", msg.Type)
	require.Len(t, msg.Controllers, 1)
	assert.Equal(t, "Xbox Wireless Controller", msg.Controllers[0].Name)
	assert.NotZero(t, msg.Seq)
}

func TestEventBroadcast(t *testing.T) {
	f := start(t)
	conn := f.dial(t)
	read(t, conn)
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	f.b.Observe(device.Event{Kind: device.EventProfile, ID: 0, Profile: 2})
	msg := read(t, conn)
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, device.EventProfile, msg.Event.Kind)
	assert.Equal(t, uint8(2), msg.Event.Profile)
	assert.Len(t, msg.Controllers, 1)
}

func TestSelectController(t *testing.T) {
	f := start(t)
	conn := f.dial(t)
	read(t, conn)
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "select", Controller: 3}))
	msg := read(t, conn)
	assert.Equal(t, "selected", msg.Type)
	require.NotNil(t, msg.Controller)
	assert.Equal(t, 3, *msg.Controller)

	f.b.Observe(device.Event{Kind: device.EventBattery, ID: 0})
	f.b.Observe(device.Event{Kind: device.EventConnected, ID: 3})
	msg = read(t, conn)
	require.NotNil(t, msg.Event)
	assert.Equal(t, 3, msg.Event.ID)
	assert.Equal(t, device.EventConnected, msg.Event.Kind)
}

func TestStatusEndpoint(t *testing.T) {
	f := start(t)

	resp, err := http.Get(f.ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got []device.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "none", got[0].Quirks)

	resp2, err := http.Post(f.ts.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestHubShutdownClosesClients(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	b := NewBroadcaster(hub, src, nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	ts := httptest.NewServer(NewServer(hub, b, src, "", nil).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	read(t, conn)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestObserveDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(NewHub(nil), &fakeSource{}, nil)
	for i := 0; i < eventBuffer+5; i++ {
		b.Observe(device.Event{Kind: device.EventBattery})
	}
	assert.Equal(t, uint64(5), b.Dropped())
}
