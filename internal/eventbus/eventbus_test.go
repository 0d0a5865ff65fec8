package eventbus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newTestBusServer(t *testing.T, bus *Bus) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		unsub := bus.Subscribe(conn, 16)
		t.Cleanup(unsub)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return server, clientConn
}

func TestBusDeliversPublishedEventToSubscriber(t *testing.T) {
	bus := New(Config{BufferSize: 16, Workers: 1})
	bus.Start(context.Background())
	defer bus.Shutdown(time.Second)

	server, client := newTestBusServer(t, bus)
	defer server.Close()
	defer client.Close()

	// give the upgrade/subscribe handshake time to register
	time.Sleep(50 * time.Millisecond)

	bus.Publish(model.TaskState{Scope: model.ScopeGenerateVideo, TaskID: "t1", Status: model.TaskRunning, Progress: 42})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "t1")
	assert.Contains(t, string(msg), "42")
}

func TestPublishIncrementsStats(t *testing.T) {
	bus := New(Config{BufferSize: 4, Workers: 1})
	bus.Start(context.Background())
	defer bus.Shutdown(time.Second)

	bus.Publish(model.TaskState{TaskID: "a"})
	bus.Publish(model.TaskState{TaskID: "b"})

	time.Sleep(20 * time.Millisecond)
	stats := bus.Stats()
	assert.Equal(t, int64(2), stats.EventsPublished)
}

func TestPublishSuppressesWhenBufferFull(t *testing.T) {
	bus := New(Config{BufferSize: 1, Workers: 0})
	// no Start() call: nothing drains eventCh, so the first publish fills the buffer
	// and the second and third are suppressed
	bus.Publish(model.TaskState{TaskID: "a"})
	bus.Publish(model.TaskState{TaskID: "b"})
	bus.Publish(model.TaskState{TaskID: "c"})

	stats := bus.Stats()
	assert.Equal(t, int64(3), stats.EventsPublished)
	assert.GreaterOrEqual(t, stats.EventsSuppressed, int64(1))
}

func TestShutdownReturnsAfterWorkersDrain(t *testing.T) {
	bus := New(Config{BufferSize: 4, Workers: 2})
	bus.Start(context.Background())
	require.NoError(t, bus.Shutdown(time.Second))
}
