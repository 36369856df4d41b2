package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, srv
}

func TestHub_PublishReachesClient(t *testing.T) {
	hub := NewHub([]string{"*"}, 0, zap.NewNop())
	conn, _ := dialHub(t, hub)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: ItemSold, StockCode: "TT-1", Data: map[string]int{"quantity": 2}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var got map[string]interface{}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "item.sold", got["type"])
	assert.Equal(t, "TT-1", got["stock_code"])
	assert.NotEmpty(t, got["timestamp"])
	assert.EqualValues(t, 2, got["data"].(map[string]interface{})["quantity"])
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil, 0, zap.NewNop())
	conn, srv := dialHub(t, hub)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(nil, 1, zap.NewNop())

	slow := &client{send: make(chan []byte, 1)}
	require.True(t, hub.register(slow))

	hub.Publish(Event{Type: ItemCreated, StockCode: "A"})
	assert.Equal(t, 1, hub.Clients())

	hub.Publish(Event{Type: ItemCreated, StockCode: "B"})
	assert.Equal(t, 0, hub.Clients())

	_, open := <-slow.send
	assert.True(t, open)
	_, open = <-slow.send
	assert.False(t, open)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"http://localhost:3000"}, 0, zap.NewNop())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
