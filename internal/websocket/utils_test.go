package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestServer upgrades one connection, hands it to serve, and returns the
// client side.
func dialTestServer(t *testing.T, serve func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWriteErrorFrame(t *testing.T) {
	client := dialTestServer(t, func(conn *websocket.Conn) {
		assert.NoError(t, WriteError(conn, `unknown action "resume"`))
	})

	var frame ErrorResponse
	require.NoError(t, client.ReadJSON(&frame))
	assert.Equal(t, EventError, frame.Event)
	assert.Equal(t, `unknown action "resume"`, frame.Error)
}

func TestCloseNormalCarriesReason(t *testing.T) {
	client := dialTestServer(t, func(conn *websocket.Conn) {
		CloseNormal(conn, "time is up")
	})

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "time is up", closeErr.Text)
}
