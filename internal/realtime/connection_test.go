// ABOUTME: Tests for the websocket connection wrapper
// ABOUTME: Uses an httptest server with a real websocket upgrade

package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialTestConnection spins up a server-side Connection and returns the client
// end of the socket.
func dialTestConnection(t *testing.T, userID string) (*Connection, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *Connection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(userID, ws)
		conn.Start()
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { conn.Close(websocket.CloseNormalClosure, "test done") })
		return conn, client
	case <-time.After(time.Second):
		t.Fatal("server connection never established")
		return nil, nil
	}
}

func TestConnection_SendDeliversToClient(t *testing.T) {
	conn, client := dialTestConnection(t, "user-1")

	require.NoError(t, conn.Send([]byte(`{"event":"message.created"}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"message.created"}`, string(payload))
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	conn, _ := dialTestConnection(t, "user-1")

	conn.Close(websocket.CloseNormalClosure, "bye")
	assert.ErrorIs(t, conn.Send([]byte("late")), ErrConnectionClosed)
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn, _ := dialTestConnection(t, "user-1")

	conn.Close(websocket.CloseNormalClosure, "first")
	conn.Close(websocket.CloseNormalClosure, "second")
}

func TestConnection_IdentityAccessors(t *testing.T) {
	conn, _ := dialTestConnection(t, "user-42")
	other, _ := dialTestConnection(t, "user-42")

	assert.Equal(t, "user-42", conn.UserID())
	assert.NotEmpty(t, conn.ID())
	assert.NotEqual(t, conn.ID(), other.ID())
}
