// ABOUTME: Websocket subscription endpoint binding connections to conversations
// ABOUTME: Authorizes on connect, registers in the registry, cleans up on disconnect

package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/parley/internal/realtime"
)

const cableReadTimeout = 60 * time.Second

var cableUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The credential in the query string is the access control; origin
		// checks add nothing for non-browser clients.
		return true
	},
}

// handleCable handles GET /cable?conversationId=...&token=...
//
// The credential is resolved and ownership of the conversation verified
// before the connection enters the registry; failures close the socket with
// a policy-violation code. The channel carries no client-to-server messages:
// inbound frames are read only to observe disconnect.
func (g *Gateway) handleCable(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	token := r.URL.Query().Get("token")

	ws, err := cableUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response; just log and return.
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	if conversationID == "" || token == "" {
		closeWithPolicyViolation(ws, "Missing conversationId or token")
		return
	}

	user, err := g.gate.Resolve(r.Context(), token)
	if err != nil {
		closeWithPolicyViolation(ws, "Unauthorized or invalid conversation")
		return
	}
	if err := g.service.AuthorizeSubscription(r.Context(), user, conversationID); err != nil {
		closeWithPolicyViolation(ws, "Unauthorized or invalid conversation")
		return
	}

	conn := realtime.NewConnection(user.ID, ws)
	conn.Start()
	g.registry.Subscribe(conversationID, conn)

	g.logger.Info("subscriber connected",
		"conversation_id", conversationID,
		"user_id", user.ID,
		"connection_id", conn.ID())

	defer func() {
		g.registry.Unsubscribe(conversationID, conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
		g.logger.Info("subscriber disconnected",
			"conversation_id", conversationID,
			"connection_id", conn.ID())
	}()

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(cableReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cableReadTimeout))
	})

	// Block until the client goes away. Inbound payloads are discarded.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// closeWithPolicyViolation rejects a socket that failed validation.
func closeWithPolicyViolation(ws *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	_ = ws.Close()
}
