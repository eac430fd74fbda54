// ABOUTME: REST handlers for authentication and conversation operations
// ABOUTME: JSON:API request/response envelopes over the message pipeline

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/2389/parley/internal/conversation"
)

// AuthenticateRequest is the JSON:API body for POST /authenticate.
type AuthenticateRequest struct {
	Data struct {
		Attributes struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"attributes"`
	} `json:"data"`
}

// StartConversationRequest is the JSON:API body for POST /conversations.
type StartConversationRequest struct {
	Data struct {
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

// AppendMessageRequest is the JSON:API body for POST /conversations/{id}.
type AppendMessageRequest struct {
	Data struct {
		Attributes struct {
			Text string `json:"text"`
		} `json:"attributes"`
	} `json:"data"`
}

// handleAuthenticate handles POST /authenticate. Success returns a bearer
// token in the meta document.
func (g *Gateway) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
		return
	}

	_, token, err := g.gate.Authenticate(r.Context(), req.Data.Attributes.Username, req.Data.Attributes.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MetaDocument{
		Meta: map[string]any{"token": token},
	})
}

// handleListConversations handles GET /conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	convs, err := g.service.ListConversations(r.Context(), user)
	if err != nil {
		g.logger.Error("listing conversations failed", "user_id", user.ID, "error", err)
		writeDomainError(w, err)
		return
	}

	resources := make([]conversation.ConversationResource, len(convs))
	for i, conv := range convs {
		resources[i] = conversation.FormatConversation(conv)
	}
	writeJSON(w, http.StatusOK, DataDocument{Data: resources})
}

// handleGetConversation handles GET /conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	conversationID := r.PathValue("id")

	conv, err := g.service.GetConversation(r.Context(), user, conversationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DataDocument{Data: conversation.FormatConversation(conv)})
}

// handleStartConversation handles POST /conversations.
func (g *Gateway) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
		return
	}

	conv, err := g.service.StartConversation(r.Context(), user, req.Data.Attributes.Name)
	if err != nil {
		g.logger.Error("starting conversation failed", "user_id", user.ID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DataDocument{Data: conversation.FormatConversation(conv)})
}

// handleAppendMessage handles POST /conversations/{id}. The created message
// is broadcast before the response is written; the deferred reply is a side
// effect the response does not wait for.
func (g *Gateway) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	conversationID := r.PathValue("id")

	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
		return
	}

	msg, err := g.service.AppendMessage(r.Context(), user, conversationID, req.Data.Attributes.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DataDocument{Data: conversation.FormatMessage(msg)})
}
