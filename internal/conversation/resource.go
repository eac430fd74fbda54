// ABOUTME: JSON:API resource shapes for conversations and messages
// ABOUTME: Shared by the REST surface and the broadcast wire event

package conversation

import "github.com/2389/parley/internal/store"

// MessageResource is the JSON:API resource for a message.
type MessageResource struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes MessageAttributes `json:"attributes"`
}

// MessageAttributes holds the message resource payload.
type MessageAttributes struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// ConversationResource is the JSON:API resource for a conversation. Messages
// are embedded raw (id/text/author), not as nested resources.
type ConversationResource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Attributes ConversationAttributes `json:"attributes"`
}

// ConversationAttributes holds the conversation resource payload.
type ConversationAttributes struct {
	Name     string        `json:"name"`
	Author   string        `json:"author"`
	Messages []MessageView `json:"messages"`
}

// MessageView is the embedded message shape inside a conversation resource.
type MessageView struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Event is the wire envelope pushed over the subscription channel.
type Event struct {
	Event string          `json:"event"`
	Data  MessageResource `json:"data"`
}

// EventMessageCreated is the only event kind the channel carries.
const EventMessageCreated = "message.created"

// FormatMessage converts a stored message to its resource form.
func FormatMessage(msg *store.Message) MessageResource {
	return MessageResource{
		Type: "messages",
		ID:   msg.ID,
		Attributes: MessageAttributes{
			Text:   msg.Text,
			Author: msg.Author,
		},
	}
}

// FormatConversation converts a stored conversation to its resource form.
func FormatConversation(conv *store.Conversation) ConversationResource {
	messages := make([]MessageView, len(conv.Messages))
	for i, msg := range conv.Messages {
		messages[i] = MessageView{
			ID:     msg.ID,
			Text:   msg.Text,
			Author: msg.Author,
		}
	}
	return ConversationResource{
		Type: "conversations",
		ID:   conv.ID,
		Attributes: ConversationAttributes{
			Name:     conv.Name,
			Author:   conv.OwnerID,
			Messages: messages,
		},
	}
}
