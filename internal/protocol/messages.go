// Package protocol defines the live event and outbound intent payloads
// exchanged with the chat backend. Every message is a JSON object carrying a
// "type" discriminator next to its flat payload fields, whether it travels
// over NATS or a WebSocket.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/whisper/chat-sync/internal/chat"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server intent types.
const (
	TypeSendMessage      = "send_message"
	TypeSendGroupMessage = "send_group_message"
	TypeMarkMessageRead  = "mark_message_read"
)

// Server -> Client event types.
const (
	TypeNewMessage         = "new_message"
	TypeNewGroupMessage    = "new_group_message"
	TypeChatHistoryUpdate  = "chat_history_update"
	TypeGroupHistoryUpdate = "group_history_update"
	TypeLastMessageUpdate  = "last_message_update"
	TypeStatusUpdate       = "status_update"
	TypeError              = "error"
)

// ---------------------------------------------------------------------------
// IDs arrive as JSON strings or numbers depending on the endpoint
// ---------------------------------------------------------------------------

// ID is a conversation, group or user identifier in canonical string form.
type ID string

// UnmarshalJSON accepts `"7"`, `7` and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("protocol: id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("protocol: id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// ---------------------------------------------------------------------------
// Envelope: first pass that extracts the type discriminator
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// NewMessageEvent is a private-chat message pushed to both participants.
type NewMessageEvent struct {
	Type            string         `json:"type"`
	ConversationID  ID             `json:"conversation_id"`
	MessageID       chat.MessageID `json:"message_id"`
	SenderID        ID             `json:"sender_id"`
	Message         string         `json:"message"`
	Timestamp       string         `json:"timestamp"`
	IsRead          bool           `json:"isRead"`
	LastMessageDate string         `json:"last_message_date,omitempty"`
}

// NewGroupMessageEvent is a group message pushed to all members.
type NewGroupMessageEvent struct {
	Type           string         `json:"type"`
	GroupID        ID             `json:"group_id"`
	ConversationID ID             `json:"conversation_id,omitempty"`
	MessageID      chat.MessageID `json:"message_id"`
	SenderID       ID             `json:"sender_id"`
	SenderName     string         `json:"sender_name"`
	Content        string         `json:"content"`
	Timestamp      string         `json:"timestamp"`
}

// ChatHistoryUpdateEvent tells listeners a private chat changed server-side,
// for example after a deletion.
type ChatHistoryUpdateEvent struct {
	Type           string `json:"type"`
	ConversationID ID     `json:"conversation_id"`
}

// GroupHistoryUpdateEvent is the group counterpart of ChatHistoryUpdateEvent.
type GroupHistoryUpdateEvent struct {
	Type           string `json:"type"`
	GroupID        ID     `json:"group_id"`
	ConversationID ID     `json:"conversation_id,omitempty"`
}

// LastMessageUpdateEvent carries the chat list preview of a conversation.
type LastMessageUpdateEvent struct {
	Type            string `json:"type"`
	ConversationID  ID     `json:"conversation_id"`
	LastMessage     string `json:"last_message"`
	LastMessageDate string `json:"last_message_date"`
}

// StatusUpdateEvent reports a user going online or offline.
type StatusUpdateEvent struct {
	Type   string `json:"type"`
	UserID ID     `json:"user_id"`
	Status string `json:"status"`
}

// ErrorEvent is a server-side failure reported over the live channel.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// Client -> Server intent structs
// ---------------------------------------------------------------------------

// SendMessageIntent posts a private message. ReceiverID is nil for group
// conversations addressed through this intent.
type SendMessageIntent struct {
	Type           string  `json:"type"`
	ClientID       string  `json:"client_id,omitempty"`
	ConversationID string  `json:"conversation_id"`
	SenderID       string  `json:"sender_id"`
	ReceiverID     *string `json:"receiver_id"`
	Message        string  `json:"message"`
}

// SendGroupMessageIntent posts a group message.
type SendGroupMessageIntent struct {
	Type           string `json:"type"`
	ClientID       string `json:"client_id,omitempty"`
	ConversationID string `json:"conversation_id"`
	GroupID        string `json:"group_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
}

// MarkMessageReadIntent is the read receipt for one message.
type MarkMessageReadIntent struct {
	Type      string         `json:"type"`
	ClientID  string         `json:"client_id,omitempty"`
	MessageID chat.MessageID `json:"message_id"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerEvent parses raw bytes into a typed server event. It returns
// the event type, the decoded struct (by value) and any parse error. Unknown
// types are reported as an error together with the type string.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		ev  interface{}
		err error
	)

	switch env.Type {
	case TypeNewMessage:
		var m NewMessageEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeNewGroupMessage:
		var m NewGroupMessageEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeChatHistoryUpdate:
		var m ChatHistoryUpdateEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeGroupHistoryUpdate:
		var m GroupHistoryUpdateEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeLastMessageUpdate:
		var m LastMessageUpdateEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeStatusUpdate:
		var m StatusUpdateEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeError:
		var m ErrorEvent
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown server event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, ev, nil
}

// NewIntent JSON-encodes an outbound intent. The type field is forced to
// msgType and a client_id correlation id is generated when the payload has
// none.
func NewIntent(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType
	if id, _ := m["client_id"].(string); id == "" {
		m["client_id"] = uuid.New().String()
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal intent: %w", err)
	}
	return out, nil
}

// IntentType extracts the "type" field of an encoded intent.
func IntentType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
