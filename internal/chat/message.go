package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageID is the server-assigned identity of a message. It is unique
// within a conversation and opaque to the client; the wire may carry it as a
// JSON string or number.
type MessageID string

// UnmarshalJSON accepts both `"abc"` and `42`.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("chat: message id: %w", err)
		}
		*id = MessageID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chat: message id: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// Compare orders two ids. Decimal integer ids compare numerically so that
// "9" sorts before "10"; anything else compares lexicographically.
func (id MessageID) Compare(other MessageID) int {
	a, b := string(id), string(other)
	if isDigits(a) && isDigits(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Message is a single entry of a conversation's log.
type Message struct {
	ID             MessageID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"` // group messages only
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`

	// PendingDelete is set while a delete request is in flight.
	PendingDelete bool `json:"pending_delete,omitempty"`
}

// Before reports whether m sorts before other: timestamp ascending, message
// id as the tie-break.
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID.Compare(other.ID) < 0
}
