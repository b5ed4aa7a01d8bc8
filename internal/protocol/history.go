package protocol

import (
	"fmt"
	"time"

	"github.com/whisper/chat-sync/internal/chat"
)

// HistoryMessage is one entry of a history endpoint response. Private chats
// name the sender in "sender", groups in "sender_name".
type HistoryMessage struct {
	ID         chat.MessageID `json:"id"`
	SenderID   ID             `json:"sender_id"`
	ReceiverID ID             `json:"receiver_id"`
	Sender     string         `json:"sender"`
	SenderName string         `json:"sender_name"`
	Content    string         `json:"content"`
	Timestamp  string         `json:"timestamp"`
	IsRead     bool           `json:"is_read"`
}

// HistoryResponse is the body of GET /chats/{id}/history and
// GET /groups/{id}/history.
type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
	Error    string           `json:"error,omitempty"`
}

// Timestamp layouts in the order they are tried. Values without a zone
// are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads the ISO-8601 timestamps of live events as well as the
// "YYYY-MM-DD HH:MM:SS" form used by history responses.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("protocol: unrecognized timestamp %q", s)
}

// ToMessage converts a history entry into a log message.
func (h HistoryMessage) ToMessage() (chat.Message, error) {
	ts, err := ParseTimestamp(h.Timestamp)
	if err != nil {
		return chat.Message{}, err
	}
	name := h.SenderName
	if name == "" {
		name = h.Sender
	}
	return chat.Message{
		ID:         h.ID,
		SenderID:   string(h.SenderID),
		SenderName: name,
		Content:    h.Content,
		Timestamp:  ts,
		IsRead:     h.IsRead,
	}, nil
}

// ToMessages converts the whole response. Entries without an id or with an
// unreadable timestamp are skipped and counted in dropped.
func (r HistoryResponse) ToMessages() (msgs []chat.Message, dropped int) {
	msgs = make([]chat.Message, 0, len(r.Messages))
	for _, h := range r.Messages {
		if h.ID == "" {
			dropped++
			continue
		}
		m, err := h.ToMessage()
		if err != nil {
			dropped++
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, dropped
}

// ToMessage converts a private-chat push into a log message.
func (e NewMessageEvent) ToMessage() (chat.Message, error) {
	ts, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:             e.MessageID,
		ConversationID: string(e.ConversationID),
		SenderID:       string(e.SenderID),
		Content:        e.Message,
		Timestamp:      ts,
		IsRead:         e.IsRead,
	}, nil
}

// ToMessage converts a group push into a log message. The group id is the
// conversation id on the client side.
func (e NewGroupMessageEvent) ToMessage() (chat.Message, error) {
	ts, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:             e.MessageID,
		ConversationID: string(e.GroupID),
		SenderID:       string(e.SenderID),
		SenderName:     e.SenderName,
		Content:        e.Content,
		Timestamp:      ts,
	}, nil
}
