package gateway

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// NoticeKind classifies a notice.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
)

func (k NoticeKind) String() string {
	if k == NoticeError {
		return "error"
	}
	return "info"
}

// Notice is a dismissible message for the user.
type Notice struct {
	ID             string
	Kind           NoticeKind
	ConversationID string // empty when not tied to a conversation
	Text           string
	At             time.Time
}

// Notify adds a notice and returns it.
func (g *Gateway) Notify(kind NoticeKind, conversationID, text string) Notice {
	n := Notice{
		ID:             uuid.NewString(),
		Kind:           kind,
		ConversationID: conversationID,
		Text:           text,
		At:             g.now(),
	}
	g.notices = append(g.notices, n)
	if over := len(g.notices) - g.cfg.MaxNotices; over > 0 {
		g.notices = append([]Notice(nil), g.notices[over:]...)
	}
	log.Printf("[gateway] notice %s conversation=%q: %s", kind, conversationID, text)
	g.changed()
	return n
}

// Notices returns the current notices, oldest first.
func (g *Gateway) Notices() []Notice {
	out := make([]Notice, len(g.notices))
	copy(out, g.notices)
	return out
}

// DismissNotice removes the notice with the given id.
func (g *Gateway) DismissNotice(id string) bool {
	for i, n := range g.notices {
		if n.ID == id {
			g.notices = append(g.notices[:i], g.notices[i+1:]...)
			g.changed()
			return true
		}
	}
	return false
}
