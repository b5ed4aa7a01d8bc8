package membership

import (
	"sort"

	"github.com/whisper/chat-sync/internal/metrics"
)

// StatusOnline is the status_update value for a connected user. Every other
// value counts as offline.
const StatusOnline = "online"

// Presence tracks which users the server reports online. It is owned by the
// engine loop and is not safe for concurrent use.
type Presence struct {
	online map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

// Update applies one status_update and reports whether the online set
// changed.
func (p *Presence) Update(userID, status string) bool {
	if userID == "" {
		return false
	}
	_, was := p.online[userID]
	now := status == StatusOnline
	if was == now {
		return false
	}
	if now {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
	metrics.OnlineUsers.Set(float64(len(p.online)))
	return true
}

func (p *Presence) Online(userID string) bool {
	_, ok := p.online[userID]
	return ok
}

// OnlineUsers returns the online user ids, sorted.
func (p *Presence) OnlineUsers() []string {
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
