package conversation

import (
	"log"
	"sort"
	"time"

	"github.com/whisper/chat-sync/internal/chat"
)

// Entry is a registered conversation.
type Entry struct {
	ID            string
	Kind          Kind
	Log           *chat.Log
	LastMessageAt time.Time
	LastMessage   string
	Unread        int
	History       HistoryState
}

// Summary is a read-only copy of an Entry without its log.
type Summary struct {
	ID            string
	Kind          Kind
	LastMessageAt time.Time
	LastMessage   string
	Unread        int
	History       HistoryState
}

// Registry maps conversation ids to entries. Removing an entry drops its
// message log with it.
//
// A Registry is not safe for concurrent use; it is owned by the engine loop.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Ensure returns the entry for id, creating it with the given kind if
// absent. An existing entry is returned unchanged even if kind differs.
func (r *Registry) Ensure(id string, kind Kind) *Entry {
	if e, ok := r.entries[id]; ok {
		if e.Kind != kind {
			log.Printf("[registry] ensure conversation=%s as %s, already registered as %s", id, kind, e.Kind)
		}
		return e
	}
	e := &Entry{ID: id, Kind: kind, Log: chat.NewLog()}
	r.entries[id] = e
	return e
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (*Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Log implements chat.LogSource.
func (r *Registry) Log(id string) (*chat.Log, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.Log, true
}

// Remove deletes the entry and its message log. It reports whether the
// entry existed.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// UpdateLastMessage records ts as the latest activity. Timestamps older than
// the stored one are ignored so out-of-order pushes cannot regress it.
func (r *Registry) UpdateLastMessage(id string, ts time.Time) bool {
	e, ok := r.entries[id]
	if !ok || ts.IsZero() || !ts.After(e.LastMessageAt) {
		return false
	}
	e.LastMessageAt = ts
	return true
}

// SetPreview sets the last-message preview text if ts is not older than the
// current last-message time.
func (r *Registry) SetPreview(id, text string, ts time.Time) bool {
	e, ok := r.entries[id]
	if !ok || ts.Before(e.LastMessageAt) {
		return false
	}
	e.LastMessage = text
	r.UpdateLastMessage(id, ts)
	return true
}

// IncrementUnread bumps the unread counter.
func (r *Registry) IncrementUnread(id string) {
	if e, ok := r.entries[id]; ok {
		e.Unread++
	}
}

// ResetUnread clears the unread counter.
func (r *Registry) ResetUnread(id string) {
	if e, ok := r.entries[id]; ok {
		e.Unread = 0
	}
}

// SetHistory records the history fetch state.
func (r *Registry) SetHistory(id string, state HistoryState) {
	if e, ok := r.entries[id]; ok {
		e.History = state
	}
}

// FindMessage returns the id of the conversation holding the message.
func (r *Registry) FindMessage(id chat.MessageID) (string, bool) {
	for cid, e := range r.entries {
		if e.Log.Has(id) {
			return cid, true
		}
	}
	return "", false
}

// Len returns the number of registered conversations.
func (r *Registry) Len() int {
	return len(r.entries)
}

// List returns summaries ordered by last activity, newest first, with the
// id as the tie-break.
func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Summary returns a copy of the entry's metadata.
func (e *Entry) Summary() Summary {
	return Summary{
		ID:            e.ID,
		Kind:          e.Kind,
		LastMessageAt: e.LastMessageAt,
		LastMessage:   e.LastMessage,
		Unread:        e.Unread,
		History:       e.History,
	}
}
