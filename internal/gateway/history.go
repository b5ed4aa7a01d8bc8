package gateway

import (
	"errors"
	"fmt"
	"log"

	"github.com/whisper/chat-sync/internal/api"
	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/metrics"
)

// Admit implements focus.Activator: an id registered under the other kind
// cannot be shown.
func (g *Gateway) Admit(id string, kind conversation.Kind) error {
	if entry, ok := g.reg.Get(id); ok && entry.Kind != kind {
		return fmt.Errorf("gateway: show %s as %s: %w", id, kind, conversation.ErrKindMismatch)
	}
	return nil
}

// Activated implements focus.Activator: the unread counter resets on every
// activation and history loads unless it already has this session.
func (g *Gateway) Activated(id string, kind conversation.Kind, reselected bool) {
	entry := g.reg.Ensure(id, kind)
	if entry.Kind != kind {
		return
	}
	g.reg.ResetUnread(id)

	switch entry.History {
	case conversation.HistoryNotLoaded, conversation.HistoryFailed:
		if err := g.OpenConversation(id, kind); err != nil {
			log.Printf("[gateway] activate conversation=%s: %v", id, err)
		}
	}
	g.changed()
}

// OpenConversation registers the conversation if needed and issues one
// history fetch for it, whether or not it is shown.
func (g *Gateway) OpenConversation(id string, kind conversation.Kind) error {
	if id == "" || !kind.Valid() {
		return fmt.Errorf("gateway: open conversation %q as %s: %w", id, kind, conversation.ErrInvalidKind)
	}
	entry := g.reg.Ensure(id, kind)
	if entry.Kind != kind {
		return fmt.Errorf("gateway: open conversation %s as %s: %w", id, kind, conversation.ErrKindMismatch)
	}
	g.fetch(id, kind)
	return nil
}

// refresh re-fetches a conversation whose history has been requested before.
func (g *Gateway) refresh(id string, kind conversation.Kind) {
	entry, ok := g.reg.Get(id)
	if !ok || entry.Kind != kind {
		return
	}
	if entry.History == conversation.HistoryNotLoaded {
		return
	}
	g.fetch(id, kind)
}

func (g *Gateway) fetch(id string, kind conversation.Kind) {
	g.gen[id]++
	gen := g.gen[id]
	g.reg.SetHistory(id, conversation.HistoryLoading)
	g.changed()

	g.loop.Go(func() func() {
		ctx, cancel := g.requestContext()
		defer cancel()
		msgs, err := g.history.FetchHistory(ctx, kind, id)
		return func() { g.historyDone(id, kind, gen, msgs, err) }
	})
}

func (g *Gateway) historyDone(id string, kind conversation.Kind, gen uint64, msgs []chat.Message, err error) {
	entry, ok := g.reg.Get(id)
	if !ok || entry.Kind != kind {
		log.Printf("[gateway] history for conversation=%s arrived after removal, discarding", id)
		metrics.HistoryLoads.WithLabelValues("stale").Inc()
		return
	}
	if g.gen[id] != gen {
		metrics.HistoryLoads.WithLabelValues("stale").Inc()
		return
	}

	if err != nil {
		log.Printf("[gateway] history conversation=%s: %v", id, err)
		metrics.HistoryLoads.WithLabelValues("failed").Inc()
		g.reg.SetHistory(id, conversation.HistoryFailed)
		var se *api.ServerError
		if errors.As(err, &se) {
			g.Notify(NoticeError, id, se.Message)
		}
		g.changed()
		return
	}

	// Keep the indicator of deletes still waiting for the server.
	var pending []chat.MessageID
	for _, m := range entry.Log.Messages() {
		if m.PendingDelete {
			pending = append(pending, m.ID)
		}
	}

	g.store.LoadHistory(id, msgs)
	for _, mid := range pending {
		entry.Log.SetPendingDelete(mid, true)
	}
	g.reg.SetHistory(id, conversation.HistoryLoaded)
	if last, ok := entry.Log.Last(); ok {
		g.reg.SetPreview(id, last.Content, last.Timestamp)
	}

	metrics.HistoryLoads.WithLabelValues("ok").Inc()
	g.changed()
}
