package gateway

import (
	"log"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/metrics"
	"github.com/whisper/chat-sync/internal/protocol"
)

// OnLiveEvent is the single entry point for pushed events. Malformed events
// and events for unknown conversations are logged and dropped.
func (g *Gateway) OnLiveEvent(data []byte) {
	evType, ev, err := protocol.ParseServerEvent(data)
	if err != nil {
		log.Printf("[gateway] live event dropped: %v", err)
		metrics.LiveEvents.WithLabelValues(eventLabel(evType), "dropped").Inc()
		return
	}

	switch e := ev.(type) {
	case protocol.NewMessageEvent:
		msg, err := e.ToMessage()
		if err != nil {
			g.dropEvent(evType, string(e.ConversationID), err.Error())
			return
		}
		g.applyLive(evType, string(e.ConversationID), conversation.Private, msg)

	case protocol.NewGroupMessageEvent:
		msg, err := e.ToMessage()
		if err != nil {
			g.dropEvent(evType, string(e.GroupID), err.Error())
			return
		}
		g.applyLive(evType, string(e.GroupID), conversation.Group, msg)

	case protocol.ChatHistoryUpdateEvent:
		g.refresh(string(e.ConversationID), conversation.Private)
		metrics.LiveEvents.WithLabelValues(evType, "applied").Inc()

	case protocol.GroupHistoryUpdateEvent:
		g.refresh(string(e.GroupID), conversation.Group)
		metrics.LiveEvents.WithLabelValues(evType, "applied").Inc()

	case protocol.LastMessageUpdateEvent:
		ts, err := protocol.ParseTimestamp(e.LastMessageDate)
		if err != nil {
			g.dropEvent(evType, string(e.ConversationID), err.Error())
			return
		}
		if g.reg.SetPreview(string(e.ConversationID), e.LastMessage, ts) {
			g.changed()
		}
		metrics.LiveEvents.WithLabelValues(evType, "applied").Inc()

	case protocol.StatusUpdateEvent:
		if g.onStatus != nil {
			g.onStatus(string(e.UserID), e.Status)
		}
		metrics.LiveEvents.WithLabelValues(evType, "applied").Inc()

	case protocol.ErrorEvent:
		g.Notify(NoticeError, "", e.Error)
		metrics.LiveEvents.WithLabelValues(evType, "applied").Inc()
	}
}

func (g *Gateway) applyLive(evType, id string, kind conversation.Kind, msg chat.Message) {
	if id == "" || msg.ID == "" {
		g.dropEvent(evType, id, "missing conversation or message id")
		return
	}
	entry, ok := g.reg.Get(id)
	if !ok {
		g.dropEvent(evType, id, "unknown conversation")
		return
	}
	if entry.Kind != kind {
		g.dropEvent(evType, id, "registered as "+entry.Kind.String())
		return
	}

	inserted, err := g.store.ApplyLiveMessage(id, msg)
	if err != nil {
		metrics.LiveEvents.WithLabelValues(evType, "dropped").Inc()
		return
	}
	if !inserted {
		metrics.LiveEvents.WithLabelValues(evType, "duplicate").Inc()
		return
	}
	metrics.LiveEvents.WithLabelValues(evType, "applied").Inc()

	g.reg.SetPreview(id, msg.Content, msg.Timestamp)

	if msg.SenderID != g.cfg.UserID {
		if g.focus.Shown(id) {
			if !msg.IsRead {
				g.MarkReadIntent(msg.ID)
			}
		} else {
			g.reg.IncrementUnread(id)
		}
	}
	g.changed()
}

func (g *Gateway) dropEvent(evType, id, reason string) {
	log.Printf("[gateway] %s for conversation=%q dropped: %s", evType, id, reason)
	metrics.LiveEvents.WithLabelValues(eventLabel(evType), "dropped").Inc()
}

// eventLabel keeps unknown event types out of metric labels.
func eventLabel(evType string) string {
	switch evType {
	case protocol.TypeNewMessage, protocol.TypeNewGroupMessage,
		protocol.TypeChatHistoryUpdate, protocol.TypeGroupHistoryUpdate,
		protocol.TypeLastMessageUpdate, protocol.TypeStatusUpdate, protocol.TypeError:
		return evType
	}
	return "unknown"
}
