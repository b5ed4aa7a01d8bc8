package gateway

import (
	"errors"
	"fmt"
	"log"

	"github.com/whisper/chat-sync/internal/api"
	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/metrics"
	"github.com/whisper/chat-sync/internal/protocol"
)

// route builds the kind-specific send intent.
type route interface {
	sendIntent(conversationID, senderID, target, content string) (string, interface{})
}

type privateRoute struct{}

// target is the receiving user; empty sends a null receiver.
func (privateRoute) sendIntent(conversationID, senderID, target, content string) (string, interface{}) {
	var receiver *string
	if target != "" {
		receiver = &target
	}
	return protocol.TypeSendMessage, protocol.SendMessageIntent{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiver,
		Message:        content,
	}
}

type groupRoute struct{}

// target is the group id; it defaults to the conversation id.
func (groupRoute) sendIntent(conversationID, senderID, target, content string) (string, interface{}) {
	if target == "" {
		target = conversationID
	}
	return protocol.TypeSendGroupMessage, protocol.SendGroupMessageIntent{
		ConversationID: conversationID,
		GroupID:        target,
		SenderID:       senderID,
		Content:        content,
	}
}

var routes = map[conversation.Kind]route{
	conversation.Private: privateRoute{},
	conversation.Group:   groupRoute{},
}

// SendMessage emits one send intent for the conversation. Blank content is
// dropped silently. While a send for the conversation is in flight, or
// within the cool-down after one, further sends return ErrThrottled or are
// suppressed. The message itself appears when the server echoes it back.
func (g *Gateway) SendMessage(conversationID, content, target string) error {
	entry, ok := g.reg.Get(conversationID)
	if !ok {
		log.Printf("[gateway] send to unknown conversation=%s, dropping", conversationID)
		return chat.ErrUnknownConversation
	}

	text, err := chat.ValidateMessage(content)
	if errors.Is(err, chat.ErrEmptyMessage) {
		return nil
	}
	if err != nil {
		metrics.Intents.WithLabelValues("send", "rejected").Inc()
		return fmt.Errorf("gateway: send message: %w", err)
	}

	if g.sending[conversationID] {
		metrics.Intents.WithLabelValues("send", "throttled").Inc()
		return ErrThrottled
	}

	msgType, payload := routes[entry.Kind].sendIntent(conversationID, g.cfg.UserID, target, text)
	data, err := protocol.NewIntent(msgType, payload)
	if err != nil {
		return fmt.Errorf("gateway: send message: %w", err)
	}

	g.sending[conversationID] = true
	g.loop.Go(func() func() {
		ctx, cancel := g.requestContext()
		defer cancel()

		allowed, terr := g.throttle.Allow(ctx, conversationID)
		if terr != nil {
			log.Printf("[gateway] throttle conversation=%s: %v (allowing)", conversationID, terr)
		}
		if !allowed {
			metrics.Intents.WithLabelValues("send", "throttled").Inc()
			return func() { delete(g.sending, conversationID) }
		}

		perr := g.pub.Publish(data)
		return func() {
			delete(g.sending, conversationID)
			if perr != nil {
				log.Printf("[gateway] publish %s conversation=%s: %v", msgType, conversationID, perr)
				metrics.Intents.WithLabelValues("send", "failed").Inc()
				if _, ok := g.reg.Get(conversationID); ok {
					g.Notify(NoticeError, conversationID, "Message could not be sent")
				}
				return
			}
			metrics.Intents.WithLabelValues("send", "sent").Inc()
		}
	})
	return nil
}

// DeleteMessage marks the message pending and asks the server to delete it.
// The message leaves the log only once the server confirms; on failure the
// pending mark is cleared and a notice explains why.
func (g *Gateway) DeleteMessage(id chat.MessageID) error {
	conversationID, ok := g.reg.FindMessage(id)
	if !ok {
		log.Printf("[gateway] delete unknown message=%s, ignoring", id)
		return ErrUnknownMessage
	}
	entry, _ := g.reg.Get(conversationID)
	if m, ok := entry.Log.Get(id); ok && m.PendingDelete {
		return nil
	}

	g.store.SetPendingDelete(conversationID, id, true)
	g.changed()

	g.loop.Go(func() func() {
		ctx, cancel := g.requestContext()
		defer cancel()
		err := g.deleter.DeleteMessage(ctx, id)
		return func() { g.deleteDone(conversationID, id, err) }
	})
	return nil
}

func (g *Gateway) deleteDone(conversationID string, id chat.MessageID, err error) {
	if _, ok := g.reg.Get(conversationID); !ok {
		log.Printf("[gateway] delete result for message=%s after conversation=%s was removed", id, conversationID)
		return
	}

	if err == nil {
		g.store.DeleteMessage(conversationID, id)
		metrics.Deletes.WithLabelValues("confirmed").Inc()
		g.changed()
		return
	}

	log.Printf("[gateway] delete message=%s: %v", id, err)
	metrics.Deletes.WithLabelValues("rolled_back").Inc()
	g.store.SetPendingDelete(conversationID, id, false)

	text := "Message could not be deleted"
	var se *api.ServerError
	if errors.As(err, &se) {
		text = se.Message
	}
	g.Notify(NoticeError, conversationID, text)
}

// MarkReadIntent marks the message read locally and notifies the server.
// Messages already read are left alone. If the intent cannot be published the
// local mark is rolled back.
func (g *Gateway) MarkReadIntent(id chat.MessageID) error {
	conversationID, found := g.reg.FindMessage(id)
	if found {
		changed, _ := g.store.MarkRead(conversationID, id)
		if !changed {
			return nil
		}
		g.changed()
	}

	data, err := protocol.NewIntent(protocol.TypeMarkMessageRead, protocol.MarkMessageReadIntent{MessageID: id})
	if err != nil {
		return fmt.Errorf("gateway: mark read: %w", err)
	}

	g.loop.Go(func() func() {
		if err := g.pub.Publish(data); err != nil {
			metrics.Intents.WithLabelValues("mark_read", "failed").Inc()
			return func() {
				log.Printf("[gateway] mark read message=%s: %v", id, err)
				if !found {
					return
				}
				if _, ok := g.reg.Get(conversationID); !ok {
					return
				}
				if changed, _ := g.store.MarkUnread(conversationID, id); changed {
					g.changed()
				}
			}
		}
		metrics.Intents.WithLabelValues("mark_read", "sent").Inc()
		return nil
	})
	return nil
}
