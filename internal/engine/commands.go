package engine

import (
	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
)

// do runs fn on the loop. The returned channel receives fn's error once and
// is buffered, so callers may ignore it.
func (e *Engine) do(fn func() error) <-chan error {
	res := make(chan error, 1)
	e.loop.Post(func() { res <- fn() })
	return res
}

// HandleLiveEvent queues a raw pushed event. It never blocks; data must not
// be modified afterwards.
func (e *Engine) HandleLiveEvent(data []byte) {
	e.loop.Post(func() { e.gw.OnLiveEvent(data) })
}

// Track registers a conversation from the chat list so live events keep its
// unread count, without showing it.
func (e *Engine) Track(id string, kind conversation.Kind) <-chan error {
	return e.do(func() error {
		if id == "" || !kind.Valid() {
			return conversation.ErrInvalidKind
		}
		if e.reg.Ensure(id, kind).Kind != kind {
			return conversation.ErrKindMismatch
		}
		e.markDirty()
		return nil
	})
}

// Open loads a conversation's history without showing it, registering the
// conversation first if needed.
func (e *Engine) Open(id string, kind conversation.Kind) <-chan error {
	return e.do(func() error {
		return e.gw.OpenConversation(id, kind)
	})
}

func (e *Engine) SelectPrivate(id string) <-chan error {
	return e.do(func() error {
		_, err := e.focus.SelectPrivate(id)
		return err
	})
}

func (e *Engine) SelectGroup(id string) <-chan error {
	return e.do(func() error {
		_, err := e.focus.SelectGroup(id)
		return err
	})
}

func (e *Engine) OpenPanel(id string) <-chan error {
	return e.do(func() error {
		_, err := e.focus.OpenPanel(id)
		return err
	})
}

func (e *Engine) ClosePanel(id string) <-chan error {
	return e.do(func() error {
		_, err := e.focus.ClosePanel(id)
		return err
	})
}

// Send sends content to the conversation. target is the receiving user for
// private conversations and the group id for groups; either may be empty.
func (e *Engine) Send(conversationID, content, target string) <-chan error {
	return e.do(func() error {
		return e.gw.SendMessage(conversationID, content, target)
	})
}

func (e *Engine) Delete(id chat.MessageID) <-chan error {
	return e.do(func() error {
		return e.gw.DeleteMessage(id)
	})
}

func (e *Engine) MarkRead(id chat.MessageID) <-chan error {
	return e.do(func() error {
		return e.gw.MarkReadIntent(id)
	})
}

// Remove drops a conversation locally.
func (e *Engine) Remove(id string) <-chan error {
	return e.do(func() error {
		e.gw.RemoveConversation(id)
		return nil
	})
}

func (e *Engine) DismissNotice(id string) <-chan error {
	return e.do(func() error {
		e.gw.DismissNotice(id)
		return nil
	})
}

// ToggleMember flips userID in the add-member selection.
func (e *Engine) ToggleMember(userID string) <-chan error {
	return e.do(func() error {
		e.members.Selection().Toggle(userID)
		e.markDirty()
		return nil
	})
}

func (e *Engine) AddMembers(groupID string, members []string) <-chan error {
	return e.do(func() error {
		return e.members.AddMembers(groupID, members)
	})
}

// AddSelectedMembers adds the current selection to the group.
func (e *Engine) AddSelectedMembers(groupID string) <-chan error {
	return e.do(func() error {
		return e.members.AddSelected(groupID)
	})
}

func (e *Engine) Kick(groupID, memberID string) <-chan error {
	return e.do(func() error {
		return e.members.Kick(groupID, memberID)
	})
}

func (e *Engine) Leave(groupID string) <-chan error {
	return e.do(func() error {
		return e.members.Leave(groupID)
	})
}
