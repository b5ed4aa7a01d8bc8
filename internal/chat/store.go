package chat

import (
	"errors"
	"log"
)

// ErrUnknownConversation is returned for operations on a conversation that
// has not been materialized. Callers treat it as an absorbed stale reference.
var ErrUnknownConversation = errors.New("chat: unknown conversation")

// LogSource resolves a conversation id to its message log.
type LogSource interface {
	Log(conversationID string) (*Log, bool)
}

// Store applies history loads and live updates to per-conversation logs.
// Every method referencing an unknown conversation logs a warning and
// returns ErrUnknownConversation without side effects.
type Store struct {
	src LogSource
}

// NewStore creates a Store resolving logs through src.
func NewStore(src LogSource) *Store {
	return &Store{src: src}
}

// LoadHistory replaces the conversation's log with msgs. Messages may arrive
// in any order (the history endpoints answer newest first).
func (s *Store) LoadHistory(conversationID string, msgs []Message) error {
	l, err := s.log("load history", conversationID)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].ConversationID = conversationID
	}
	l.Replace(msgs)
	return nil
}

// ApplyLiveMessage inserts a pushed message. It returns false if the message
// was already present, e.g. because history and push both delivered it.
func (s *Store) ApplyLiveMessage(conversationID string, msg Message) (bool, error) {
	l, err := s.log("apply live message", conversationID)
	if err != nil {
		return false, err
	}
	msg.ConversationID = conversationID
	return l.Insert(msg), nil
}

// MarkRead flags a message as read. A message that has not arrived yet is
// not an error.
func (s *Store) MarkRead(conversationID string, id MessageID) (bool, error) {
	l, err := s.log("mark read", conversationID)
	if err != nil {
		return false, err
	}
	return l.MarkRead(id), nil
}

// DeleteMessage removes a message. Not-found is not an error.
func (s *Store) DeleteMessage(conversationID string, id MessageID) (bool, error) {
	l, err := s.log("delete message", conversationID)
	if err != nil {
		return false, err
	}
	return l.Delete(id), nil
}

// SetPendingDelete flags or clears a message's pending-delete state.
func (s *Store) SetPendingDelete(conversationID string, id MessageID, pending bool) (bool, error) {
	l, err := s.log("set pending delete", conversationID)
	if err != nil {
		return false, err
	}
	return l.SetPendingDelete(id, pending), nil
}

// MarkUnread reverts a read flag set optimistically.
func (s *Store) MarkUnread(conversationID string, id MessageID) (bool, error) {
	l, err := s.log("mark unread", conversationID)
	if err != nil {
		return false, err
	}
	return l.MarkUnread(id), nil
}

// Messages returns a copy of the conversation's log in display order.
func (s *Store) Messages(conversationID string) ([]Message, error) {
	l, err := s.log("read messages", conversationID)
	if err != nil {
		return nil, err
	}
	return l.Messages(), nil
}

func (s *Store) log(op, conversationID string) (*Log, error) {
	l, ok := s.src.Log(conversationID)
	if !ok {
		log.Printf("[chat] %s: unknown conversation=%s, dropping", op, conversationID)
		return nil, ErrUnknownConversation
	}
	return l, nil
}
