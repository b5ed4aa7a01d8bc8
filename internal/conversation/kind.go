// Package conversation tracks the conversations known to the client: their
// kind, message log, last-activity time and unread counter.
package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKind is returned when a conversation id is empty or its kind
	// is not Private or Group.
	ErrInvalidKind = errors.New("conversation: invalid id or kind")

	// ErrKindMismatch is returned when an id is already registered with the
	// other kind.
	ErrKindMismatch = errors.New("conversation: registered with another kind")
)

// Kind is the closed set of conversation kinds. The zero value None is only
// meaningful as "nothing focused".
type Kind int

const (
	None Kind = iota
	Private
	Group
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Private:
		return "private"
	case Group:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k names a real conversation kind.
func (k Kind) Valid() bool {
	return k == Private || k == Group
}

// HistoryState tracks the history fetch of a conversation within this session.
type HistoryState int

const (
	HistoryNotLoaded HistoryState = iota
	HistoryLoading
	HistoryLoaded
	HistoryFailed
)

func (s HistoryState) String() string {
	switch s {
	case HistoryNotLoaded:
		return "not_loaded"
	case HistoryLoading:
		return "loading"
	case HistoryLoaded:
		return "loaded"
	case HistoryFailed:
		return "failed"
	default:
		return fmt.Sprintf("history(%d)", int(s))
	}
}
