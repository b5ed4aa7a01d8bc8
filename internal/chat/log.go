package chat

import "sort"

// Log is the ordered, deduplicated message sequence of one conversation.
// After every mutation the entries are sorted by (timestamp, id) and no two
// entries share an id.
//
// A Log is not safe for concurrent use; it is owned by the engine loop.
type Log struct {
	items []Message
	seen  map[MessageID]struct{}
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{seen: make(map[MessageID]struct{})}
}

// Replace discards the current contents and stores msgs in display order.
// Input order does not matter; duplicate ids keep their first occurrence.
func (l *Log) Replace(msgs []Message) {
	items := make([]Message, 0, len(msgs))
	seen := make(map[MessageID]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		items = append(items, m)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Before(items[j]) })

	l.items = items
	l.seen = seen
}

// Insert places msg at its sorted position. It returns false, leaving the
// log untouched, if a message with the same id is already present.
func (l *Log) Insert(msg Message) bool {
	if _, ok := l.seen[msg.ID]; ok {
		return false
	}
	l.seen[msg.ID] = struct{}{}

	// First index whose entry sorts after msg; live traffic usually lands at
	// the end so this is cheap.
	i := sort.Search(len(l.items), func(i int) bool { return msg.Before(l.items[i]) })
	l.items = append(l.items, Message{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = msg
	return true
}

// MarkRead flags the message as read. It reports whether anything changed.
func (l *Log) MarkRead(id MessageID) bool {
	i := l.index(id)
	if i < 0 || l.items[i].IsRead {
		return false
	}
	l.items[i].IsRead = true
	return true
}

// MarkUnread reverts MarkRead. It reports whether anything changed.
func (l *Log) MarkUnread(id MessageID) bool {
	i := l.index(id)
	if i < 0 || !l.items[i].IsRead {
		return false
	}
	l.items[i].IsRead = false
	return true
}

// SetPendingDelete toggles the in-flight delete marker on a message.
func (l *Log) SetPendingDelete(id MessageID, pending bool) bool {
	i := l.index(id)
	if i < 0 || l.items[i].PendingDelete == pending {
		return false
	}
	l.items[i].PendingDelete = pending
	return true
}

// Delete removes the message. It reports whether the message was present.
func (l *Log) Delete(id MessageID) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.seen, id)
	return true
}

// Has reports whether a message with the id is in the log.
func (l *Log) Has(id MessageID) bool {
	_, ok := l.seen[id]
	return ok
}

// Get returns a copy of the message with the id.
func (l *Log) Get(id MessageID) (Message, bool) {
	i := l.index(id)
	if i < 0 {
		return Message{}, false
	}
	return l.items[i], true
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.items)
}

// Last returns the newest message.
func (l *Log) Last() (Message, bool) {
	if len(l.items) == 0 {
		return Message{}, false
	}
	return l.items[len(l.items)-1], true
}

// Messages returns a copy of the log in display order.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.items))
	copy(out, l.items)
	return out
}

func (l *Log) index(id MessageID) int {
	if _, ok := l.seen[id]; !ok {
		return -1
	}
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}
