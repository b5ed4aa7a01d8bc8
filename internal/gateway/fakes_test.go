package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/focus"
	"github.com/whisper/chat-sync/internal/loop"
	"github.com/whisper/chat-sync/internal/ratelimit"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func at(min, sec int) time.Time {
	return t0.Add(time.Duration(min)*time.Minute + time.Duration(sec)*time.Second)
}

type fakeHistory struct {
	mu    sync.Mutex
	msgs  map[string][]chat.Message
	err   error
	calls []string
}

func (f *fakeHistory) FetchHistory(_ context.Context, kind conversation.Kind, id string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind.String()+":"+id)
	if f.err != nil {
		return nil, f.err
	}
	src := f.msgs[id]
	out := make([]chat.Message, len(src))
	copy(out, src)
	return out, nil
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeHistory) set(id string, msgs []chat.Message, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[id] = msgs
	f.err = err
}

type fakeDeleter struct {
	mu    sync.Mutex
	err   error
	calls []chat.MessageID
}

func (f *fakeDeleter) DeleteMessage(_ context.Context, id chat.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return f.err
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent [][]byte
}

func (f *fakePublisher) Publish(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// decoded returns the published intents as generic maps.
func (f *fakePublisher) decoded(t *testing.T) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.sent))
	for _, d := range f.sent {
		var m map[string]interface{}
		if err := json.Unmarshal(d, &m); err != nil {
			t.Fatalf("published invalid JSON %s: %v", d, err)
		}
		out = append(out, m)
	}
	return out
}

type harness struct {
	loop    *loop.Loop
	reg     *conversation.Registry
	focus   *focus.Controller
	gw      *Gateway
	hist    *fakeHistory
	del     *fakeDeleter
	pub     *fakePublisher
	clock   time.Time
	changes int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		loop:  loop.New(0),
		reg:   conversation.NewRegistry(),
		focus: focus.NewController(nil),
		hist:  &fakeHistory{msgs: make(map[string][]chat.Message)},
		del:   &fakeDeleter{},
		pub:   &fakePublisher{},
		clock: t0,
	}
	cooldown := ratelimit.NewCooldown(time.Second)
	cooldown.SetClock(func() time.Time { return h.clock })

	cfg := DefaultConfig()
	cfg.UserID = "me"
	cfg.MaxNotices = 3
	h.gw = New(cfg, Deps{
		Loop:      h.loop,
		Registry:  h.reg,
		Focus:     h.focus,
		History:   h.hist,
		Deleter:   h.del,
		Publisher: h.pub,
		Throttle:  cooldown,
	})
	h.gw.SetChangeHook(func() { h.changes++ })
	return h
}

func (h *harness) ids(t *testing.T, id string) []chat.MessageID {
	t.Helper()
	msgs, err := h.gw.Store().Messages(id)
	if err != nil {
		t.Fatalf("Messages(%s): %v", id, err)
	}
	out := make([]chat.MessageID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func (h *harness) entry(t *testing.T, id string) *conversation.Entry {
	t.Helper()
	e, ok := h.reg.Get(id)
	if !ok {
		t.Fatalf("conversation %s not registered", id)
	}
	return e
}

func liveMessage(conv, id, sender, text string, ts time.Time) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"type":            "new_message",
		"conversation_id": conv,
		"message_id":      id,
		"sender_id":       sender,
		"message":         text,
		"timestamp":       ts.Format("2006-01-02T15:04:05.000000"),
		"isRead":          false,
	})
	return b
}

func liveGroupMessage(group, id, sender, text string, ts time.Time) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"type":        "new_group_message",
		"group_id":    group,
		"message_id":  id,
		"sender_id":   sender,
		"sender_name": "Someone",
		"content":     text,
		"timestamp":   ts.Format(time.RFC3339Nano),
	})
	return b
}

func sameIDs(got []chat.MessageID, want ...chat.MessageID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
