package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/focus"
	"github.com/whisper/chat-sync/internal/gateway"
	"github.com/whisper/chat-sync/internal/metrics"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type stubBackend struct {
	mu      sync.Mutex
	history map[string][]chat.Message
	sent    int
	left    []string
}

func (s *stubBackend) FetchHistory(_ context.Context, _ conversation.Kind, id string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.history[id]...), nil
}

func (s *stubBackend) DeleteMessage(context.Context, chat.MessageID) error { return nil }

func (s *stubBackend) Publish([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *stubBackend) AddMembers(context.Context, string, []string) (string, error) {
	return "Members added successfully", nil
}

func (s *stubBackend) KickMember(context.Context, string, string) (string, error) {
	return "Member kicked successfully", nil
}

func (s *stubBackend) LeaveGroup(_ context.Context, groupID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, groupID)
	return "You have left the group", nil
}

func newEngine(t *testing.T) (*Engine, *stubBackend, *[]View) {
	t.Helper()
	b := &stubBackend{history: map[string][]chat.Message{
		"c1": {
			{ID: "2", SenderID: "u2", Content: "second", Timestamp: t0.Add(time.Minute)},
			{ID: "1", SenderID: "me", Content: "first", Timestamp: t0},
		},
	}}
	cfg := Config{Gateway: gateway.DefaultConfig()}
	cfg.Gateway.UserID = "me"
	e := New(cfg, Deps{History: b, Deleter: b, Members: b, Publisher: b})

	var views []View
	e.OnChange(func(v View) { views = append(views, v) })
	return e, b, &views
}

func liveEvent(conv string, id int, sender string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"new_message","conversation_id":%q,"message_id":%d,"sender_id":%q,"message":"m%d","timestamp":"2024-05-01T11:%02d:%02d"}`,
		conv, id, sender, id, id/60%60, id%60))
}

func TestSelect_PublishesView(t *testing.T) {
	e, _, views := newEngine(t)

	res := e.SelectPrivate("c1")
	e.loop.Settle()
	if err := <-res; err != nil {
		t.Fatalf("SelectPrivate: %v", err)
	}
	if len(*views) < 2 {
		t.Fatalf("expected views for selection and load, got %d", len(*views))
	}

	v := e.View()
	if v.Focus.ActiveID != "c1" || v.Focus.ActiveKind != conversation.Private {
		t.Fatalf("unexpected focus %s", v.Focus)
	}
	if len(v.Active) != 2 || v.Active[0].ID != "1" || v.Active[1].ID != "2" {
		t.Fatalf("unexpected active messages %+v", v.Active)
	}
	if len(v.Conversations) != 1 || v.Conversations[0].History != conversation.HistoryLoaded {
		t.Fatalf("unexpected conversations %+v", v.Conversations)
	}
}

func TestNoChange_NoView(t *testing.T) {
	e, _, views := newEngine(t)
	e.Track("c1", conversation.Private)
	e.HandleLiveEvent(liveEvent("c1", 7, "u2"))
	e.loop.Settle()
	n := len(*views)

	e.HandleLiveEvent(liveEvent("c1", 7, "u2"))
	e.HandleLiveEvent([]byte(`garbage`))
	e.HandleLiveEvent(liveEvent("unknown", 8, "u2"))
	e.loop.Settle()

	if len(*views) != n {
		t.Fatalf("views published for no-op events: %d -> %d", n, len(*views))
	}
}

func TestConcurrentLiveEvents(t *testing.T) {
	e, _, _ := newEngine(t)
	e.Track("c1", conversation.Private)
	e.Track("c2", conversation.Private)
	e.loop.Settle()

	const workers, per = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			conv := "c1"
			if w%2 == 1 {
				conv = "c2"
			}
			for i := 0; i < per; i++ {
				id := w*per + i
				e.HandleLiveEvent(liveEvent(conv, id, "u2"))
				// Every event is delivered twice.
				e.HandleLiveEvent(liveEvent(conv, id, "u2"))
			}
		}(w)
	}
	wg.Wait()
	e.loop.Settle()

	v := e.View()
	if got := v.Unread(); got != workers*per {
		t.Fatalf("unread total %d, want %d", got, workers*per)
	}
	if got := testutil.ToFloat64(metrics.UnreadTotal); got != workers*per {
		t.Errorf("unread gauge %v, want %d", got, workers*per)
	}
	for _, c := range v.Conversations {
		msgs, _ := e.gw.Store().Messages(c.ID)
		for i := 1; i < len(msgs); i++ {
			if !msgs[i-1].Before(msgs[i]) {
				t.Fatalf("conversation %s out of order at %d", c.ID, i)
			}
		}
	}
}

func TestCommandErrors(t *testing.T) {
	e, _, _ := newEngine(t)

	track := e.Track("", conversation.Private)
	panel := e.OpenPanel("c1")
	send := e.Send("nowhere", "hi", "")
	del := e.Delete("404")
	e.loop.Settle()

	if err := <-track; !errors.Is(err, conversation.ErrInvalidKind) {
		t.Errorf("Track: %v", err)
	}
	if err := <-panel; !errors.Is(err, focus.ErrNotActive) {
		t.Errorf("OpenPanel: %v", err)
	}
	if err := <-send; !errors.Is(err, chat.ErrUnknownConversation) {
		t.Errorf("Send: %v", err)
	}
	if err := <-del; !errors.Is(err, gateway.ErrUnknownMessage) {
		t.Errorf("Delete: %v", err)
	}

	e.Track("g1", conversation.Group)
	mismatch := e.Track("g1", conversation.Private)
	load := e.Open("g1", conversation.Private)
	show := e.SelectPrivate("g1")
	e.loop.Settle()
	if err := <-mismatch; !errors.Is(err, conversation.ErrKindMismatch) {
		t.Errorf("Track mismatch: %v", err)
	}
	if err := <-load; !errors.Is(err, conversation.ErrKindMismatch) {
		t.Errorf("Open mismatch: %v", err)
	}
	if err := <-show; !errors.Is(err, conversation.ErrKindMismatch) {
		t.Errorf("SelectPrivate mismatch: %v", err)
	}
	if !e.View().Focus.Idle() {
		t.Errorf("mismatched selection changed focus: %s", e.View().Focus)
	}
}

func TestPanelsFollowFocus(t *testing.T) {
	e, _, _ := newEngine(t)
	e.SelectGroup("g1")
	e.OpenPanel("g1")
	e.loop.Settle()
	if !e.View().Focus.PanelOpen {
		t.Fatal("panel not open")
	}

	e.SelectPrivate("c1")
	e.loop.Settle()
	if v := e.View(); v.Focus.PanelOpen || v.Focus.ActiveID != "c1" {
		t.Fatalf("panel survived focus change: %s", v.Focus)
	}
}

func TestPresenceAndSelection(t *testing.T) {
	e, _, _ := newEngine(t)
	e.HandleLiveEvent([]byte(`{"type":"status_update","user_id":"u2","status":"online"}`))
	e.ToggleMember("u3")
	e.ToggleMember("u4")
	e.loop.Settle()

	v := e.View()
	if len(v.Online) != 1 || v.Online[0] != "u2" {
		t.Errorf("online = %v", v.Online)
	}
	if len(v.Selected) != 2 {
		t.Fatalf("selected = %v", v.Selected)
	}

	e.Track("g1", conversation.Group)
	e.AddSelectedMembers("g1")
	e.loop.Settle()

	v = e.View()
	if len(v.Selected) != 0 {
		t.Errorf("selection not cleared: %v", v.Selected)
	}
	if len(v.Notices) != 1 || v.Notices[0].Text != "Members added successfully" {
		t.Fatalf("unexpected notices %+v", v.Notices)
	}

	e.DismissNotice(v.Notices[0].ID)
	e.loop.Settle()
	if n := len(e.View().Notices); n != 0 {
		t.Fatalf("notice not dismissed: %d left", n)
	}
}

func TestLeave_RemovesShownGroup(t *testing.T) {
	e, b, _ := newEngine(t)
	e.SelectGroup("g1")
	e.loop.Settle()

	res := e.Leave("g1")
	e.loop.Settle()
	if err := <-res; err != nil {
		t.Fatalf("Leave: %v", err)
	}

	v := e.View()
	if !v.Focus.Idle() || len(v.Active) != 0 {
		t.Fatalf("left group still shown: %s", v.Focus)
	}
	if len(v.Conversations) != 0 {
		t.Fatalf("left group still registered: %+v", v.Conversations)
	}
	if len(b.left) != 1 {
		t.Fatalf("leave requests: %v", b.left)
	}
}

func TestRun(t *testing.T) {
	e, b, _ := newEngine(t)
	changed := make(chan View, 16)
	e.OnChange(func(v View) {
		select {
		case changed <- v:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	if err := <-e.Track("c1", conversation.Private); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := <-e.Send("c1", "hello", "u2"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		b.mu.Lock()
		sent := b.sent
		b.mu.Unlock()
		if sent == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("intent never published")
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no view published while running")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}
