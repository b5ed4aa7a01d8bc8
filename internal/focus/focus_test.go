package focus

import (
	"errors"
	"testing"

	"github.com/whisper/chat-sync/internal/conversation"
)

type activation struct {
	id         string
	kind       conversation.Kind
	reselected bool
}

type recordingActivator struct {
	calls  []activation
	reject error
}

func (r *recordingActivator) Admit(string, conversation.Kind) error {
	return r.reject
}

func (r *recordingActivator) Activated(id string, kind conversation.Kind, reselected bool) {
	r.calls = append(r.calls, activation{id, kind, reselected})
}

func TestNewControllerIsIdle(t *testing.T) {
	c := NewController(nil)
	if !c.State().Idle() {
		t.Fatalf("expected idle, got %s", c.State())
	}
	if c.Shown("any") {
		t.Error("idle controller reports a shown conversation")
	}
}

func TestSelectSwitchesExclusively(t *testing.T) {
	c := NewController(nil)

	c.SelectPrivate("a")
	if _, err := c.OpenPanel("a"); err != nil {
		t.Fatalf("OpenPanel: %v", err)
	}

	st, err := c.SelectGroup("b")
	if err != nil {
		t.Fatalf("SelectGroup: %v", err)
	}
	if st.ActiveID != "b" || st.ActiveKind != conversation.Group {
		t.Fatalf("unexpected state %s", st)
	}
	if c.Shown("a") {
		t.Error("a still shown after selecting b")
	}
	if !c.Shown("b") {
		t.Error("b not shown")
	}
	if c.OpenPanels() != 0 {
		t.Errorf("expected zero open panels, got %d", c.OpenPanels())
	}
	if st.PanelOpen {
		t.Error("state reports panel open after switch")
	}
}

func TestRapidSelectionKeepsSingleShown(t *testing.T) {
	c := NewController(nil)
	ids := []string{"a", "b", "a", "c", "c", "b"}
	for i, id := range ids {
		if i%2 == 0 {
			c.SelectPrivate(id)
		} else {
			c.SelectGroup(id)
		}
		shown := 0
		for _, other := range []string{"a", "b", "c"} {
			if c.Shown(other) {
				shown++
			}
		}
		if shown != 1 {
			t.Fatalf("after selecting %s: %d conversations shown", id, shown)
		}
	}
}

func TestReselectNotifiesActivator(t *testing.T) {
	act := &recordingActivator{}
	c := NewController(act)

	c.SelectPrivate("a")
	c.SelectPrivate("a")
	c.SelectGroup("a")

	if len(act.calls) != 3 {
		t.Fatalf("expected 3 activations, got %d", len(act.calls))
	}
	if act.calls[0].reselected {
		t.Error("first selection marked as reselect")
	}
	if !act.calls[1].reselected {
		t.Error("second selection of the same chat not marked as reselect")
	}
	if act.calls[2].reselected {
		t.Error("switching kind with the same id must not count as reselect")
	}
}

func TestReselectClosesPanel(t *testing.T) {
	c := NewController(nil)
	c.SelectGroup("g")
	c.OpenPanel("g")

	st, _ := c.SelectGroup("g")
	if st.PanelOpen || c.PanelOpen("g") {
		t.Error("panel should close on reselect")
	}
}

func TestPanelRequiresActive(t *testing.T) {
	c := NewController(nil)

	if _, err := c.OpenPanel("a"); !errors.Is(err, ErrNotActive) {
		t.Errorf("OpenPanel while idle: expected ErrNotActive, got %v", err)
	}

	c.SelectPrivate("a")
	if _, err := c.OpenPanel("b"); !errors.Is(err, ErrNotActive) {
		t.Errorf("OpenPanel on inactive: expected ErrNotActive, got %v", err)
	}

	st, err := c.OpenPanel("a")
	if err != nil || !st.PanelOpen || st.ActiveID != "a" {
		t.Fatalf("OpenPanel(a) = %s, %v", st, err)
	}

	st, err = c.ClosePanel("a")
	if err != nil || st.PanelOpen {
		t.Fatalf("ClosePanel(a) = %s, %v", st, err)
	}
	if st.ActiveID != "a" {
		t.Error("closing the panel changed the active conversation")
	}
}

func TestInvalidSelection(t *testing.T) {
	c := NewController(nil)
	if _, err := c.SelectPrivate(""); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := c.Select("x", conversation.None); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget for kind none, got %v", err)
	}
	if !c.State().Idle() {
		t.Error("invalid selection changed state")
	}
}

func TestRejectedSelectionKeepsState(t *testing.T) {
	act := &recordingActivator{}
	c := NewController(act)
	c.SelectPrivate("a")
	c.OpenPanel("a")

	notified := 0
	c.Subscribe(func(State) { notified++ })

	act.reject = conversation.ErrKindMismatch
	st, err := c.SelectGroup("a")
	if !errors.Is(err, conversation.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
	want := State{ActiveID: "a", ActiveKind: conversation.Private, PanelOpen: true}
	if st != want || c.State() != want {
		t.Fatalf("state = %s, want %s", c.State(), want)
	}
	if !c.PanelOpen("a") {
		t.Error("rejected selection closed the panel")
	}
	if notified != 0 || len(act.calls) != 1 {
		t.Errorf("rejected selection notified=%d activations=%d", notified, len(act.calls))
	}
}

func TestForget(t *testing.T) {
	c := NewController(nil)
	c.SelectGroup("g")
	c.OpenPanel("g")

	c.Forget("other")
	if !c.Shown("g") {
		t.Fatal("forgetting another id hid the active one")
	}

	st := c.Forget("g")
	if !st.Idle() {
		t.Errorf("expected idle after forgetting active, got %s", st)
	}
	if c.OpenPanels() != 0 {
		t.Error("panel survived forget")
	}
}

func TestSubscribe(t *testing.T) {
	c := NewController(nil)
	var seen []State
	c.Subscribe(func(s State) { seen = append(seen, s) })

	c.SelectPrivate("a")
	c.OpenPanel("a")
	c.OpenPanel("a") // no change, no notification
	c.OpenPanel("zzz")
	c.SelectGroup("b")

	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d: %v", len(seen), seen)
	}
	if !seen[1].PanelOpen {
		t.Error("second notification should carry the open panel")
	}
	if seen[2].ActiveID != "b" {
		t.Errorf("last notification = %s", seen[2])
	}
}
