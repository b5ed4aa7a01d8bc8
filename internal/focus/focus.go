// Package focus implements the single-active-view state machine: at most one
// conversation, private or group, is shown at a time, and side panels only
// exist for the shown conversation.
package focus

import (
	"errors"
	"fmt"
	"log"

	"github.com/whisper/chat-sync/internal/conversation"
)

var (
	// ErrNotActive is returned for panel commands on a conversation that is
	// not the shown one.
	ErrNotActive = errors.New("focus: conversation is not active")

	// ErrInvalidTarget is returned when selecting an empty id or kind.
	ErrInvalidTarget = errors.New("focus: invalid selection")
)

// State is the focus snapshot. The zero value is Idle.
type State struct {
	ActiveID   string
	ActiveKind conversation.Kind
	PanelOpen  bool // side panel of the active conversation
}

// Idle reports whether nothing is shown.
func (s State) Idle() bool {
	return s.ActiveKind == conversation.None
}

func (s State) String() string {
	if s.Idle() {
		return "idle"
	}
	return fmt.Sprintf("showing_%s(%s) panel=%v", s.ActiveKind, s.ActiveID, s.PanelOpen)
}

// Activator receives every activation, including re-selection of the
// already active conversation. Admit runs first; an error from it rejects
// the selection and leaves the state untouched.
type Activator interface {
	Admit(id string, kind conversation.Kind) error
	Activated(id string, kind conversation.Kind, reselected bool)
}

// Controller owns the focus state. Every transition replaces the state in a
// single assignment and then notifies subscribers.
//
// A Controller is not safe for concurrent use; it is owned by the engine loop.
type Controller struct {
	state     State
	panels    map[string]bool
	activator Activator
	listeners []func(State)
}

// NewController returns an idle controller. activator may be nil.
func NewController(activator Activator) *Controller {
	return &Controller{
		panels:    make(map[string]bool),
		activator: activator,
	}
}

// SetActivator replaces the activation hook.
func (c *Controller) SetActivator(a Activator) {
	c.activator = a
}

// Subscribe registers fn to be called after every state change.
func (c *Controller) Subscribe(fn func(State)) {
	c.listeners = append(c.listeners, fn)
}

// State returns the current snapshot.
func (c *Controller) State() State {
	return c.state
}

// Shown reports whether id is the shown conversation.
func (c *Controller) Shown(id string) bool {
	return !c.state.Idle() && c.state.ActiveID == id
}

// IsActive is Shown under the name the engine uses.
func (c *Controller) IsActive(id string) bool {
	return c.Shown(id)
}

// PanelOpen reports whether the side panel of id is open.
func (c *Controller) PanelOpen(id string) bool {
	return c.panels[id]
}

// OpenPanels returns the number of open side panels.
func (c *Controller) OpenPanels() int {
	n := 0
	for _, open := range c.panels {
		if open {
			n++
		}
	}
	return n
}

// SelectPrivate shows the private chat id, hiding everything else.
func (c *Controller) SelectPrivate(id string) (State, error) {
	return c.selectConversation(id, conversation.Private)
}

// SelectGroup shows the group id, hiding everything else.
func (c *Controller) SelectGroup(id string) (State, error) {
	return c.selectConversation(id, conversation.Group)
}

// Select dispatches on kind.
func (c *Controller) Select(id string, kind conversation.Kind) (State, error) {
	return c.selectConversation(id, kind)
}

func (c *Controller) selectConversation(id string, kind conversation.Kind) (State, error) {
	if id == "" || !kind.Valid() {
		return c.state, ErrInvalidTarget
	}
	if c.activator != nil {
		if err := c.activator.Admit(id, kind); err != nil {
			log.Printf("[focus] select %s(%s) rejected: %v", kind, id, err)
			return c.state, err
		}
	}

	reselected := c.state.ActiveID == id && c.state.ActiveKind == kind

	// All side panels close on any selection, private and group alike.
	for k := range c.panels {
		delete(c.panels, k)
	}
	c.state = State{ActiveID: id, ActiveKind: kind}

	if c.activator != nil {
		c.activator.Activated(id, kind, reselected)
	}
	c.notify()
	return c.state, nil
}

// OpenPanel opens the side panel of the active conversation.
func (c *Controller) OpenPanel(id string) (State, error) {
	return c.setPanel(id, true)
}

// ClosePanel closes the side panel of the active conversation.
func (c *Controller) ClosePanel(id string) (State, error) {
	return c.setPanel(id, false)
}

func (c *Controller) setPanel(id string, open bool) (State, error) {
	if !c.Shown(id) {
		log.Printf("[focus] panel open=%v for conversation=%s ignored, active=%q", open, id, c.state.ActiveID)
		return c.state, ErrNotActive
	}
	if c.panels[id] == open {
		return c.state, nil
	}
	if open {
		c.panels[id] = true
	} else {
		delete(c.panels, id)
	}
	next := c.state
	next.PanelOpen = open
	c.state = next
	c.notify()
	return c.state, nil
}

// Forget drops id from the focus state; if it was shown the controller
// returns to Idle.
func (c *Controller) Forget(id string) State {
	delete(c.panels, id)
	if c.Shown(id) {
		c.state = State{}
		c.notify()
	}
	return c.state
}

func (c *Controller) notify() {
	for _, fn := range c.listeners {
		fn(c.state)
	}
}
