// Package engine is the thread-safe front of the sync engine. It owns the
// loop and every loop-owned component; commands from any goroutine are
// posted to the loop and report their result on a channel.
package engine

import (
	"context"
	"sync"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/focus"
	"github.com/whisper/chat-sync/internal/gateway"
	"github.com/whisper/chat-sync/internal/loop"
	"github.com/whisper/chat-sync/internal/membership"
	"github.com/whisper/chat-sync/internal/metrics"
	"github.com/whisper/chat-sync/internal/ratelimit"
)

// Config holds engine settings.
type Config struct {
	Gateway   gateway.Config
	QueueWarn int // loop depth that triggers a warning; zero disables
}

// Deps are the engine's outside collaborators. Throttle may be nil.
type Deps struct {
	History   gateway.HistoryFetcher
	Deleter   gateway.MessageDeleter
	Members   membership.API
	Publisher gateway.Publisher
	Throttle  ratelimit.Throttle
}

// View is a snapshot of everything the UI renders. Slices are owned by the
// receiver.
type View struct {
	Focus         focus.State
	Active        []chat.Message // messages of the shown conversation
	Conversations []conversation.Summary
	Notices       []gateway.Notice
	Online        []string
	Selected      []string // add-member selection
}

// Unread returns the unread total across all conversations.
func (v View) Unread() int {
	n := 0
	for _, c := range v.Conversations {
		n += c.Unread
	}
	return n
}

// Engine wires the loop-owned components together.
type Engine struct {
	loop     *loop.Loop
	reg      *conversation.Registry
	focus    *focus.Controller
	gw       *gateway.Gateway
	members  *membership.Service
	presence *membership.Presence

	dirty bool // loop-owned

	mu       sync.Mutex
	view     View
	onChange func(View)
}

// New builds an engine. Nothing runs until Run is called.
func New(cfg Config, deps Deps) *Engine {
	e := &Engine{
		loop:     loop.New(cfg.QueueWarn),
		reg:      conversation.NewRegistry(),
		focus:    focus.NewController(nil),
		presence: membership.NewPresence(),
	}
	e.gw = gateway.New(cfg.Gateway, gateway.Deps{
		Loop:      e.loop,
		Registry:  e.reg,
		Focus:     e.focus,
		History:   deps.History,
		Deleter:   deps.Deleter,
		Publisher: deps.Publisher,
		Throttle:  deps.Throttle,
	})
	e.members = membership.NewService(membership.Config{
		UserID:         cfg.Gateway.UserID,
		RequestTimeout: cfg.Gateway.RequestTimeout,
	}, e.loop, deps.Members, e.gw)

	e.gw.SetChangeHook(e.markDirty)
	e.gw.SetStatusHook(func(userID, status string) {
		if e.presence.Update(userID, status) {
			e.markDirty()
		}
	})
	e.focus.Subscribe(func(focus.State) { e.markDirty() })

	e.loop.SetDepthObserver(func(depth int) {
		metrics.LoopQueueDepth.Set(float64(depth))
	})
	e.loop.SetAfterTask(e.flush)
	return e
}

// Run processes commands and events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.loop.Run(ctx)
}

// OnChange registers fn to receive a fresh View after every task that
// changed visible state. fn runs on the loop goroutine and must not block.
func (e *Engine) OnChange(fn func(View)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// View returns the most recently published snapshot.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

func (e *Engine) markDirty() {
	e.dirty = true
}

// flush publishes a new View if the last task changed anything.
func (e *Engine) flush() {
	if !e.dirty {
		return
	}
	e.dirty = false

	v := e.snapshot()
	metrics.Conversations.Set(float64(len(v.Conversations)))
	metrics.UnreadTotal.Set(float64(v.Unread()))

	e.mu.Lock()
	e.view = v
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

func (e *Engine) snapshot() View {
	v := View{
		Focus:         e.focus.State(),
		Conversations: e.reg.List(),
		Notices:       e.gw.Notices(),
		Online:        e.presence.OnlineUsers(),
		Selected:      e.members.Selection().Selected(),
	}
	if !v.Focus.Idle() {
		v.Active, _ = e.gw.Store().Messages(v.Focus.ActiveID)
	}
	return v
}
