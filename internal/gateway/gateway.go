// Package gateway connects the conversation state to the outside world: it
// issues history fetches, applies live events, and turns user commands into
// outbound intents and REST calls. Every exported method must be called on
// the engine loop; network calls run off-loop and re-enter it on completion.
package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/focus"
	"github.com/whisper/chat-sync/internal/loop"
	"github.com/whisper/chat-sync/internal/ratelimit"
)

var (
	// ErrThrottled is returned when a send is suppressed by the cool-down.
	ErrThrottled = errors.New("gateway: send throttled")

	// ErrUnknownMessage is returned for commands on a message that is in no
	// registered conversation.
	ErrUnknownMessage = errors.New("gateway: unknown message")
)

// HistoryFetcher loads the full history of a conversation.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, kind conversation.Kind, id string) ([]chat.Message, error)
}

// MessageDeleter deletes a message server-side.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, id chat.MessageID) error
}

// Publisher delivers an encoded outbound intent to the live transport.
type Publisher interface {
	Publish(data []byte) error
}

// Config holds gateway settings.
type Config struct {
	UserID         string        // local user; own messages never count as unread
	RequestTimeout time.Duration // per history/delete request
	MaxNotices     int           // oldest notices are dropped beyond this
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		MaxNotices:     20,
	}
}

// Deps are the gateway's collaborators. Throttle may be nil, in which case an
// in-process cool-down of ratelimit.DefaultSendCooldown is used.
type Deps struct {
	Loop      *loop.Loop
	Registry  *conversation.Registry
	Focus     *focus.Controller
	History   HistoryFetcher
	Deleter   MessageDeleter
	Publisher Publisher
	Throttle  ratelimit.Throttle
}

// Gateway is the sync gateway.
type Gateway struct {
	cfg      Config
	loop     *loop.Loop
	reg      *conversation.Registry
	store    *chat.Store
	focus    *focus.Controller
	history  HistoryFetcher
	deleter  MessageDeleter
	pub      Publisher
	throttle ratelimit.Throttle

	gen     map[string]uint64 // latest history fetch per conversation
	sending map[string]bool   // conversations with a send in flight
	notices []Notice

	onChange func()
	onStatus func(userID, status string)
	now      func() time.Time
}

// New creates a Gateway and installs it as the focus controller's activator.
func New(cfg Config, deps Deps) *Gateway {
	if cfg.MaxNotices <= 0 {
		cfg.MaxNotices = DefaultConfig().MaxNotices
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	throttle := deps.Throttle
	if throttle == nil {
		throttle = ratelimit.NewCooldown(ratelimit.DefaultSendCooldown)
	}

	g := &Gateway{
		cfg:      cfg,
		loop:     deps.Loop,
		reg:      deps.Registry,
		store:    chat.NewStore(deps.Registry),
		focus:    deps.Focus,
		history:  deps.History,
		deleter:  deps.Deleter,
		pub:      deps.Publisher,
		throttle: throttle,
		gen:      make(map[string]uint64),
		sending:  make(map[string]bool),
		now:      time.Now,
	}
	deps.Focus.SetActivator(g)
	return g
}

// Store returns the message store the gateway writes to.
func (g *Gateway) Store() *chat.Store {
	return g.store
}

// SetChangeHook registers fn to be called whenever visible state changes.
func (g *Gateway) SetChangeHook(fn func()) {
	g.onChange = fn
}

// SetStatusHook registers fn to receive status_update events.
func (g *Gateway) SetStatusHook(fn func(userID, status string)) {
	g.onStatus = fn
}

// RemoveConversation drops a conversation and its log, and hides it if it
// was shown. Completions still in flight for it are discarded on arrival.
func (g *Gateway) RemoveConversation(id string) bool {
	if !g.reg.Remove(id) {
		return false
	}
	// gen is kept so a fetch issued before removal can never match a fetch
	// issued after re-registration.
	delete(g.sending, id)
	g.focus.Forget(id)
	g.changed()
	log.Printf("[gateway] conversation=%s removed", id)
	return true
}

func (g *Gateway) changed() {
	if g.onChange != nil {
		g.onChange()
	}
}

func (g *Gateway) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
}
