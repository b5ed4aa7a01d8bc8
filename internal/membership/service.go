// Package membership handles group membership changes (add, kick, leave)
// and user presence.
//
// Requests run off the engine loop; their results come back on it as
// notices. Leaving a group, or kicking yourself from one, removes the group
// conversation locally once the server confirms.
package membership

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/whisper/chat-sync/internal/api"
	"github.com/whisper/chat-sync/internal/gateway"
	"github.com/whisper/chat-sync/internal/loop"
	"github.com/whisper/chat-sync/internal/metrics"
)

var (
	// ErrNoMembersSelected is returned by AddMembers when there is nobody
	// to add. No request is issued.
	ErrNoMembersSelected = errors.New("membership: no members selected")

	ErrInvalidGroup  = errors.New("membership: group id is required")
	ErrInvalidMember = errors.New("membership: member id is required")

	// ErrInFlight is returned when the same request is already waiting for
	// the server.
	ErrInFlight = errors.New("membership: request already in flight")
)

// API is the subset of the REST client used for membership changes. Each
// call returns the server's confirmation text.
type API interface {
	AddMembers(ctx context.Context, groupID string, members []string) (string, error)
	KickMember(ctx context.Context, groupID, memberID string) (string, error)
	LeaveGroup(ctx context.Context, groupID string) (string, error)
}

// Conversations is implemented by *gateway.Gateway.
type Conversations interface {
	RemoveConversation(id string) bool
	Notify(kind gateway.NoticeKind, conversationID, text string) gateway.Notice
}

type Config struct {
	UserID         string
	RequestTimeout time.Duration
}

// Service issues membership requests. All methods must be called on the
// engine loop.
type Service struct {
	cfg       Config
	loop      *loop.Loop
	api       API
	conv      Conversations
	selection *Selection
	inflight  map[string]bool
}

func NewService(cfg Config, l *loop.Loop, client API, conv Conversations) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Service{
		cfg:       cfg,
		loop:      l,
		api:       client,
		conv:      conv,
		selection: NewSelection(),
		inflight:  make(map[string]bool),
	}
}

// Selection returns the add-member selection.
func (s *Service) Selection() *Selection {
	return s.selection
}

// AddMembers asks the server to add members to the group. Blank and
// repeated ids are dropped; if none remain ErrNoMembersSelected is returned
// without a request. The selection is cleared once the server accepts.
func (s *Service) AddMembers(groupID string, members []string) error {
	if groupID == "" {
		return ErrInvalidGroup
	}
	ids := normalize(members)
	if len(ids) == 0 {
		metrics.MembershipOps.WithLabelValues("add", "rejected").Inc()
		return ErrNoMembersSelected
	}
	return s.call("add", groupID, "",
		func(ctx context.Context) (string, error) { return s.api.AddMembers(ctx, groupID, ids) },
		s.selection.Clear)
}

// AddSelected adds the currently selected users to the group.
func (s *Service) AddSelected(groupID string) error {
	return s.AddMembers(groupID, s.selection.Selected())
}

// Kick removes memberID from the group. Kicking yourself drops the group
// conversation.
func (s *Service) Kick(groupID, memberID string) error {
	if groupID == "" {
		return ErrInvalidGroup
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return ErrInvalidMember
	}
	var after func()
	if memberID == s.cfg.UserID {
		after = func() { s.conv.RemoveConversation(groupID) }
	}
	return s.call("kick", groupID, memberID,
		func(ctx context.Context) (string, error) { return s.api.KickMember(ctx, groupID, memberID) },
		after)
}

// Leave takes the local user out of the group and drops the conversation.
func (s *Service) Leave(groupID string) error {
	if groupID == "" {
		return ErrInvalidGroup
	}
	return s.call("leave", groupID, "",
		func(ctx context.Context) (string, error) { return s.api.LeaveGroup(ctx, groupID) },
		func() { s.conv.RemoveConversation(groupID) })
}

func (s *Service) call(op, groupID, memberID string, req func(context.Context) (string, error), onSuccess func()) error {
	key := op + ":" + groupID + ":" + memberID
	if s.inflight[key] {
		return ErrInFlight
	}
	s.inflight[key] = true

	s.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()
		text, err := req(ctx)
		return func() {
			delete(s.inflight, key)
			s.done(op, groupID, text, err, onSuccess)
		}
	})
	return nil
}

func (s *Service) done(op, groupID, text string, err error, onSuccess func()) {
	if err != nil {
		log.Printf("[membership] %s group=%s: %v", op, groupID, err)
		metrics.MembershipOps.WithLabelValues(op, "failed").Inc()
		msg := failureText[op]
		var se *api.ServerError
		if errors.As(err, &se) && se.Message != "" {
			msg = se.Message
		}
		s.conv.Notify(gateway.NoticeError, groupID, msg)
		return
	}

	metrics.MembershipOps.WithLabelValues(op, "ok").Inc()
	if onSuccess != nil {
		onSuccess()
	}
	if text == "" {
		text = successText[op]
	}
	s.conv.Notify(gateway.NoticeInfo, groupID, text)
}

var successText = map[string]string{
	"add":   "Members added",
	"kick":  "Member removed",
	"leave": "You left the group",
}

var failureText = map[string]string{
	"add":   "Could not add members",
	"kick":  "Could not remove member",
	"leave": "Could not leave the group",
}

// normalize trims ids and drops blanks and repeats, keeping order.
func normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
