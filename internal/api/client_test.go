package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/whisper/chat-sync/internal/conversation"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.Timeout = 2 * time.Second
	cfg.Token = "tok"
	return NewClient(cfg)
}

func TestFetchHistory_Private(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/chats/12/history" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.Write([]byte(`{"messages":[
			{"id":"m1","sender_id":1,"sender":"Al","content":"hi","timestamp":"2024-05-01 10:00:00","is_read":true},
			{"id":"m2","sender_id":2,"sender":"Bo","content":"yo","timestamp":"2024-05-01 10:00:05","is_read":false}
		]}`))
	})

	msgs, err := c.FetchHistory(context.Background(), conversation.Private, "12")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].SenderName != "Al" || !msgs[0].IsRead {
		t.Errorf("unexpected first message %+v", msgs[0])
	}
}

func TestFetchHistory_GroupPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups/g7/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"messages":[]}`))
	})
	msgs, err := c.FetchHistory(context.Background(), conversation.Group, "g7")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d", len(msgs))
	}
}

func TestFetchHistory_InvalidKind(t *testing.T) {
	c := NewClient(DefaultConfig())
	if _, err := c.FetchHistory(context.Background(), conversation.None, "x"); err == nil {
		t.Fatal("expected error for kind none")
	}
}

func TestFetchHistory_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Conversation not found"}`))
	})

	_, err := c.FetchHistory(context.Background(), conversation.Private, "404")
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServerError, got %T", err)
	}
	if se.Status != http.StatusNotFound || se.Message != "Conversation not found" {
		t.Errorf("unexpected server error %+v", se)
	}
}

func TestFetchHistory_Transport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = url
	c := NewClient(cfg)

	_, err := c.FetchHistory(context.Background(), conversation.Private, "1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFetchHistory_GarbageBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})
	_, err := c.FetchHistory(context.Background(), conversation.Private, "1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for undecodable body, got %v", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/messages/m9/delete" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"message":"Message deleted successfully"}`))
	})
	if err := c.DeleteMessage(context.Background(), "m9"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
}

func TestDeleteMessage_ErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"You can only delete your own messages"}`))
	})
	err := c.DeleteMessage(context.Background(), "m9")
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServerError, got %v", err)
	}
	if se.Message != "You can only delete your own messages" {
		t.Errorf("unexpected message %q", se.Message)
	}
}

func TestDeleteMessage_ConfirmedWithoutError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty object", http.StatusOK, `{}`},
		{"message only", http.StatusOK, `{"message":"Message deleted successfully"}`},
		{"no content", http.StatusNoContent, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			if err := c.DeleteMessage(context.Background(), "m9"); err != nil {
				t.Fatalf("DeleteMessage: %v", err)
			}
		})
	}
}

func TestDeleteMessage_FailureStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	err := c.DeleteMessage(context.Background(), "m9")
	var se *ServerError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("expected 403 *ServerError, got %v", err)
	}
}

func TestMembershipEndpoints(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = nil
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode body: %v", err)
			}
		}
		w.Write([]byte(`{"message":"ok"}`))
	})
	ctx := context.Background()

	msg, err := c.AddMembers(ctx, "g1", []string{"u1", "u2"})
	if err != nil || msg != "ok" {
		t.Fatalf("AddMembers = %q, %v", msg, err)
	}
	if gotPath != "/group/g1/add_member" {
		t.Errorf("add path %s", gotPath)
	}
	members, _ := gotBody["members"].([]interface{})
	if len(members) != 2 || members[0] != "u1" {
		t.Errorf("unexpected members body %v", gotBody)
	}

	if _, err := c.KickMember(ctx, "g1", "u2"); err != nil {
		t.Fatalf("KickMember: %v", err)
	}
	if gotPath != "/group/g1/kick_member" || gotBody["member_id"] != "u2" {
		t.Errorf("kick request %s %v", gotPath, gotBody)
	}

	if _, err := c.LeaveGroup(ctx, "g1"); err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	if gotPath != "/group/g1/leave" {
		t.Errorf("leave path %s", gotPath)
	}
}

func TestMembership_Forbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Unauthorized action"}`))
	})
	_, err := c.KickMember(context.Background(), "g1", "u2")
	var se *ServerError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("expected 403 ServerError, got %v", err)
	}
}
