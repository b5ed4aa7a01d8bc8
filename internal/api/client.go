// Package api is the REST client for history, deletion and group membership
// endpoints. Transport problems are reported as ErrTransport; bodies carrying
// an "error" field or a failure status become *ServerError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/whisper/chat-sync/internal/chat"
	"github.com/whisper/chat-sync/internal/conversation"
	"github.com/whisper/chat-sync/internal/metrics"
	"github.com/whisper/chat-sync/internal/protocol"
)

var (
	// ErrTransport wraps network failures and unreadable responses.
	ErrTransport = errors.New("api: transport failure")

	// ErrServer is matched by every *ServerError.
	ErrServer = errors.New("api: server error")
)

// ServerError is a business error reported by the backend.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: server error (status %d): %s", e.Status, e.Message)
}

// Unwrap lets errors.Is(err, ErrServer) match.
func (e *ServerError) Unwrap() error { return ErrServer }

// Config holds REST client settings.
type Config struct {
	BaseURL string        // e.g. http://localhost:5000
	Timeout time.Duration // per request
	Token   string        // optional bearer token
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Timeout: 10 * time.Second,
	}
}

// Client talks to the chat backend over HTTP.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient creates a Client for cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchHistory loads the full history of a private chat or group.
func (c *Client) FetchHistory(ctx context.Context, kind conversation.Kind, id string) ([]chat.Message, error) {
	var path string
	switch kind {
	case conversation.Private:
		path = "/chats/" + url.PathEscape(id) + "/history"
	case conversation.Group:
		path = "/groups/" + url.PathEscape(id) + "/history"
	default:
		return nil, fmt.Errorf("api: fetch history: invalid kind %s", kind)
	}

	var resp protocol.HistoryResponse
	if err := c.do(ctx, "history", http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("api: fetch history %s: %w", id, err)
	}
	msgs, dropped := resp.ToMessages()
	if dropped > 0 {
		log.Printf("[api] history %s: dropped %d malformed entries", id, dropped)
	}
	return msgs, nil
}

// DeleteMessage asks the server to delete a message. Any response without
// an "error" field and with a status below 400 confirms the delete, whatever
// else the body holds.
func (c *Client) DeleteMessage(ctx context.Context, id chat.MessageID) error {
	path := "/messages/" + url.PathEscape(string(id)) + "/delete"
	if err := c.do(ctx, "delete", http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("api: delete message %s: %w", id, err)
	}
	return nil
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// AddMembers adds users to a group and returns the server's confirmation.
func (c *Client) AddMembers(ctx context.Context, groupID string, members []string) (string, error) {
	body := map[string][]string{"members": members}
	var resp messageResponse
	if err := c.do(ctx, "add_member", http.MethodPost, "/group/"+url.PathEscape(groupID)+"/add_member", body, &resp); err != nil {
		return "", fmt.Errorf("api: add members to %s: %w", groupID, err)
	}
	return resp.Message, nil
}

// KickMember removes memberID from a group.
func (c *Client) KickMember(ctx context.Context, groupID, memberID string) (string, error) {
	body := map[string]string{"member_id": memberID}
	var resp messageResponse
	if err := c.do(ctx, "kick_member", http.MethodPost, "/group/"+url.PathEscape(groupID)+"/kick_member", body, &resp); err != nil {
		return "", fmt.Errorf("api: kick %s from %s: %w", memberID, groupID, err)
	}
	return resp.Message, nil
}

// LeaveGroup removes the current user from a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, "leave", http.MethodPost, "/group/"+url.PathEscape(groupID)+"/leave", nil, &resp); err != nil {
		return "", fmt.Errorf("api: leave %s: %w", groupID, err)
	}
	return resp.Message, nil
}

// do performs one request and decodes a JSON body into out. A non-empty
// "error" field or a status >= 400 yields a *ServerError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	start := time.Now()
	defer func() {
		metrics.APILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIErrors.WithLabelValues(op, "transport").Inc()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.APIErrors.WithLabelValues(op, "transport").Inc()
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var errBody struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &errBody)

	if errBody.Error != "" || resp.StatusCode >= http.StatusBadRequest {
		msg := errBody.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		metrics.APIErrors.WithLabelValues(op, "server").Inc()
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			metrics.APIErrors.WithLabelValues(op, "transport").Inc()
			return fmt.Errorf("%w: decode body: %v", ErrTransport, err)
		}
	}
	return nil
}
