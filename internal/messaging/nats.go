// Package messaging provides the NATS transport for the sync engine: the
// per-user live event stream and the outbound intent subject.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	SubjectEvents  = "events"  // + .<user_id>, server -> client
	SubjectIntents = "intents" // + .<user_id>, client -> server
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "chatsync",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeEvents delivers every event published to events.<userID>.
func (c *NATSClient) SubscribeEvents(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectEvents+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeEvents stops the live event stream for userID.
func (c *NATSClient) UnsubscribeEvents(userID string) error {
	return c.unsubscribe(SubjectEvents + "." + userID)
}

// PublishIntent publishes an encoded intent on intents.<userID>.
func (c *NATSClient) PublishIntent(userID string, data []byte) error {
	if err := c.Publish(SubjectIntents+"."+userID, data); err != nil {
		return fmt.Errorf("nats publish intent: %w", err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Per-user channel
// ---------------------------------------------------------------------------

// UserChannel binds a NATSClient to one user's event and intent subjects.
type UserChannel struct {
	client *NATSClient
	userID string
}

// ForUser returns the channel pair of userID.
func (c *NATSClient) ForUser(userID string) *UserChannel {
	return &UserChannel{client: c, userID: userID}
}

// Listen starts delivering live events to handler. handler runs on a NATS
// goroutine and must hand the payload off without blocking.
func (u *UserChannel) Listen(handler func(data []byte)) error {
	return u.client.SubscribeEvents(u.userID, handler)
}

// Publish sends one encoded intent.
func (u *UserChannel) Publish(data []byte) error {
	return u.client.PublishIntent(u.userID, data)
}

// Close stops the event subscription and closes the connection.
func (u *UserChannel) Close() error {
	err := u.client.UnsubscribeEvents(u.userID)
	u.client.Close()
	return err
}
