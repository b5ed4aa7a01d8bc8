// Package ws is the WebSocket transport for the sync engine, built on
// gobwas/ws. A Client carries live events from the server and intents to it
// over one connection.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrAlreadyListening is returned when Listen is called twice.
var ErrAlreadyListening = errors.New("ws: already listening")

// ClientConfig holds tunable parameters for the WebSocket client.
type ClientConfig struct {
	URL          string        // e.g. ws://localhost:5000/ws
	WriteTimeout time.Duration // timeout for a single frame write
	Heartbeat    HeartbeatConfig
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:          "ws://localhost:5000/ws",
		WriteTimeout: 10 * time.Second,
		Heartbeat:    DefaultHeartbeatConfig(),
	}
}

// Client is a single WebSocket connection to the chat backend.
type Client struct {
	conn    net.Conn
	src     io.Reader // frame source; starts with the handshake tail
	config  ClientConfig
	writeMu sync.Mutex // serializes frames written to conn

	mu        sync.Mutex
	listening bool

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to config.URL.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	conn, br, _, err := ws.Dial(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", config.URL, err)
	}
	log.Printf("[ws] connected to %s", config.URL)

	// br is non-nil when the server sent frames in the same packet as the
	// handshake response.
	var src io.Reader = conn
	if br != nil {
		src = &handshakeTail{br: br, conn: conn}
	}

	return &Client{
		conn:   conn,
		src:    src,
		config: config,
		done:   make(chan struct{}),
	}, nil
}

// handshakeTail drains the bytes buffered during the handshake before
// reading from the connection, then returns the buffer to the pool.
type handshakeTail struct {
	br   *bufio.Reader
	conn net.Conn
}

func (h *handshakeTail) Read(p []byte) (int, error) {
	if h.br != nil {
		if h.br.Buffered() > 0 {
			return h.br.Read(p)
		}
		ws.PutReader(h.br)
		h.br = nil
	}
	return h.conn.Read(p)
}

// Listen starts the read loop and the heartbeat. handler receives the payload
// of every text or binary frame, on the read goroutine.
func (c *Client) Listen(handler func(data []byte)) error {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	c.listening = true
	c.mu.Unlock()

	go c.readLoop(handler)
	if c.config.Heartbeat.Interval > 0 {
		go c.heartbeat()
	}
	return nil
}

// Publish writes data as one text frame.
func (c *Client) Publish(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// Done is closed once the connection has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop(handler func(data []byte)) {
	defer c.Close()

	for {
		data, err := c.next()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[ws] read loop stopped: %v", err)
			}
			return
		}
		handler(data)
	}
}

// next returns the payload of the next data frame, answering control frames
// on the way.
func (c *Client) next() ([]byte, error) {
	control := wsutil.ControlFrameHandler(c.conn, ws.StateClientSide)
	locked := func(h ws.Header, r io.Reader) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return control(h, r)
	}

	rd := wsutil.Reader{
		Source:         c.src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: locked,
	}

	for {
		c.extendReadDeadline()

		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := locked(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(&rd)
	}
}
