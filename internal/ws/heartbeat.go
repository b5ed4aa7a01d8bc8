package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // max time to wait for activity after ping (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// heartbeat pings the server every Interval until the client closes. A
// server that stays silent for Interval + Timeout trips the read deadline
// and ends the read loop.
func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.config.Heartbeat.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				log.Printf("[ws] heartbeat ping failed: %v", err)
				c.Close()
				return
			}
		}
	}
}

// writePing sends a masked protocol-level ping frame.
func (c *Client) writePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.conn, ws.MaskFrame(ws.NewPingFrame(nil)))
}

func (c *Client) extendReadDeadline() {
	hb := c.config.Heartbeat
	if hb.Interval <= 0 {
		return
	}
	c.conn.SetReadDeadline(time.Now().Add(hb.Interval + hb.Timeout))
}
