package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"marketfeed/config"
	"marketfeed/internal/metrics"
	"marketfeed/internal/models"
	"marketfeed/logger"
)

// Connection lifecycle states.
const (
	StateConnecting = "connecting"
	StateConnected  = "connected"
	StateDegraded   = "degraded"
	StateClosed     = "closed"
)

// Conn owns one persistent websocket carrying a batch of topics. It dials,
// subscribes, keeps the link alive with pings and reconnects with exponential
// backoff until its context is cancelled or the attempt budget runs out.
type Conn struct {
	id     string
	cfg    config.StreamConfig
	url    string
	topics []string
	frames chan<- models.StreamFrame
	log    *logger.Log

	mu      sync.RWMutex
	state   string
	writeMu sync.Mutex
	ackSeen bool
}

func newConn(cfg config.StreamConfig, wsURL string, topics []string, frames chan<- models.StreamFrame) *Conn {
	return &Conn{
		id:     uuid.NewString()[:8],
		cfg:    cfg,
		url:    wsURL,
		topics: topics,
		frames: frames,
		log:    logger.GetLogger(),
		state:  StateConnecting,
	}
}

// State reports the current lifecycle state.
func (c *Conn) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) setState(s string) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// newBackoff builds the reconnect delay sequence: doubling from the minimum
// to the maximum, without jitter so consecutive delays never decrease.
func newBackoff(cfg config.StreamConfig) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    time.Duration(cfg.ReconnectMinDelayMs) * time.Millisecond,
		Max:    time.Duration(cfg.ReconnectMaxDelayMs) * time.Millisecond,
		Factor: 2,
	}
}

// run drives the connect/read/reconnect loop. A session that survives past
// the rapid-failure threshold resets the backoff, so a healthy connection
// that finally drops reconnects quickly instead of inheriting stale delays.
func (c *Conn) run(ctx context.Context) {
	log := c.log.WithComponent("stream_conn").WithFields(logger.Fields{
		"connection": c.id,
		"topics":     len(c.topics),
	})

	bo := newBackoff(c.cfg)
	rapid := time.Duration(c.cfg.RapidFailureThresholdMs) * time.Millisecond
	attempts := 0

	for {
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}

		c.setState(StateConnecting)
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}
		// The socket is down from here until the next dial succeeds.
		c.setState(StateDegraded)

		if time.Since(started) > rapid {
			bo.Reset()
			attempts = 0
		}
		attempts++
		metrics.IncrementReconnect(c.id)

		if c.cfg.ReconnectMaxAttempts > 0 && attempts >= c.cfg.ReconnectMaxAttempts {
			log.WithError(err).WithFields(logger.Fields{"attempts": attempts}).Error("reconnect budget exhausted, abandoning connection")
			return
		}

		delay := bo.Duration()
		log.WithError(err).WithFields(logger.Fields{
			"attempt": attempts,
			"delay":   delay.String(),
		}).Warn("connection lost, reconnecting")

		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return
		case <-time.After(delay):
		}
	}
}

// session runs one connection from dial to first read error.
func (c *Conn) session(ctx context.Context) error {
	if err := c.checkReachable(); err != nil {
		return fmt.Errorf("reachability check: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(c.cfg.DialTimeoutMs) * time.Millisecond,
	}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	if err := c.subscribe(ws); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.setState(StateConnected)
	c.log.WithComponent("stream_conn").WithFields(logger.Fields{
		"connection": c.id,
		"topics":     len(c.topics),
	}).Info("connection established")

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ws, done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	// Subscription acks are optional on some deployments; a missing ack is
	// logged but does not fail the session.
	ackTimer := time.AfterFunc(time.Duration(c.cfg.AckTimeoutMs)*time.Millisecond, func() {
		c.mu.RLock()
		seen := c.ackSeen
		c.mu.RUnlock()
		if !seen {
			c.log.WithComponent("stream_conn").WithFields(logger.Fields{
				"connection": c.id,
			}).Warn("no subscription ack within timeout, continuing")
		}
	})
	defer ackTimer.Stop()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handleMessage(ctx, msg)
	}
}

// checkReachable probes the endpoint's TCP port before the websocket
// handshake so an unreachable host fails fast instead of burning the full
// dial timeout.
func (c *Conn) checkReachable() error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "wss" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	timeout := time.Duration(c.cfg.ReachabilityTimeoutMs) * time.Millisecond
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Conn) subscribe(ws *websocket.Conn) error {
	c.mu.Lock()
	c.ackSeen = false
	c.mu.Unlock()

	req := models.SubscribeRequest{
		Op:    "subscribe",
		Args:  c.topics,
		ReqID: uuid.NewString(),
	}
	return c.writeJSON(ws, req)
}

func (c *Conn) writeJSON(ws *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(v)
}

func (c *Conn) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	interval := time.Duration(c.cfg.PingIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping := map[string]string{"op": "ping", "req_id": uuid.NewString()}
			if err := c.writeJSON(ws, ping); err != nil {
				return
			}
		}
	}
}

// handleMessage forwards data frames and consumes control messages.
func (c *Conn) handleMessage(ctx context.Context, msg []byte) {
	var frame models.StreamFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		metrics.IncrementMalformedFrame("bad_json")
		c.log.WithComponent("stream_conn").WithError(err).Debug("undecodable message, skipping")
		return
	}

	if frame.Topic == "" {
		c.handleControl(msg)
		return
	}

	select {
	case c.frames <- frame:
	case <-ctx.Done():
	}
}

func (c *Conn) handleControl(msg []byte) {
	var ack models.SubscriptionAck
	if err := json.Unmarshal(msg, &ack); err != nil {
		return
	}
	switch ack.Op {
	case "subscribe":
		c.mu.Lock()
		c.ackSeen = true
		c.mu.Unlock()
		if !ack.Success {
			c.log.WithComponent("stream_conn").WithFields(logger.Fields{
				"connection": c.id,
				"ret_msg":    ack.RetMsg,
			}).Error("subscription rejected")
		}
	case "pong", "ping":
		// keepalive, nothing to do
	}
}
