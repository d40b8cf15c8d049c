// Package sync carries order updates between clients in real time. The
// client side keeps a websocket to the hub with automatic re-registration
// and bounded backoff; the hub side applies team updates to the backing
// store and fans the result out to the dispatcher and same-team rooms.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"packline/internal/models"
	"packline/internal/monitoring"
)

// ConnState is the connection lifecycle state
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateRegistered
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}

// ErrChannelNotReady is returned when a publish is attempted before the
// channel is registered. Callers degrade to local-only optimistic mode; the
// condition is surfaced as a status indicator, never as a fatal error.
var ErrChannelNotReady = errors.New("sync channel not registered")

// Reconciler receives inbound order updates for merging into the caller's
// role-scoped cache, and order deletions for direct removal from it.
type Reconciler interface {
	ReconcileRemote(source models.TeamType, order models.Order)
	RemoveRemote(orderID string)
}

// Options configures a sync client
type Options struct {
	URL  string
	Role string
	Team models.TeamType

	PingInterval time.Duration
	PongTimeout  time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

func (o *Options) withDefaults() {
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = 90 * time.Second
	}
	if o.BackoffMin == 0 {
		o.BackoffMin = time.Second
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = 30 * time.Second
	}
}

// Client maintains one realtime channel connection for a role
type Client struct {
	opts       Options
	reconciler Reconciler
	monitor    *monitoring.Monitor

	state    atomic.Int32
	unstable atomic.Bool
	lastPong atomic.Int64

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client; call Run to connect
func NewClient(opts Options, reconciler Reconciler, monitor *monitoring.Monitor) *Client {
	opts.withDefaults()
	return &Client{
		opts:       opts,
		reconciler: reconciler,
		monitor:    monitor,
	}
}

// State returns the current connection state
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Unstable reports whether the heartbeat has gone unanswered past the
// timeout. A true value degrades the displayed status only; the connection
// is not torn down for it.
func (c *Client) Unstable() bool {
	return c.unstable.Load()
}

// Run dials the hub and keeps the connection alive until the context is
// cancelled. Reconnection uses bounded exponential backoff, and every
// reconnect re-registers: the hub is not assumed to remember prior
// registrations.
func (c *Client) Run(ctx context.Context) {
	backoff := c.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			log.Printf("sync: dial %s failed: %v", c.opts.URL, err)
			monitoring.SyncReconnects.Inc()
			if !sleepCtx(ctx, backoff) {
				c.setState(StateDisconnected)
				return
			}
			backoff = nextBackoff(backoff, c.opts.BackoffMax)
			continue
		}

		c.setConn(conn)
		c.setState(StateConnected)
		monitoring.SyncConnects.Inc()

		if err := c.register(); err != nil {
			log.Printf("sync: register failed: %v", err)
			conn.Close()
			continue
		}

		registered := c.readLoop(ctx, conn)
		c.setConn(nil)
		c.setState(StateDisconnected)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if registered {
			// The connection was healthy at some point; start backoff over.
			backoff = c.opts.BackoffMin
		} else {
			backoff = nextBackoff(backoff, c.opts.BackoffMax)
		}
		monitoring.SyncReconnects.Inc()
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

// PublishUpdate sends a team's quantity increments for one order to the hub.
// The channel must be registered; otherwise the caller stays in local-only
// optimistic mode and retries after reconnection.
func (c *Client) PublishUpdate(orderID string, team models.TeamType, items []models.ItemUpdate) error {
	if c.State() != StateRegistered {
		return ErrChannelNotReady
	}
	return c.write(Message{
		Type:      TypeUpdateOrderStatus,
		OrderID:   orderID,
		TeamType:  team,
		Items:     items,
		Timestamp: time.Now().UTC(),
	})
}

// readLoop consumes frames until the connection breaks. Returns whether the
// registration ack arrived on this connection.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	c.lastPong.Store(time.Now().UnixNano())
	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		if c.unstable.CompareAndSwap(true, false) {
			c.recordStatus()
		}
		return nil
	})

	pingDone := make(chan struct{})
	go c.pingLoop(ctx, conn, pingDone)
	defer close(pingDone)

	registered := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("sync: connection lost: %v", err)
			}
			return registered
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("sync: dropping malformed message: %v", err)
			continue
		}

		switch msg.Type {
		case TypeRegistered:
			registered = true
			c.setState(StateRegistered)
		case TypeOrderUpdated:
			c.handleOrderUpdated(msg)
		case TypeOrderDeleted:
			c.handleOrderDeleted(msg)
		case TypeError:
			log.Printf("sync: hub error: %s", msg.Message)
		default:
			log.Printf("sync: ignoring message type %q", msg.Type)
		}
	}
}

// handleOrderUpdated feeds an inbound update to the reconciler. Team clients
// only merge updates from their own team; the hub's room scoping should
// already guarantee that, this filter is the second line of defense.
func (c *Client) handleOrderUpdated(msg Message) {
	if msg.Order == nil {
		log.Printf("sync: dropping order-updated without order payload")
		return
	}
	if c.opts.Role != models.RoleDispatcher && msg.TeamType != c.opts.Team {
		log.Printf("sync: dropping cross-team update from %s", msg.TeamType)
		return
	}
	monitoring.SyncMessagesMerged.Inc()
	c.reconciler.ReconcileRemote(msg.TeamType, *msg.Order)
}

// handleOrderDeleted removes a deleted order from the local cache. Deletions
// apply to every role; there is no team filter.
func (c *Client) handleOrderDeleted(msg Message) {
	if msg.OrderID == "" {
		log.Printf("sync: dropping order-deleted without order_id")
		return
	}
	c.reconciler.RemoveRemote(msg.OrderID)
}

// pingLoop sends heartbeats while the connection is up. A pong missing past
// the timeout marks the connection unstable without forcing a reconnect.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			since := time.Since(time.Unix(0, c.lastPong.Load()))
			if since > c.opts.PongTimeout {
				if c.unstable.CompareAndSwap(false, true) {
					log.Printf("sync: no pong for %s, marking connection unstable", since.Round(time.Second))
					c.recordStatus()
				}
			}
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) register() error {
	return c.write(Message{
		Type: TypeRegister,
		Role: c.opts.Role,
		Team: string(c.opts.Team),
	})
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrChannelNotReady
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
	c.recordStatus()
}

// recordStatus publishes the displayed connection status
func (c *Client) recordStatus() {
	if c.monitor == nil {
		return
	}
	status := c.State().String()
	if c.unstable.Load() && c.State() == StateRegistered {
		status = "unstable"
	}
	c.monitor.RecordMetric("sync_connection_status", status)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
