// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence maintains the long-lived websocket connection to
// the presence hub. The client authenticates with the session token,
// queues outbound messages while disconnected, mirrors the friends
// presence map, and re-publishes hub events it does not handle itself
// on the event bus.
//
// The connection loops through Disconnected, Connecting, and Connected
// indefinitely: any non-fatal close schedules a reconnect after a
// fixed delay. A fatal close (the hub's policy code) ends the loop and
// surfaces a notice instead; the user has to re-authenticate before a
// new Connect attempt makes sense.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/lux-foundation/lux/lib/clock"
	"github.com/lux-foundation/lux/lib/eventbus"
	"github.com/lux-foundation/lux/lib/netutil"
)

// Hub event tags handled by the client itself. Anything else with a
// string tag is re-published on the bus for external subscribers.
const (
	eventListening          = "listening"
	eventFullPresence       = "full_friend_presence"
	eventPresenceUpdate     = "friend_presence_update"
	actionPresenceUpdate    = "presence_update"
	fatalCloseCode          = websocket.StatusCode(3000)
	writeTimeout            = 10 * time.Second
	defaultReconnectBackoff = 5 * time.Second
)

// SubjectNotice is the bus subject for user-visible connection
// notices.
const SubjectNotice = "presence_notice"

// Notice kinds published under SubjectNotice.
const (
	NoticeFatal       = "fatal"
	NoticeUnreachable = "unreachable"
	NoticeError       = "error"
)

// Notice is a user-visible connection event: the hub terminated the
// session, or it could not be reached at all.
type Notice struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// State is the connection state of the client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FriendStatus is one friend's entry in the presence map.
type FriendStatus struct {
	Online bool   `json:"online"`
	Status string `json:"status"`
}

// inboundFrame is the hub-to-client wire shape.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outboundFrame is the client-to-hub wire shape.
type outboundFrame struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// presenceEntry is the per-friend record in hub presence events.
type presenceEntry struct {
	FriendID string `json:"friend_id"`
	Online   bool   `json:"online"`
	Status   string `json:"status"`
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HubURL is the websocket URL of the presence hub.
	HubURL string

	// Token returns the bearer credential presented at dial time. It
	// is called on every connection attempt so that a refreshed token
	// is picked up on reconnect.
	Token func() string

	// Bus receives re-published hub events and connection notices.
	Bus *eventbus.Bus

	// ReconnectInterval is the fixed delay between a disconnect and
	// the next connection attempt. Defaults to 5 seconds.
	ReconnectInterval time.Duration

	// DefaultStatus is the presence status asserted after connecting
	// until SetPresence overrides it.
	DefaultStatus string

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock drives the reconnect delay. If nil, clock.Real() is used.
	Clock clock.Clock
}

// Client is the presence hub client. One long-lived instance is
// constructed and owned by the session coordinator. Safe for
// concurrent use.
type Client struct {
	hubURL            string
	token             func() string
	bus               *eventbus.Bus
	reconnectInterval time.Duration
	logger            *slog.Logger
	clock             clock.Clock

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	queue   [][]byte
	friends map[string]FriendStatus
	status  string
	running bool
	cancel  context.CancelFunc

	// writeMu serializes frame writes: the read loop's queue flush
	// and external Send calls share the connection.
	writeMu sync.Mutex
}

// NewClient creates a presence client. The connection is not opened
// until Connect.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HubURL == "" {
		return nil, fmt.Errorf("presence: HubURL is required")
	}
	if config.Token == nil {
		return nil, fmt.Errorf("presence: Token is required")
	}
	if config.Bus == nil {
		return nil, fmt.Errorf("presence: Bus is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := config.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	interval := config.ReconnectInterval
	if interval <= 0 {
		interval = defaultReconnectBackoff
	}

	return &Client{
		hubURL:            config.HubURL,
		token:             config.Token,
		bus:               config.Bus,
		reconnectInterval: interval,
		logger:            logger,
		clock:             timeSource,
		friends:           make(map[string]FriendStatus),
		status:            config.DefaultStatus,
	}, nil
}

// Connect starts the connection loop. A no-op while the loop is
// already running (connecting or connected).
func (c *Client) Connect() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Close tears the connection down and stops the reconnect loop.
// Idempotent; Connect may be called again afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Presence returns a copy of the friends presence map.
func (c *Client) Presence() map[string]FriendStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]FriendStatus, len(c.friends))
	for id, status := range c.friends {
		snapshot[id] = status
	}
	return snapshot
}

// SetPresence records the local status and pushes it to the hub if
// connected. A status set while disconnected is not queued — the
// post-reconnect re-assert sends the latest value anyway, so a stale
// replay would be wrong.
func (c *Client) SetPresence(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.Send(actionPresenceUpdate, map[string]string{"status": status}, false)
}

// Status returns the locally set presence status.
func (c *Client) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send transmits an action frame to the hub. If disconnected the frame
// is enqueued (FIFO, flushed after the next successful connect) when
// shouldQueue is true, and dropped otherwise.
func (c *Client) Send(action string, data any, shouldQueue bool) {
	frame, err := json.Marshal(outboundFrame{Action: action, Data: data})
	if err != nil {
		c.logger.Warn("presence send: encoding frame", "action", action, "error", err)
		return
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		if shouldQueue {
			c.queue = append(c.queue, frame)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.write(conn, frame); err != nil {
		c.logger.Warn("presence send failed", "action", action, "error", err)
	}
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// run is the connection loop: dial, read until close, classify the
// close, and either stop or wait out the reconnect delay.
func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = Disconnected
		c.conn = nil
		c.mu.Unlock()
	}()

	for {
		c.setState(Connecting)

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.reportDialFailure(err)
			c.setState(Disconnected)
			if !c.waitReconnect(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = Connected
		c.mu.Unlock()
		c.logger.Info("presence connected", "hub", c.hubURL)

		readErr := c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.state = Disconnected
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		closeStatus := websocket.CloseStatus(readErr)
		if closeStatus == fatalCloseCode {
			c.logger.Error("presence hub terminated the session", "code", int(closeStatus))
			c.bus.PublishJSON(SubjectNotice, Notice{
				Kind:   NoticeFatal,
				Reason: readErr.Error(),
			})
			return
		}

		c.logger.Info("presence disconnected, will reconnect",
			"code", int(closeStatus),
			"error", readErr,
		)
		if !c.waitReconnect(ctx) {
			return
		}
	}
}

// dial opens the websocket with the bearer credential and the
// platform-qualified user-agent.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if token := c.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	header.Set("User-Agent", netutil.UserAgent())

	conn, resp, err := websocket.Dial(ctx, c.hubURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// reportDialFailure publishes the user-visible notice for a failed
// connection attempt. Connection refused gets its own kind so the UI
// can phrase "servers unreachable" rather than a generic error.
func (c *Client) reportDialFailure(err error) {
	kind := NoticeError
	if errors.Is(err, syscall.ECONNREFUSED) {
		kind = NoticeUnreachable
		c.logger.Warn("presence hub refused connection", "error", err)
	} else {
		c.logger.Warn("presence dial failed", "error", err)
	}
	c.bus.PublishJSON(SubjectNotice, Notice{Kind: kind, Reason: err.Error()})
}

// waitReconnect blocks for the reconnect interval. Returns false when
// the context ended during the wait.
func (c *Client) waitReconnect(ctx context.Context) bool {
	select {
	case <-c.clock.After(c.reconnectInterval):
		return true
	case <-ctx.Done():
		return false
	}
}

// readLoop dispatches inbound frames until the connection drops.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("presence discarding unparsable frame", "error", err)
			continue
		}
		c.handleEvent(conn, frame)
	}
}

// handleEvent processes one inbound hub event.
func (c *Client) handleEvent(conn *websocket.Conn, frame inboundFrame) {
	switch frame.Event {
	case eventListening:
		c.flushQueue(conn)
		c.Send(actionPresenceUpdate, map[string]string{"status": c.Status()}, false)

	case eventFullPresence:
		var entries []presenceEntry
		if err := json.Unmarshal(frame.Data, &entries); err != nil {
			c.logger.Warn("presence discarding malformed snapshot", "error", err)
			return
		}
		rebuilt := make(map[string]FriendStatus, len(entries))
		for _, entry := range entries {
			rebuilt[entry.FriendID] = FriendStatus{Online: entry.Online, Status: entry.Status}
		}
		c.mu.Lock()
		c.friends = rebuilt
		c.mu.Unlock()

	case eventPresenceUpdate:
		var entry presenceEntry
		if err := json.Unmarshal(frame.Data, &entry); err != nil {
			c.logger.Warn("presence discarding malformed update", "error", err)
			return
		}
		c.mu.Lock()
		c.friends[entry.FriendID] = FriendStatus{Online: entry.Online, Status: entry.Status}
		c.mu.Unlock()

	case "":
		// Untagged frames are ignored.

	default:
		c.bus.Publish(frame.Event, frame.Data)
	}
}

// flushQueue drains the outbound queue in FIFO order. Called on the
// hub's listening ack, not on socket open — the hub is not ready to
// route actions until it says so.
func (c *Client) flushQueue(conn *websocket.Conn) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, frame := range pending {
		if err := c.write(conn, frame); err != nil {
			c.logger.Warn("presence queue flush failed", "error", err)
			return
		}
	}
}

// setState updates the connection state.
func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
