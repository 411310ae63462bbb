package devtool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// State describes the connection lifecycle of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Client.
type Options struct {
	// URL is the WebSocket debugger endpoint.
	URL string

	// ConnectTimeout bounds one connection establishment attempt.
	ConnectTimeout time.Duration

	// CallTimeout bounds one request/response round trip.
	CallTimeout time.Duration

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	// Reconnection deliberately does not use backoff growth: it targets an
	// endpoint that is already known to be reachable.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts bounds one automatic reconnect cycle.
	MaxReconnectAttempts int

	// EventBufferSize is the console event buffer capacity; the oldest
	// events are evicted once it is exceeded.
	EventBufferSize int

	// Logger is the logger for the client.
	Logger logr.Logger

	// Dial establishes the underlying transport. Defaults to DialWebSocket.
	Dial Dialer
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 256
	}
	if o.Dial == nil {
		o.Dial = DialWebSocket
	}
	return o
}

// Client owns one persistent connection to a debugging endpoint and
// correlates responses to outstanding requests by id.
type Client struct {
	opts Options
	log  logr.Logger

	mu        sync.Mutex
	state     State
	transport Transport

	// gen is the connection generation. The read loop of a torn-down
	// connection must not disturb a newer one.
	gen int

	nextID  int64
	pending map[int64]*pendingCall

	consoleEnabled bool
	events         *eventBuffer

	// connectDone is closed when an explicit Connect finishes; late Connect
	// and Call invocations join the in-flight dial instead of racing it.
	connectDone chan struct{}
	connectErr  error

	// reconnecting guards against overlapping reconnect cycles; the active
	// cycle owns reconnectDone and reconnectErr.
	reconnecting  bool
	reconnectDone chan struct{}
	reconnectErr  error
}

// NewClient creates a Client for the given endpoint. Connect must be called
// before issuing calls.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Client{
		opts:    opts,
		log:     log,
		state:   StateDisconnected,
		pending: make(map[int64]*pendingCall),
		events:  newEventBuffer(opts.EventBufferSize),
	}
}

// Endpoint returns the WebSocket URL this client targets.
func (c *Client) Endpoint() string {
	return c.opts.URL
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection and starts the inbound frame router.
// A Connect issued while another one is dialing joins the in-flight attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		done := c.connectDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		err := c.connectErr
		c.mu.Unlock()
		return err
	}
	c.state = StateConnecting
	done := make(chan struct{})
	c.connectDone = done
	c.mu.Unlock()

	t, dialErr := c.dialTransport(ctx)
	if dialErr != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.connectErr = dialErr
		c.mu.Unlock()
		close(done)
		return dialErr
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.connectErr = ErrClientClosed
		c.mu.Unlock()
		t.Close()
		close(done)
		return ErrClientClosed
	}
	c.transport = t
	c.gen++
	gen := c.gen
	c.state = StateConnected
	c.connectErr = nil
	c.mu.Unlock()
	close(done)

	c.log.V(1).Info("Connected", "url", c.opts.URL)
	go c.readLoop(gen, t)
	return nil
}

func (c *Client) dialTransport(ctx context.Context) (Transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	return c.opts.Dial(dialCtx, c.opts.URL)
}

// Call issues a request and blocks until the matching response arrives, the
// per-call timeout elapses, the connection drops, or ctx is cancelled. If the
// client is not connected it first waits for reconnection, bounded by the
// attempt budget.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.call(ctx, method, params)
}

// call issues a request on the current connection without consulting the
// reconnection supervisor. Used directly when re-arming subscriptions from
// within a reconnect cycle.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state != StateConnected || c.transport == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, ErrConnectionLost)
	}
	c.nextID++
	id := c.nextID
	pc := &pendingCall{id: id, method: method, done: make(chan callResult, 1)}
	c.pending[id] = pc
	t := c.transport
	c.mu.Unlock()

	if writeErr := t.WriteFrame(&request{ID: id, Method: method, Params: params}); writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w: %v", method, ErrConnectionLost, writeErr)
	}

	timer := time.NewTimer(c.opts.CallTimeout)
	defer timer.Stop()

	select {
	case res := <-pc.done:
		return res.result, res.err

	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w after %s", method, ErrCallTimeout, c.opts.CallTimeout)

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// readLoop continuously reads frames from the transport and routes them.
// One loop exists per connection generation.
func (c *Client) readLoop(gen int, t Transport) {
	for {
		f, readErr := t.ReadFrame()
		if readErr != nil {
			c.handleConnectionLoss(gen, readErr)
			return
		}
		c.route(f)
	}
}

// route delivers a response frame to its waiting caller, or collects a
// notification frame into the console event buffer.
func (c *Client) route(f *frame) {
	if f.isResponse() {
		c.mu.Lock()
		pc, ok := c.pending[*f.ID]
		if ok {
			delete(c.pending, *f.ID)
		}
		c.mu.Unlock()

		if !ok {
			// The caller already timed out or was swept by a disconnect.
			c.log.V(2).Info("Dropping response for unknown request id", "id", *f.ID)
			return
		}

		if f.Error != nil {
			pc.done <- callResult{err: &RemoteError{Method: pc.method, Message: f.Error.Message, Code: f.Error.Code}}
		} else {
			pc.done <- callResult{result: f.Result}
		}
		return
	}

	c.mu.Lock()
	c.events.Append(eventFromFrame(f, time.Now()))
	c.mu.Unlock()
}

// handleConnectionLoss sweeps all outstanding calls and, unless the loss was
// intentional, hands control to the reconnect cycle.
func (c *Client) handleConnectionLoss(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateClosed {
		// A newer connection exists, or this was an intentional close.
		c.mu.Unlock()
		return
	}

	c.log.V(1).Info("Connection lost", "cause", cause.Error())

	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.failAllPendingLocked()

	// Demote before the re-entrancy check: a reconnect cycle that is about
	// to declare success must observe the loss and keep retrying, and no
	// caller may see StateConnected with a nil transport.
	c.state = StateReconnecting
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.startReconnectLocked()
	c.mu.Unlock()
}

// failAllPendingLocked rejects every outstanding call with ErrConnectionLost
// and leaves the pending table empty. Caller holds c.mu.
func (c *Client) failAllPendingLocked() {
	for id, pc := range c.pending {
		pc.done <- callResult{err: fmt.Errorf("%s: %w", pc.method, ErrConnectionLost)}
		delete(c.pending, id)
	}
}

func (c *Client) startReconnectLocked() {
	c.reconnecting = true
	c.reconnectErr = nil
	c.reconnectDone = make(chan struct{})
	go c.reconnectLoop(c.reconnectDone)
}

// reconnectLoop retries connection establishment with a fixed delay up to
// the attempt budget, re-arming console capture after success.
func (c *Client) reconnectLoop(done chan struct{}) {
	var finalErr error

attempts:
	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		time.Sleep(c.opts.ReconnectDelay)

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			finalErr = ErrClientClosed
			break attempts
		}
		c.mu.Unlock()

		t, dialErr := c.dialTransport(context.Background())
		if dialErr != nil {
			c.log.V(1).Info("Reconnect attempt failed", "attempt", attempt, "error", dialErr.Error())
			continue
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			t.Close()
			finalErr = ErrClientClosed
			break attempts
		}
		c.transport = t
		c.gen++
		gen := c.gen
		c.state = StateConnected
		rearm := c.consoleEnabled
		c.mu.Unlock()

		go c.readLoop(gen, t)

		if rearm {
			// Observers must not need to know a reconnect happened.
			if rearmErr := c.armConsoleCapture(context.Background()); rearmErr != nil {
				c.log.Error(rearmErr, "Failed to re-arm console capture after reconnect")
			}
		}

		// The new connection may already have died while this goroutine was
		// re-arming; only declare success if it is still the live one.
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			finalErr = ErrClientClosed
			break attempts
		}
		if c.gen != gen || c.transport != t || c.state != StateConnected {
			c.mu.Unlock()
			c.log.V(1).Info("Reconnected transport dropped immediately, retrying", "attempt", attempt)
			continue
		}
		c.mu.Unlock()

		c.log.Info("Reconnected", "url", c.opts.URL, "attempt", attempt)
		c.finishReconnect(done, nil)
		return
	}

	if finalErr == nil {
		finalErr = fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, c.opts.MaxReconnectAttempts)
	}

	c.mu.Lock()
	if c.state == StateReconnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	c.finishReconnect(done, finalErr)
}

func (c *Client) finishReconnect(done chan struct{}, err error) {
	c.mu.Lock()
	c.reconnecting = false
	c.reconnectErr = err
	c.mu.Unlock()
	close(done)
}

// ensureConnected returns once the client is connected, joining an in-flight
// Connect or joining (or starting) a reconnect cycle when it is not. The
// reconnect wait is bounded by the attempt budget:
// maxAttempts * (delay + connect timeout).
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	for c.state == StateConnecting {
		// An explicit Connect is dialing; wait for it rather than racing it
		// with a second dial, then re-evaluate.
		connDone := c.connectDone
		c.mu.Unlock()
		select {
		case <-connDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	}
	if !c.reconnecting {
		c.state = StateReconnecting
		c.startReconnectLocked()
	}
	done := c.reconnectDone
	c.mu.Unlock()

	maxWait := time.Duration(c.opts.MaxReconnectAttempts) * (c.opts.ReconnectDelay + c.opts.ConnectTimeout)
	timer := time.NewTimer(maxWait + time.Second)
	defer timer.Stop()

	select {
	case <-done:
		c.mu.Lock()
		err := c.reconnectErr
		state := c.state
		c.mu.Unlock()
		if err != nil {
			return err
		}
		if state != StateConnected {
			return ErrConnectionLost
		}
		return nil

	case <-timer.C:
		return fmt.Errorf("%w: no connection after %s", ErrReconnectExhausted, maxWait)

	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnableConsoleCapture subscribes to console notifications. The subscription
// survives reconnects.
func (c *Client) EnableConsoleCapture(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	if err := c.armConsoleCapture(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.consoleEnabled = true
	c.mu.Unlock()
	return nil
}

func (c *Client) armConsoleCapture(ctx context.Context) error {
	for _, method := range []string{"Runtime.enable", "Console.enable"} {
		if _, err := c.call(ctx, method, nil); err != nil {
			return fmt.Errorf("failed to enable console capture: %w", err)
		}
	}
	return nil
}

// ConsoleEvents returns the buffered console events, oldest first.
func (c *Client) ConsoleEvents() []ConsoleEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.Snapshot()
}

// ClearConsoleEvents discards all buffered console events.
func (c *Client) ClearConsoleEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events.Clear()
}

// Close permanently closes the client. Auto-reconnect is suppressed, every
// outstanding call is rejected, and the event buffer is cleared.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.failAllPendingLocked()
	c.events.Clear()
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t != nil {
		return t.Close()
	}
	return nil
}
