package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	ackTimeout           = 10 * time.Second
	reconnectMinInterval = 1 * time.Second
	reconnectMaxInterval = 5 * time.Second
)

var ErrNotConnected = errors.New("realtime channel not connected")

// Event is the frame exchanged with the POS server. Acknowledgements echo
// the id of the frame they answer.
type Event struct {
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     bool            `json:"ack,omitempty"`
}

type Handler func(payload json.RawMessage)

// Channel keeps a persistent websocket connection to whichever base URL the
// locator currently resolves to, reconnecting forever with 1-5s backoff.
type Channel struct {
	resolveURL   func(ctx context.Context) string
	onConnect    func()
	onDisconnect func()

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]Handler
	pending  map[string]chan json.RawMessage
	writeMu  sync.Mutex
}

func NewChannel(resolveURL func(ctx context.Context) string) *Channel {
	return &Channel{
		resolveURL: resolveURL,
		handlers:   make(map[string]Handler),
		pending:    make(map[string]chan json.RawMessage),
	}
}

// On registers a handler for a named inbound event. Must be called before
// Run.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// OnConnect registers a hook fired every time the connection is established.
// Must be called before Run.
func (c *Channel) OnConnect(f func()) {
	c.onConnect = f
}

// OnDisconnect registers a hook fired every time the connection drops. Must
// be called before Run.
func (c *Channel) OnDisconnect(f func()) {
	c.onDisconnect = f
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run blocks until ctx is cancelled, dialing and reading the connection and
// re-dialing on every failure. Reconnection never gives up.
func (c *Channel) Run(ctx context.Context) {

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectMinInterval
	b.MaxInterval = reconnectMaxInterval
	b.MaxElapsedTime = 0

	_ = backoff.Retry(func() error {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		default:
		}

		wsURL := toWebsocketURL(c.resolveURL(ctx))
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			logger.Warningf("Realtime dial %s failed: %s", wsURL, err.Error())
			return err
		}

		logger.Infof("Realtime channel connected to %s", wsURL)
		b.Reset()
		c.setConn(conn)
		if c.onConnect != nil {
			c.onConnect()
		}
		err = c.readLoop(conn)
		c.setConn(nil)
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		logger.Warningf("Realtime channel dropped: %s", err.Error())
		return err
	}, backoff.WithContext(b, ctx))

	c.setConn(nil)
}

// Emit sends an event and waits up to 10 seconds for the server's
// acknowledgement frame.
func (c *Channel) Emit(ctx context.Context, event string, payload any) (json.RawMessage, error) {

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w", ErrNotConnected)
	}
	id := uuid.NewString()
	ackCh := make(chan json.RawMessage, 1)
	c.pending[id] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = conn.WriteJSON(Event{ID: id, Name: event, Payload: body})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send event %w", err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no acknowledgement for %s within %s", event, ackTimeout)
	case ack := <-ackCh:
		return ack, nil
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}

		if ev.Ack && ev.ID != "" {
			c.mu.Lock()
			ackCh, ok := c.pending[ev.ID]
			c.mu.Unlock()
			if ok {
				ackCh <- ev.Payload
			}
			continue
		}

		c.mu.Lock()
		handler, ok := c.handlers[ev.Name]
		c.mu.Unlock()
		if ok {
			handler(ev.Payload)
		}
	}
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil && conn == nil {
		old.Close()
	}
}

func toWebsocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	}
	return baseURL + "/ws"
}
