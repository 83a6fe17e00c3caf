package hub

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame is the JSON wire message exchanged with the hub. Invocations carry a
// target method and arguments; inbound events reuse the same shape.
type Frame struct {
	Type      string        `json:"type"`
	Target    string        `json:"target,omitempty"`
	Arguments []interface{} `json:"arguments,omitempty"`
}

const (
	frameInvoke = "invoke"
	frameEvent  = "event"
)

// Conn is one live hub connection.
type Conn interface {
	Invoke(ctx context.Context, target string, args ...interface{}) error
	Close() error
}

// DialOptions selects the transport mode. SkipNegotiation dials the websocket
// directly, bypassing the negotiate handshake; it is the degraded mode used
// when negotiation is rejected.
type DialOptions struct {
	SkipNegotiation bool
}

// Callbacks receive transport lifecycle notifications and inbound events.
// OnClose fires only when the connection is lost for good (automatic
// reconnection exhausted); OnReconnecting/OnReconnected bracket a transport
// initiated recovery.
type Callbacks struct {
	OnEvent        func(target string, payload Payload)
	OnClose        func(err error)
	OnReconnecting func(err error)
	OnReconnected  func()
}

// Dialer establishes hub connections. The websocket implementation is the
// production dialer; tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, hubURL string, opts DialOptions, cb Callbacks) (Conn, error)
}

// reconnectDelays mirrors the client policy the dashboard always shipped
// with: immediate, 2s, 10s, 30s, then give up.
var reconnectDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

type wsDialer struct {
	httpClient *http.Client
	writeWait  time.Duration
}

// NewWebsocketDialer returns the production dialer.
func NewWebsocketDialer(httpClient *http.Client) Dialer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &wsDialer{httpClient: httpClient, writeWait: 10 * time.Second}
}

type negotiateResponse struct {
	ConnectionID string `json:"connectionId"`
}

// negotiate performs the pre-connect handshake and returns the connection id
// to append to the websocket URL.
func (d *wsDialer) negotiate(ctx context.Context, hubURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(hubURL, "/")+"/negotiate?negotiateVersion=1", nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "hub negotiate")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("hub negotiate: unexpected status %d", resp.StatusCode)
	}
	var nr negotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return "", errors.Wrap(err, "hub negotiate decode")
	}
	return nr.ConnectionID, nil
}

func websocketURL(hubURL, connectionID string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	if connectionID != "" {
		q := u.Query()
		q.Set("id", connectionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (d *wsDialer) Dial(ctx context.Context, hubURL string, opts DialOptions, cb Callbacks) (Conn, error) {
	connectionID := ""
	if !opts.SkipNegotiation {
		id, err := d.negotiate(ctx, hubURL)
		if err != nil {
			return nil, err
		}
		connectionID = id
	}
	wsURL, err := websocketURL(hubURL, connectionID)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "hub dial")
	}
	c := &wsConn{
		dialer:    d,
		hubURL:    hubURL,
		opts:      opts,
		cb:        cb,
		ws:        ws,
		writeWait: d.writeWait,
		done:      make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// wsConn wraps a gorilla websocket with a read pump and transport-level
// automatic reconnection. Establishment failures are never retried here; the
// reconnect loop only runs after a connection was live at least once.
type wsConn struct {
	dialer *wsDialer
	hubURL string
	opts   DialOptions
	cb     Callbacks

	mu        sync.Mutex // guards ws writes and replacement
	ws        *websocket.Conn
	writeWait time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) Invoke(ctx context.Context, target string, args ...interface{}) error {
	data, err := json.Marshal(Frame{Type: frameInvoke, Target: target, Arguments: args})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(c.writeWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		err = c.ws.Close()
		c.mu.Unlock()
	})
	return err
}

func (c *wsConn) readPump() {
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()

		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if !c.reconnect(err) {
				if c.cb.OnClose != nil {
					c.cb.OnClose(err)
				}
				return
			}
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			zap.L().Warn("hub: malformed frame", zap.Error(err))
			continue
		}
		if c.cb.OnEvent == nil || frame.Target == "" {
			continue
		}
		payload := Payload{}
		if len(frame.Arguments) > 0 {
			if p, ok := frame.Arguments[0].(map[string]interface{}); ok {
				payload = p
			}
		}
		c.cb.OnEvent(frame.Target, payload)
	}
}

// reconnect walks the backoff schedule redialing the hub. Returns false when
// every attempt failed or the connection was closed locally.
func (c *wsConn) reconnect(cause error) bool {
	if c.cb.OnReconnecting != nil {
		c.cb.OnReconnecting(cause)
	}
	for _, delay := range reconnectDelays {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		connectionID := ""
		var err error
		if !c.opts.SkipNegotiation {
			connectionID, err = c.dialer.negotiate(ctx, c.hubURL)
		}
		if err == nil {
			var wsURL string
			wsURL, err = websocketURL(c.hubURL, connectionID)
			if err == nil {
				var ws *websocket.Conn
				ws, _, err = websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
				if err == nil {
					cancel()
					c.mu.Lock()
					c.ws = ws
					c.mu.Unlock()
					if c.cb.OnReconnected != nil {
						c.cb.OnReconnected()
					}
					return true
				}
			}
		}
		cancel()
		zap.L().Warn("hub: reconnect attempt failed", zap.Duration("delay", delay), zap.Error(err))
	}
	return false
}
