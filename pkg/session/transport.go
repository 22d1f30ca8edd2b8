package session

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Subscription identifies one channel the session wants data for. The set
// of subscriptions is keyed, so subscribing twice to the same channel is a
// no-op.
type Subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
}

func (s Subscription) Key() string {
	k := s.Type
	if s.Coin != "" {
		k += ":" + s.Coin
	}
	if s.User != "" {
		k += ":" + s.User
	}
	return k
}

// Frame is one inbound socket message. IsSnapshot marks a full-state
// refresh that must replace, never merge with, prior channel state.
type Frame struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	IsSnapshot bool            `json:"-"`
}

type subscribeMessage struct {
	Method       string       `json:"method"`
	Subscription Subscription `json:"subscription"`
}

type pingMessage struct {
	Method string `json:"method"`
}

// Conn is one established socket connection. ReadFrame blocks until a
// frame arrives or the connection fails.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteJSON(v any) error
	Close() error
}

// Transport dials socket connections. The session machine is the sole
// consumer; tests substitute a fake.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSTransport is the production gorilla/websocket transport.
type WSTransport struct {
	dialer *websocket.Dialer
}

func NewWSTransport() *WSTransport {
	return &WSTransport{dialer: websocket.DefaultDialer}
}

func (t *WSTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c   *websocket.Conn
	wmu sync.Mutex
}

func (c *wsConn) ReadFrame() (Frame, error) {
	_, raw, err := c.c.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	return parseFrame(raw)
}

func (c *wsConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.c.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.c.Close()
}

func parseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(f.Data) > 0 {
		var probe struct {
			IsSnapshot bool `json:"isSnapshot"`
		}
		if json.Unmarshal(f.Data, &probe) == nil {
			f.IsSnapshot = probe.IsSnapshot
		}
	}
	return f, nil
}
