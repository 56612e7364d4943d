package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const signalingHandshakeTimeout = 10 * time.Second

// signalMessage is the room signaling wire format, both directions.
type signalMessage struct {
	Type string `json:"type"`

	// join
	Room  string `json:"room,omitempty"`
	Token string `json:"token,omitempty"`

	// offer / answer
	SDP string `json:"sdp,omitempty"`

	// active_speakers
	Speakers []string `json:"speakers,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// signalingClient is a thin websocket client for the room's signaling
// plane. The room adapter owns its lifecycle.
type signalingClient struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newSignalingClient() *signalingClient {
	return &signalingClient{}
}

// dial connects and joins the room.
func (c *signalingClient) dial(ctx context.Context, url, room, token string) error {
	dialer := websocket.Dialer{HandshakeTimeout: signalingHandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("signaling dial failed: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	return c.send(&signalMessage{Type: "join", Room: room, Token: token})
}

// send writes one message. Safe for concurrent use.
func (c *signalingClient) send(msg *signalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return fmt.Errorf("signaling not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// read blocks for the next message.
func (c *signalingClient) read() (*signalMessage, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil, fmt.Errorf("signaling not connected")
	}
	var msg signalMessage
	if err := ws.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// close tears the socket down. Safe to call twice.
func (c *signalingClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		c.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"leave"}`))
		c.ws.Close()
		c.ws = nil
	}
}
