// Package relay talks to the voice-message backend: the mailbox-like
// channel other devices push audio messages through. One websocket,
// strict request/response framing, a single redial on a dead socket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
)

// Inbound is one voice message waiting in the remote mailbox.
type Inbound struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	Audio  []byte    `json:"audio"`
	SentAt time.Time `json:"sent_at"`
}

type frame struct {
	Op       string    `json:"op"`
	Device   string    `json:"device,omitempty"`
	To       string    `json:"to,omitempty"`
	Audio    []byte    `json:"audio,omitempty"`
	Messages []Inbound `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Client struct {
	url    string
	device string

	mu   sync.Mutex
	conn *ws.Conn
}

func Dial(url, device string) (*Client, error) {
	c := &Client{url: url, device: device}
	if err := c.redial(); err != nil {
		return nil, err
	}
	log.Info("relay: connected", "url", url, "device", device)
	return c, nil
}

func (c *Client) redial() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	conn, _, err := ws.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.conn = conn
	return nil
}

// Pull asks the backend for every message addressed to this device.
// The backend keeps messages until told otherwise; dedupe is the
// poller's job.
func (c *Client) Pull(ctx context.Context) ([]Inbound, error) {
	var resp frame
	err := c.roundTrip(ctx, frame{Op: "pull", Device: c.device}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send pushes one voice message to another device's mailbox.
func (c *Client) Send(ctx context.Context, to string, audio []byte) error {
	var resp frame
	if err := c.roundTrip(ctx, frame{Op: "send", Device: c.device, To: to, Audio: audio}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("relay rejected send: %s", resp.Error)
	}
	return nil
}

// roundTrip performs one request/response exchange, reconnecting once
// when the socket turns out to be dead.
func (c *Client) roundTrip(ctx context.Context, req frame, resp *frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.exchange(ctx, req, resp)
	if err == nil {
		return nil
	}

	log.Warn("relay: exchange failed, redialing", "op", req.Op, "err", err)
	if rerr := c.redial(); rerr != nil {
		return rerr
	}
	return c.exchange(ctx, req, resp)
}

func (c *Client) exchange(ctx context.Context, req frame, resp *frame) error {
	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(ws.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", req.Op, err)
	}

	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read %s reply: %w", req.Op, err)
	}
	return json.Unmarshal(raw, resp)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Unread counts messages announced but not yet asked about. The poller
// increments; an unread query reads and clears.
type Unread struct {
	n atomic.Int64
}

func (u *Unread) Add(delta int) { u.n.Add(int64(delta)) }
func (u *Unread) Load() int { return int(u.n.Load()) }
func (u *Unread) Reset() { u.n.Store(0) }
