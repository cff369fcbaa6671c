// Package stream fans refresh events out to websocket subscribers. The
// most recent event of every topic is retained and replayed to clients
// that subscribe later, so a new client learns the live snapshot at once.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/inelson/kubesql/pkg/event"
)

const sendBuffer = 64

type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	retained map[string][]byte
	dropped  atomic.Int64
	logger   *slog.Logger
}

// Client is one websocket subscriber. An empty topic set receives every
// topic.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	topicsMu sync.RWMutex
	topics   map[string]struct{}
}

// control is a message sent by a client to change its subscription.
type control struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		retained: make(map[string][]byte),
		logger:   logger,
	}
}

func (h *Hub) Register(ctx context.Context, conn *websocket.Conn) *Client {
	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    cctx,
		cancel: cancel,
		topics: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("stream client connected", "total", total)
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	c.once.Do(func() { close(c.send) })
	h.logger.Info("stream client disconnected", "total", total)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts events discarded because a client's buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Publish retains e as the latest event of its topic and queues it for
// every matching client. A client with a full buffer loses the event.
func (h *Hub) Publish(e *event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	h.retained[e.Topic] = data
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(e.Topic) {
			h.enqueue(c, data, e.Topic)
		}
	}
}

// Subscribe narrows c to topics and replays the retained event of each.
func (h *Hub) Subscribe(c *Client, topics ...string) {
	c.topicsMu.Lock()
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	c.topicsMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, t := range topics {
		if data, ok := h.retained[t]; ok {
			h.enqueue(c, data, t)
		}
	}
}

// Unsubscribe removes topics from c. Removing the last topic makes c
// receive every topic again.
func (h *Hub) Unsubscribe(c *Client, topics ...string) {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

// Serve pumps c until its connection or context ends, applying control
// messages read from the client.
func (h *Hub) Serve(c *Client) {
	go func() {
		defer c.conn.CloseNow()
		for {
			_, data, err := c.conn.Read(c.ctx)
			if err != nil {
				c.cancel()
				return
			}
			h.handleControl(c, data)
		}
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (h *Hub) handleControl(c *Client, data []byte) {
	var msg control
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("ignoring malformed control message", "error", err)
		return
	}
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics...)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics...)
	default:
		h.logger.Debug("ignoring unknown control action", "action", msg.Action)
		return
	}
	h.logger.Debug("stream subscription changed", "action", msg.Action, "topics", msg.Topics)
}

// enqueue must be called with h.mu held for reading.
func (h *Hub) enqueue(c *Client, data []byte, topic string) {
	select {
	case c.send <- data:
	default:
		h.dropped.Add(1)
		h.logger.Warn("stream client buffer full, dropping event", "topic", topic)
	}
}

func (c *Client) wants(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	if len(c.topics) == 0 {
		return true
	}
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) Context() context.Context {
	return c.ctx
}

// Write sends one message directly, bypassing the queue.
func (c *Client) Write(data []byte) error {
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}
