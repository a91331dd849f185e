package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Send once the connection has been dropped.
var ErrClosed = errors.New("notify: connection closed")

// Conn is one live SSE stream. Writes are serialised per connection and
// never happen after close returns.
type Conn struct {
	ID     string
	UserID string
	Role   string
	Office string

	mu    sync.Mutex
	w     io.Writer
	flush func() error

	closed bool
	done   chan struct{}
}

// NewConn wraps w. flush, if non-nil, runs after every write.
func NewConn(userID, role, office string, w io.Writer, flush func() error) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		Office: office,
		w:      w,
		flush:  flush,
		done:   make(chan struct{}),
	}
}

// Send writes frame to the stream.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	if c.flush != nil {
		return c.flush()
	}
	return nil
}

// Done is closed once the hub has dropped the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }

// close waits for an in-flight Send to finish, so once it returns the
// underlying writer is no longer touched.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Hub is the registry of live connections on this instance.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	closed  bool
	log     *slog.Logger
	metrics *metrics
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{conns: make(map[string]*Conn), log: log, metrics: newMetrics()}
}

// Register adds c and returns the function that removes it. The returned
// function is safe to call more than once.
func (h *Hub) Register(c *Conn) (unregister func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return func() {}
	}
	h.conns[c.ID] = c
	h.mu.Unlock()
	h.metrics.connections.Add(context.Background(), 1)
	h.log.Debug("notify: connection registered", "conn_id", c.ID, "user_id", c.UserID)

	var once sync.Once
	return func() { once.Do(func() { h.remove(c) }) }
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.ID]
	delete(h.conns, c.ID)
	h.mu.Unlock()
	c.close()
	if ok {
		h.metrics.connections.Add(context.Background(), -1)
		h.log.Debug("notify: connection removed", "conn_id", c.ID, "user_id", c.UserID)
	}
}

// Close drops every connection and refuses new ones. Streams blocked on
// Done return, which lets http.Server.Shutdown finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.remove(c)
	}
	h.log.Info("notify: hub closed", "connections", len(conns))
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast writes frame to every connection.
func (h *Hub) Broadcast(frame []byte) int {
	return h.Deliver(All(), frame)
}

// Deliver writes frame to every connection matched by t and returns how many
// writes succeeded. A connection whose write fails is dropped.
func (h *Hub) Deliver(t Target, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if t.Matches(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		err := c.Send(frame)
		if errors.Is(err, ErrClosed) {
			continue
		}
		if err != nil {
			h.log.Debug("notify: dropping connection after failed write", "conn_id", c.ID, "user_id", c.UserID, "err", err)
			h.metrics.dropped.Add(context.Background(), 1)
			h.remove(c)
			continue
		}
		delivered++
	}
	return delivered
}
