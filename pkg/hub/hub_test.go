package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records writes; reads block until Close
type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	closed  chan struct{}
	closeMu sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data != nil {
		c.writes = append(c.writes, append([]byte(nil), data...))
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeMu.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.writes))
	for _, w := range c.writes {
		if len(w) > 0 {
			out = append(out, string(w))
		}
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T) (*Hub, context.Context) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	waitUntil(t, h.IsRunning)
	return h, ctx
}

func connect(t *testing.T, ctx context.Context, h *Hub, subject string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	c := NewClient(ctx, h, conn, subject)
	if c == nil {
		t.Fatal("NewClient returned nil")
	}
	go c.Run(ctx)
	return conn
}

func TestHub_BroadcastFiltersBySubject(t *testing.T) {
	h, ctx := startHub(t)

	all := connect(t, ctx, h, "")
	one := connect(t, ctx, h, "driver-1")
	waitUntil(t, func() bool { return h.ClientCount() == 2 })

	h.BroadcastJSON("driver-1", map[string]int{"n": 1})
	h.BroadcastJSON("driver-2", map[string]int{"n": 2})
	h.Broadcast(NewMessage("", []byte(`{"n":3}`)))

	waitUntil(t, func() bool { return len(all.messages()) == 3 && len(one.messages()) == 2 })

	got := one.messages()
	if got[0] != `{"n":1}` || got[1] != `{"n":3}` {
		t.Errorf("filtered client got %v", got)
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	h, ctx := startHub(t)

	conn := connect(t, ctx, h, "")
	waitUntil(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitUntil(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	conn := newFakeConn()
	c := NewClient(ctx, h, conn, "")
	go c.Run(ctx)
	waitUntil(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	waitUntil(t, func() bool { return !h.IsRunning() })
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client connection not closed after hub stopped")
	}
}

func TestNewClient_ContextDone(t *testing.T) {
	h := New("idle") // Run never started
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if c := NewClient(ctx, h, newFakeConn(), ""); c != nil {
		t.Error("NewClient should give up when ctx is done")
	}
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	h := New("idle") // Nobody drains the channel
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.Broadcast(NewMessage("", []byte("{}")))
	}
	if got := h.Stats().Dropped; got != 5 {
		t.Errorf("Dropped = %d, want 5", got)
	}
}
