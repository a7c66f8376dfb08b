package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
	"github.com/teslashibe/go-fatigue/pkg/protocol"
)

const (
	uplinkBufferSize    = 256
	uplinkWriteTimeout  = 5 * time.Second
	keepaliveInterval   = 30 * time.Second
	reconnectBaseDelay  = 1 * time.Second
	reconnectMaxDelay   = 30 * time.Second
	uplinkHandshakeWait = 10 * time.Second
)

// Uplink streams result messages to a remote collector over WebSocket.
// Run owns the connection and redials with exponential backoff; Handle
// only queues.
type Uplink struct {
	url    string
	log    *slog.Logger
	dialer websocket.Dialer

	sendCh    chan []byte
	connected atomic.Bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	dials   atomic.Uint64

	baseDelay time.Duration
}

// Ensure Uplink can be registered on the monitor hub
var _ monitor.Sink = (*Uplink)(nil)

// NewUplink creates an uplink to url (ws:// or wss://)
func NewUplink(url string) *Uplink {
	return &Uplink{
		url:       url,
		log:       log.Component("uplink").With("url", url),
		dialer:    websocket.Dialer{HandshakeTimeout: uplinkHandshakeWait},
		sendCh:    make(chan []byte, uplinkBufferSize),
		baseDelay: reconnectBaseDelay,
	}
}

func (u *Uplink) Name() string { return "uplink" }

// Handle queues the event as a result message. Events are dropped while
// the collector is unreachable.
func (u *Uplink) Handle(ctx context.Context, e monitor.Event) error {
	if !u.connected.Load() {
		u.dropped.Add(1)
		return ErrNotConnected
	}
	msg, err := protocol.NewResultMessage(e.SubjectID, e.Frame, e.FrameID, e.Result)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	select {
	case u.sendCh <- data:
		return nil
	default:
		u.dropped.Add(1)
		return fmt.Errorf("uplink buffer full")
	}
}

// Run keeps the connection up until ctx is done
func (u *Uplink) Run(ctx context.Context) {
	delay := u.baseDelay
	for {
		conn, err := u.dial(ctx)
		if err == nil {
			delay = u.baseDelay
			u.serve(ctx, conn)
		} else {
			u.log.Warn("uplink dial failed", "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err != nil {
			// Exponential backoff
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}
}

func (u *Uplink) dial(ctx context.Context) (*websocket.Conn, error) {
	u.dials.Add(1)
	conn, resp, err := u.dialer.DialContext(ctx, u.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// serve writes queued messages until the connection fails or ctx ends
func (u *Uplink) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	u.connected.Store(true)
	defer u.connected.Store(false)
	u.log.Info("uplink connected")

	// The collector never sends data; reading surfaces closes and pongs.
	dead := make(chan struct{})
	go func() {
		defer close(dead)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-dead:
			u.log.Warn("uplink connection lost")
			return
		case data := <-u.sendCh:
			conn.SetWriteDeadline(time.Now().Add(uplinkWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				u.log.Warn("uplink write failed", "error", err)
				return
			}
			u.sent.Add(1)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(uplinkWriteTimeout)); err != nil {
				u.log.Warn("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

// IsConnected returns true while a collector connection is up
func (u *Uplink) IsConnected() bool {
	return u.connected.Load()
}

// UplinkStats contains uplink counters
type UplinkStats struct {
	Connected bool   `json:"connected"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Dials     uint64 `json:"dials"`
}

// Stats returns uplink counters
func (u *Uplink) Stats() UplinkStats {
	return UplinkStats{
		Connected: u.connected.Load(),
		Sent:      u.sent.Load(),
		Dropped:   u.dropped.Load(),
		Dials:     u.dials.Load(),
	}
}
