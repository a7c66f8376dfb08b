package spray

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

// DefaultCooldown is the minimum time between two sprays of one subject
const DefaultCooldown = 30 * time.Second

// Dispatcher is a monitor.Sink that fires the actuator for events with
// TriggeredSpray, at most once per subject per cooldown.
type Dispatcher struct {
	actuator Actuator
	cooldown time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	lastFire map[string]time.Time

	fired      atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
}

// Ensure Dispatcher can be registered on the monitor hub
var (
	_ monitor.Sink            = (*Dispatcher)(nil)
	_ monitor.SessionObserver = (*Dispatcher)(nil)
)

// NewDispatcher creates a dispatcher. A cooldown <= 0 uses DefaultCooldown.
func NewDispatcher(a Actuator, cooldown time.Duration) *Dispatcher {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Dispatcher{
		actuator: a,
		cooldown: cooldown,
		now:      time.Now,
		log:      log.Component("spray").With("actuator", a.Name()),
		lastFire: make(map[string]time.Time),
	}
}

// SetClock replaces time.Now, for tests
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Name implements monitor.Sink
func (d *Dispatcher) Name() string { return "spray" }

// Handle implements monitor.Sink
func (d *Dispatcher) Handle(ctx context.Context, e monitor.Event) error {
	if !e.Result.TriggeredSpray {
		return nil
	}
	_, err := d.Trigger(ctx, e)
	if err == ErrCoolingDown {
		return nil
	}
	return err
}

// Trigger fires the actuator for e unless its subject is cooling down.
// The cooldown starts only when the actuator succeeds.
func (d *Dispatcher) Trigger(ctx context.Context, e monitor.Event) (Command, error) {
	now := d.now()

	d.mu.Lock()
	if last, ok := d.lastFire[e.SubjectID]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		d.suppressed.Add(1)
		return Command{}, ErrCoolingDown
	}
	d.lastFire[e.SubjectID] = now
	d.mu.Unlock()

	cmd := Command{
		ID:         uuid.NewString(),
		SubjectID:  e.SubjectID,
		SessionID:  e.SessionID,
		Level:      e.Result.Level,
		Confidence: e.Result.Confidence,
		Score:      e.Result.DrowsinessScore,
		IssuedAt:   now,
	}

	if err := d.actuator.Fire(ctx, cmd); err != nil {
		d.mu.Lock()
		if d.lastFire[e.SubjectID].Equal(now) {
			delete(d.lastFire, e.SubjectID)
		}
		d.mu.Unlock()
		d.failed.Add(1)
		return cmd, fmt.Errorf("fire %s: %w", d.actuator.Name(), err)
	}

	d.fired.Add(1)
	d.log.Info("spray fired", "subject", e.SubjectID, "command", cmd.ID, "level", cmd.Level)
	return cmd, nil
}

// SessionOpened implements monitor.SessionObserver
func (d *Dispatcher) SessionOpened(ctx context.Context, s monitor.SessionInfo) error {
	return nil
}

// SessionClosed forgets the subject's cooldown
func (d *Dispatcher) SessionClosed(ctx context.Context, s monitor.SessionInfo) error {
	d.mu.Lock()
	delete(d.lastFire, s.SubjectID)
	d.mu.Unlock()
	return nil
}

// Stats contains dispatcher counters
type Stats struct {
	Actuator   string `json:"actuator"`
	Fired      uint64 `json:"fired"`
	Suppressed uint64 `json:"suppressed"`
	Failed     uint64 `json:"failed"`
}

// Stats returns dispatcher counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Actuator:   d.actuator.Name(),
		Fired:      d.fired.Load(),
		Suppressed: d.suppressed.Load(),
		Failed:     d.failed.Load(),
	}
}
