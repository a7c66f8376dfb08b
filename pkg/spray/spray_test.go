package spray

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-fatigue/internal/httpc"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

type fakeActuator struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (a *fakeActuator) Name() string { return "fake" }

func (a *fakeActuator) Fire(ctx context.Context, cmd Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.cmds = append(a.cmds, cmd)
	return nil
}

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	p.topic, p.qos, p.payload = topic, qos, payload
	return nil
}

func sprayEvent(subject string) monitor.Event {
	return monitor.Event{
		SessionID: "s-" + subject,
		SubjectID: subject,
		Result: fatigue.DetectionResult{
			Level:          fatigue.ModerateFatigue,
			Confidence:     0.6,
			TriggeredSpray: true,
		},
	}
}

func newTestDispatcher(a Actuator, cooldown time.Duration) (*Dispatcher, *time.Time) {
	now := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	d := NewDispatcher(a, cooldown)
	d.SetClock(func() time.Time { return now })
	return d, &now
}

func TestDispatcher_Cooldown(t *testing.T) {
	act := &fakeActuator{}
	d, now := newTestDispatcher(act, 30*time.Second)
	ctx := context.Background()

	if err := d.Handle(ctx, sprayEvent("a")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	*now = now.Add(10 * time.Second)
	if _, err := d.Trigger(ctx, sprayEvent("a")); !errors.Is(err, ErrCoolingDown) {
		t.Errorf("second trigger err = %v, want ErrCoolingDown", err)
	}
	if err := d.Handle(ctx, sprayEvent("a")); err != nil {
		t.Errorf("Handle should swallow the cooldown, got %v", err)
	}
	if err := d.Handle(ctx, sprayEvent("b")); err != nil {
		t.Errorf("other subject: %v", err)
	}

	*now = now.Add(21 * time.Second)
	if err := d.Handle(ctx, sprayEvent("a")); err != nil {
		t.Errorf("after cooldown: %v", err)
	}

	if len(act.cmds) != 3 {
		t.Fatalf("fired %d commands, want 3", len(act.cmds))
	}
	stats := d.Stats()
	if stats.Fired != 3 || stats.Suppressed != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if act.cmds[0].ID == act.cmds[2].ID || act.cmds[0].Level != fatigue.ModerateFatigue {
		t.Errorf("commands = %+v", act.cmds)
	}
}

func TestDispatcher_IgnoresEventsWithoutSpray(t *testing.T) {
	act := &fakeActuator{}
	d, _ := newTestDispatcher(act, 0)

	ev := sprayEvent("a")
	ev.Result.TriggeredSpray = false
	if err := d.Handle(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(act.cmds) != 0 {
		t.Error("fired without TriggeredSpray")
	}
}

func TestDispatcher_FailureDoesNotStartCooldown(t *testing.T) {
	act := &fakeActuator{err: errors.New("nozzle jammed")}
	d, _ := newTestDispatcher(act, time.Minute)
	ctx := context.Background()

	if err := d.Handle(ctx, sprayEvent("a")); err == nil {
		t.Fatal("expected actuator error")
	}

	act.err = nil
	if err := d.Handle(ctx, sprayEvent("a")); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
	if stats := d.Stats(); stats.Failed != 1 || stats.Fired != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDispatcher_SessionClosedClearsCooldown(t *testing.T) {
	act := &fakeActuator{}
	d, _ := newTestDispatcher(act, time.Hour)
	ctx := context.Background()

	d.Handle(ctx, sprayEvent("a"))
	d.SessionClosed(ctx, monitor.SessionInfo{SubjectID: "a"})
	d.Handle(ctx, sprayEvent("a"))

	if len(act.cmds) != 2 {
		t.Errorf("fired %d, want 2 after the session closed", len(act.cmds))
	}
}

func TestHTTPActuator(t *testing.T) {
	var got Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewHTTPActuator(srv.URL)
	cmd := Command{ID: "c1", SubjectID: "driver-1", Level: fatigue.SevereFatigue}
	if err := a.Fire(context.Background(), cmd); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if got.ID != "c1" || got.Level != fatigue.SevereFatigue {
		t.Errorf("gateway got %+v", got)
	}
}

func TestHTTPActuator_Errors(t *testing.T) {
	if err := (&HTTPActuator{}).Fire(context.Background(), Command{}); !errors.Is(err, ErrNoGateway) {
		t.Errorf("err = %v, want ErrNoGateway", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPActuator(srv.URL).Fire(context.Background(), Command{})
	var se *httpc.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want StatusError 503", err)
	}
}

func TestMQTTActuator(t *testing.T) {
	pub := &fakePublisher{}
	a := NewMQTTActuator(pub, "fleet/")

	if err := a.Fire(context.Background(), Command{ID: "c1", SubjectID: "driver-1"}); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if pub.topic != "fleet/spray/driver-1" || pub.qos != 1 {
		t.Errorf("published to %q qos %d", pub.topic, pub.qos)
	}
	var cmd Command
	if err := json.Unmarshal(pub.payload, &cmd); err != nil || cmd.ID != "c1" {
		t.Errorf("payload = %s", pub.payload)
	}

	if err := (&MQTTActuator{}).Fire(context.Background(), Command{}); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("err = %v, want ErrNoPublisher", err)
	}
}
