package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

func event(subject string, frame uint64, prev, level fatigue.Level, spray bool) monitor.Event {
	return monitor.Event{
		SessionID:     "s-" + subject,
		SubjectID:     subject,
		Frame:         frame,
		PreviousLevel: prev,
		Result: fatigue.DetectionResult{
			Level:          level,
			Confidence:     0.5,
			TriggeredSpray: spray,
		},
	}
}

func TestServer_TracksSubjectsAndAlerts(t *testing.T) {
	s := NewServer()
	ctx := context.Background()

	s.SessionOpened(ctx, monitor.SessionInfo{SessionID: "s-a", SubjectID: "a"})
	s.Handle(ctx, event("a", 1, fatigue.Alert, fatigue.Alert, false))
	s.Handle(ctx, event("a", 2, fatigue.Alert, fatigue.ModerateFatigue, true))
	s.Handle(ctx, event("b", 1, fatigue.Alert, fatigue.MildFatigue, false))

	subjects := s.Subjects()
	if len(subjects) != 2 || subjects[0].SubjectID != "a" || subjects[0].Level != fatigue.ModerateFatigue || subjects[0].Frame != 2 {
		t.Fatalf("subjects = %+v", subjects)
	}

	alerts := s.Alerts("", 0)
	if len(alerts) != 3 {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts[0].Kind != AlertLevelChange || alerts[1].Kind != AlertSpray || alerts[2].SubjectID != "b" {
		t.Errorf("alert order = %+v", alerts)
	}
	if got := s.Alerts("a", 1); len(got) != 1 || got[0].Kind != AlertSpray {
		t.Errorf("Alerts(a, 1) = %+v", got)
	}

	s.SessionClosed(ctx, monitor.SessionInfo{SessionID: "s-a", SubjectID: "a"})
	if s.Subjects()[0].Active {
		t.Error("closed subject should be inactive")
	}
}

func TestServer_AlertLogIsBounded(t *testing.T) {
	s := NewServer()
	for i := 0; i < maxAlerts+10; i++ {
		s.Handle(context.Background(), event("a", uint64(i+1), fatigue.Alert, fatigue.MildFatigue, false))
	}
	alerts := s.Alerts("", 0)
	if len(alerts) != maxAlerts {
		t.Fatalf("len = %d, want %d", len(alerts), maxAlerts)
	}
	if alerts[0].Frame != 11 {
		t.Errorf("oldest kept frame = %d, want 11", alerts[0].Frame)
	}
}

func TestServer_API(t *testing.T) {
	s := NewServer()
	app := fiber.New()
	s.RegisterRoutes(app)
	s.Handle(context.Background(), event("a", 1, fatigue.Alert, fatigue.MildFatigue, false))

	resp, err := app.Test(httptest.NewRequest("GET", "/dashboard/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	var status struct {
		Subjects []SubjectStatus `json:"subjects"`
		Active   int             `json:"active"`
	}
	if err := json.Unmarshal(body, &status); err != nil || resp.StatusCode != 200 {
		t.Fatalf("status: %d %s", resp.StatusCode, body)
	}
	if status.Active != 1 || status.Subjects[0].Level != fatigue.MildFatigue {
		t.Errorf("status = %s", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/dashboard/api/status/ghost", nil))
	if resp.StatusCode != 404 {
		t.Errorf("unknown subject: %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/dashboard/api/alerts?subject=a&limit=5", nil))
	body, _ = io.ReadAll(resp.Body)
	var alerts []AlertEntry
	if err := json.Unmarshal(body, &alerts); err != nil || len(alerts) != 1 {
		t.Errorf("alerts = %s", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/dashboard/ws/results", nil))
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("plain GET on ws route: %d, want 426", resp.StatusCode)
	}
}

func TestServer_ResultStream(t *testing.T) {
	s := NewServer()
	s.Start()
	defer s.Shutdown()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterRoutes(app)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)
	defer app.Shutdown()

	ctx := context.Background()
	s.Handle(ctx, event("a", 1, fatigue.Alert, fatigue.Alert, false))

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/dashboard/ws/results?subject=a", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	read := func() Update {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var u Update
		if err := ws.ReadJSON(&u); err != nil {
			t.Fatalf("read: %v", err)
		}
		return u
	}

	if u := read(); u.Status.SubjectID != "a" || u.Status.Frame != 1 {
		t.Errorf("snapshot = %+v", u)
	}

	// Wait for the client to be registered before broadcasting
	deadline := time.Now().Add(2 * time.Second)
	for s.ResultsHub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Handle(ctx, event("b", 1, fatigue.Alert, fatigue.Alert, false))
	s.Handle(ctx, event("a", 2, fatigue.Alert, fatigue.SevereFatigue, true))

	u := read()
	if u.Status.SubjectID != "a" || u.Status.Level != fatigue.SevereFatigue || len(u.Alerts) != 2 {
		t.Errorf("update = %+v", u)
	}
}
