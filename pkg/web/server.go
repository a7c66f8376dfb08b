// Package web provides the live fatigue dashboard: per-subject status, an
// alert log and a WebSocket stream of results.
package web

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/hub"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

// maxAlerts bounds the alert log
const maxAlerts = 500

// SubjectStatus is the dashboard view of one subject
type SubjectStatus struct {
	SubjectID      string        `json:"subject_id"`
	SessionID      string        `json:"session_id"`
	Active         bool          `json:"active"`
	Level          fatigue.Level `json:"level"`
	Confidence     float64       `json:"confidence"`
	Score          float64       `json:"drowsiness_score"`
	TriggeredSpray bool          `json:"triggered_spray"`
	Frame          uint64        `json:"frame"`
	BlinkCount     int           `json:"blink_count"`
	YawnCount      int           `json:"yawn_count"`
	StartedAt      time.Time     `json:"started_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Alert kinds
const (
	AlertLevelChange = "level_change"
	AlertSpray       = "spray"
)

// AlertEntry is one line of the alert log
type AlertEntry struct {
	Time       time.Time     `json:"time"`
	Kind       string        `json:"kind"`
	SubjectID  string        `json:"subject_id"`
	From       fatigue.Level `json:"from"`
	To         fatigue.Level `json:"to"`
	Confidence float64       `json:"confidence"`
	Frame      uint64        `json:"frame"`
}

// Update is what the result stream sends for each frame
type Update struct {
	Type   string        `json:"type"` // "result" or "session"
	Status SubjectStatus `json:"status"`
	Alerts []AlertEntry  `json:"alerts,omitempty"`
}

// Server is the dashboard. It is a monitor.Sink and registers its routes
// on the service's Fiber app.
type Server struct {
	log *slog.Logger
	now func() time.Time

	// State
	subjects   map[string]*SubjectStatus
	subjectsMu sync.RWMutex

	// Alert log (last maxAlerts entries)
	alerts   []AlertEntry
	alertsMu sync.RWMutex

	// Hub for the live result stream
	results *hub.Hub

	ctx    context.Context
	cancel context.CancelFunc
}

// Ensure Server can be registered on the monitor hub
var (
	_ monitor.Sink            = (*Server)(nil)
	_ monitor.SessionObserver = (*Server)(nil)
)

// NewServer creates the dashboard
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		log:      log.Component("web"),
		now:      time.Now,
		subjects: make(map[string]*SubjectStatus),
		alerts:   make([]AlertEntry, 0, maxAlerts),
		results:  hub.New("results"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterRoutes mounts the dashboard under /dashboard
func (s *Server) RegisterRoutes(app fiber.Router) {
	dash := app.Group("/dashboard")

	// API routes
	dash.Get("/api/status", s.handleStatus)
	dash.Get("/api/status/:id", s.handleSubject)
	dash.Get("/api/alerts", s.handleAlerts)
	dash.Get("/api/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.results.Stats())
	})

	// WebSocket upgrade middleware
	dash.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	dash.Get("/ws/results", websocket.New(s.handleResultsWS))
}

// Start runs the result stream hub
func (s *Server) Start() {
	go s.results.Run(s.ctx)
	s.log.Info("dashboard started", "path", "/dashboard")
}

// Shutdown disconnects dashboard clients
func (s *Server) Shutdown() {
	s.cancel()
}

// Name implements monitor.Sink
func (s *Server) Name() string { return "dashboard" }

// Handle implements monitor.Sink
func (s *Server) Handle(ctx context.Context, e monitor.Event) error {
	now := s.now()

	s.subjectsMu.Lock()
	st, ok := s.subjects[e.SubjectID]
	if !ok {
		st = &SubjectStatus{SubjectID: e.SubjectID, StartedAt: now}
		s.subjects[e.SubjectID] = st
	}
	st.SessionID = e.SessionID
	st.Active = true
	st.Level = e.Result.Level
	st.Confidence = e.Result.Confidence
	st.Score = e.Result.DrowsinessScore
	st.TriggeredSpray = e.Result.TriggeredSpray
	st.Frame = e.Frame
	st.BlinkCount = e.BlinkCount
	st.YawnCount = e.YawnCount
	st.UpdatedAt = now
	snapshot := *st
	s.subjectsMu.Unlock()

	var added []AlertEntry
	if e.LevelChanged() {
		added = append(added, alertFrom(e, AlertLevelChange, now))
	}
	if e.Result.TriggeredSpray {
		added = append(added, alertFrom(e, AlertSpray, now))
	}
	if len(added) > 0 {
		s.addAlerts(added)
	}

	return s.results.BroadcastJSON(e.SubjectID, Update{Type: "result", Status: snapshot, Alerts: added})
}

// SessionOpened implements monitor.SessionObserver
func (s *Server) SessionOpened(ctx context.Context, info monitor.SessionInfo) error {
	s.subjectsMu.Lock()
	st := &SubjectStatus{
		SubjectID: info.SubjectID,
		SessionID: info.SessionID,
		Active:    true,
		Level:     fatigue.Alert,
		StartedAt: info.StartedAt,
		UpdatedAt: s.now(),
	}
	s.subjects[info.SubjectID] = st
	snapshot := *st
	s.subjectsMu.Unlock()

	return s.results.BroadcastJSON(info.SubjectID, Update{Type: "session", Status: snapshot})
}

// SessionClosed keeps the subject's last status, marked inactive
func (s *Server) SessionClosed(ctx context.Context, info monitor.SessionInfo) error {
	s.subjectsMu.Lock()
	st, ok := s.subjects[info.SubjectID]
	if !ok || st.SessionID != info.SessionID {
		s.subjectsMu.Unlock()
		return nil
	}
	st.Active = false
	st.UpdatedAt = s.now()
	snapshot := *st
	s.subjectsMu.Unlock()

	return s.results.BroadcastJSON(info.SubjectID, Update{Type: "session", Status: snapshot})
}

func alertFrom(e monitor.Event, kind string, now time.Time) AlertEntry {
	return AlertEntry{
		Time:       now,
		Kind:       kind,
		SubjectID:  e.SubjectID,
		From:       e.PreviousLevel,
		To:         e.Result.Level,
		Confidence: e.Result.Confidence,
		Frame:      e.Frame,
	}
}

func (s *Server) addAlerts(entries []AlertEntry) {
	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()
	s.alerts = append(s.alerts, entries...)
	if over := len(s.alerts) - maxAlerts; over > 0 {
		s.alerts = append(s.alerts[:0], s.alerts[over:]...)
	}
}

// Subjects returns every known subject ordered by id
func (s *Server) Subjects() []SubjectStatus {
	s.subjectsMu.RLock()
	out := make([]SubjectStatus, 0, len(s.subjects))
	for _, st := range s.subjects {
		out = append(out, *st)
	}
	s.subjectsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// Alerts returns up to limit recent alerts, newest last. An empty subject
// matches every subject; limit <= 0 returns all.
func (s *Server) Alerts(subject string, limit int) []AlertEntry {
	s.alertsMu.RLock()
	defer s.alertsMu.RUnlock()

	var out []AlertEntry
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if subject != "" && a.SubjectID != subject {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ResultsHub returns the live stream hub
func (s *Server) ResultsHub() *hub.Hub {
	return s.results
}
