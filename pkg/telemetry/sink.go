package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

// Publisher publishes one MQTT message. MQTTEmitter implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// Topic QoS levels
const (
	resultQoS  byte = 0 // Every frame, loss is fine
	alertQoS   byte = 1 // Level changes and spray triggers
	sessionQoS byte = 1
)

// ResultPayload is published for every frame
type ResultPayload struct {
	SessionID string                  `json:"session_id"`
	SubjectID string                  `json:"subject_id"`
	Frame     uint64                  `json:"frame"`
	Result    fatigue.DetectionResult `json:"result"`
}

// AlertPayload is published when the level changes or the spray fires
type AlertPayload struct {
	SessionID      string        `json:"session_id"`
	SubjectID      string        `json:"subject_id"`
	Frame          uint64        `json:"frame"`
	From           fatigue.Level `json:"from"`
	To             fatigue.Level `json:"to"`
	Confidence     float64       `json:"confidence"`
	Score          float64       `json:"drowsiness_score"`
	TriggeredSpray bool          `json:"triggered_spray"`
	Timestamp      time.Time     `json:"ts"`
}

// SessionPayload is published, retained, when a session opens or closes
type SessionPayload struct {
	SessionID string        `json:"session_id"`
	SubjectID string        `json:"subject_id"`
	State     string        `json:"state"` // "open" or "closed"
	Frames    uint64        `json:"frames"`
	Level     fatigue.Level `json:"level"`
	StartedAt time.Time     `json:"started_at"`
}

// ResultSink publishes monitor events under a topic prefix:
//
//	<prefix>/results/<subject>   every frame, QoS 0
//	<prefix>/alerts/<subject>    level changes and spray triggers, QoS 1
//	<prefix>/sessions/<subject>  session state, QoS 1, retained
type ResultSink struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

// Ensure ResultSink can be registered on the monitor hub
var (
	_ monitor.Sink            = (*ResultSink)(nil)
	_ monitor.SessionObserver = (*ResultSink)(nil)
)

// NewResultSink creates a sink publishing through pub
func NewResultSink(pub Publisher, prefix string) *ResultSink {
	return &ResultSink{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), now: time.Now}
}

func (s *ResultSink) Name() string { return "mqtt" }

func (s *ResultSink) topic(kind, subjectID string) string {
	return s.prefix + "/" + kind + "/" + subjectID
}

// Handle implements monitor.Sink
func (s *ResultSink) Handle(ctx context.Context, e monitor.Event) error {
	if err := s.publish(ctx, s.topic("results", e.SubjectID), resultQoS, false, ResultPayload{
		SessionID: e.SessionID,
		SubjectID: e.SubjectID,
		Frame:     e.Frame,
		Result:    e.Result,
	}); err != nil {
		return err
	}

	if !e.LevelChanged() && !e.Result.TriggeredSpray {
		return nil
	}
	return s.publish(ctx, s.topic("alerts", e.SubjectID), alertQoS, false, AlertPayload{
		SessionID:      e.SessionID,
		SubjectID:      e.SubjectID,
		Frame:          e.Frame,
		From:           e.PreviousLevel,
		To:             e.Result.Level,
		Confidence:     e.Result.Confidence,
		Score:          e.Result.DrowsinessScore,
		TriggeredSpray: e.Result.TriggeredSpray,
		Timestamp:      s.now(),
	})
}

// SessionOpened implements monitor.SessionObserver
func (s *ResultSink) SessionOpened(ctx context.Context, info monitor.SessionInfo) error {
	return s.publishSession(ctx, info, "open")
}

// SessionClosed implements monitor.SessionObserver
func (s *ResultSink) SessionClosed(ctx context.Context, info monitor.SessionInfo) error {
	return s.publishSession(ctx, info, "closed")
}

func (s *ResultSink) publishSession(ctx context.Context, info monitor.SessionInfo, state string) error {
	return s.publish(ctx, s.topic("sessions", info.SubjectID), sessionQoS, true, SessionPayload{
		SessionID: info.SessionID,
		SubjectID: info.SubjectID,
		State:     state,
		Frames:    info.Frames,
		Level:     info.Level,
		StartedAt: info.StartedAt,
	})
}

func (s *ResultSink) publish(ctx context.Context, topic string, qos byte, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return s.pub.Publish(ctx, topic, qos, retained, payload)
}
