// Package spray fires the countermeasure when a subject's fatigue result
// asks for it.
//
// The classifier raises TriggeredSpray on every qualifying frame; debouncing
// belongs here, on the actuator side. Actuators are small interfaces so the
// service can drive a local log, an HTTP gateway or an MQTT device.
package spray

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-fatigue/internal/httpc"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
)

// Command is one spray activation
type Command struct {
	ID         string        `json:"id"`
	SubjectID  string        `json:"subject_id"`
	SessionID  string        `json:"session_id"`
	Level      fatigue.Level `json:"level"`
	Confidence float64       `json:"confidence"`
	Score      float64       `json:"drowsiness_score"`
	IssuedAt   time.Time     `json:"issued_at"`
}

// Actuator delivers a spray command to the device
type Actuator interface {
	Name() string
	Fire(ctx context.Context, cmd Command) error
}

// Ensure actuators implement Actuator
var (
	_ Actuator = (*LogActuator)(nil)
	_ Actuator = (*HTTPActuator)(nil)
	_ Actuator = (*MQTTActuator)(nil)
)

// LogActuator only logs commands. Used when no device is attached.
type LogActuator struct {
	Logger *slog.Logger
}

func (a *LogActuator) Name() string { return "log" }

func (a *LogActuator) Fire(ctx context.Context, cmd Command) error {
	a.Logger.Warn("spray",
		"subject", cmd.SubjectID,
		"command", cmd.ID,
		"level", cmd.Level,
		"confidence", cmd.Confidence,
	)
	return nil
}

// HTTPActuator posts commands to a spray gateway
type HTTPActuator struct {
	URL    string
	Client *http.Client // nil uses httpc.Client
}

// NewHTTPActuator creates an actuator posting to url
func NewHTTPActuator(url string) *HTTPActuator {
	return &HTTPActuator{URL: url}
}

func (a *HTTPActuator) Name() string { return "http" }

func (a *HTTPActuator) Fire(ctx context.Context, cmd Command) error {
	if a.URL == "" {
		return ErrNoGateway
	}
	if err := httpc.PostJSON(ctx, a.Client, a.URL, cmd); err != nil {
		return fmt.Errorf("spray gateway: %w", err)
	}
	return nil
}

// Publisher is the slice of an MQTT client the actuator needs
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// MQTTActuator publishes commands to <prefix>/spray/<subject> at QoS 1
type MQTTActuator struct {
	Publisher Publisher
	Prefix    string
}

// NewMQTTActuator creates an actuator publishing under prefix
func NewMQTTActuator(p Publisher, prefix string) *MQTTActuator {
	return &MQTTActuator{Publisher: p, Prefix: strings.TrimSuffix(prefix, "/")}
}

func (a *MQTTActuator) Name() string { return "mqtt" }

// Topic returns the command topic for a subject
func (a *MQTTActuator) Topic(subjectID string) string {
	return a.Prefix + "/spray/" + subjectID
}

func (a *MQTTActuator) Fire(ctx context.Context, cmd Command) error {
	if a.Publisher == nil {
		return ErrNoPublisher
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal spray command: %w", err)
	}
	return a.Publisher.Publish(ctx, a.Topic(cmd.SubjectID), 1, false, payload)
}
