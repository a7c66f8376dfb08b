package monitor

import (
	"context"
	"time"

	"github.com/teslashibe/go-fatigue/pkg/fatigue"
)

// Event is one processed frame, fanned out to every Sink
type Event struct {
	SessionID     string                  `json:"session_id"`
	SubjectID     string                  `json:"subject_id"`
	Frame         uint64                  `json:"frame"`              // Frames processed in this session
	FrameID       uint64                  `json:"frame_id,omitempty"` // Client-supplied id, if any
	Result        fatigue.DetectionResult `json:"result"`
	PreviousLevel fatigue.Level           `json:"previous_level"`
	BlinkCount    int                     `json:"blink_count"`
	YawnCount     int                     `json:"yawn_count"`
	Measurement   fatigue.Measurement     `json:"-"`
}

// LevelChanged reports whether this frame moved the reported level
func (e Event) LevelChanged() bool {
	return e.Result.Level != e.PreviousLevel
}

// Sink consumes processed frames. Each sink gets its own bounded queue
// and goroutine, so a slow sink never delays classification; when its
// queue is full, events for it are dropped and counted.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// SessionObserver is implemented by sinks that track session lifecycle.
// Lifecycle notifications travel through the same queue as events, so a
// sink sees SessionOpened before the session's first event.
type SessionObserver interface {
	SessionOpened(ctx context.Context, s SessionInfo) error
	SessionClosed(ctx context.Context, s SessionInfo) error
}

// SessionInfo describes one monitoring session
type SessionInfo struct {
	SessionID   string                   `json:"session_id"`
	SubjectID   string                   `json:"subject_id"`
	StartedAt   time.Time                `json:"started_at"`
	LastSeen    time.Time                `json:"last_seen"`
	Frames      uint64                   `json:"frames"`
	Connections int                      `json:"connections"`
	Level       fatigue.Level            `json:"level"`
	LastResult  *fatigue.DetectionResult `json:"last_result,omitempty"`

	// Detail, filled for single-session lookups
	State *fatigue.SessionState `json:"state,omitempty"`
	EAR   *fatigue.EARStats     `json:"ear,omitempty"`
}
