// Package protocol defines the WebSocket message types exchanged between a
// face-detector client and the fatigue monitor.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/landmarks"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Monitor messages
	TypeMeasurement MessageType = "measurement" // Precomputed EAR/MAR/head pose
	TypeLandmarks   MessageType = "landmarks"   // Raw eye and mouth contours
	TypeFrame       MessageType = "frame"       // JPEG + EAR/MAR, head pose estimated server side
	TypeReset       MessageType = "reset"       // Restart the subject's session

	// Monitor → Client messages
	TypeResult  MessageType = "result"  // Classification of one frame
	TypeError   MessageType = "error"   // Rejected message
	TypeSession MessageType = "session" // Session announcement on connect

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Monitor Message Types
// =============================================================================

// MeasurementData is one frame of facial geometry.
// Optional fields are nil when the detector could not produce them.
type MeasurementData struct {
	EAR              float64  `json:"ear" msgpack:"ear"`
	MAR              float64  `json:"mar" msgpack:"mar"`
	HeadTiltX        *float64 `json:"head_tilt_x,omitempty" msgpack:"head_tilt_x,omitempty"` // Nod, degrees
	HeadTiltY        *float64 `json:"head_tilt_y,omitempty" msgpack:"head_tilt_y,omitempty"` // Rotation, degrees
	HeadTiltZ        *float64 `json:"head_tilt_z,omitempty" msgpack:"head_tilt_z,omitempty"` // Ear to shoulder, degrees
	LeftEyeOpenProb  *float64 `json:"left_eye_open_prob,omitempty" msgpack:"left_eye_open_prob,omitempty"`
	RightEyeOpenProb *float64 `json:"right_eye_open_prob,omitempty" msgpack:"right_eye_open_prob,omitempty"`
	FrameID          uint64   `json:"frame_id,omitempty" msgpack:"frame_id,omitempty"`
	TimeOffsetMs     *int64   `json:"t_ms,omitempty" msgpack:"t_ms,omitempty"` // Offset from session start, replay only
}

// Measurement converts the wire record into classifier input
func (d MeasurementData) Measurement() fatigue.Measurement {
	return fatigue.Measurement{
		EAR:              d.EAR,
		MAR:              d.MAR,
		HeadTiltX:        d.HeadTiltX,
		HeadTiltY:        d.HeadTiltY,
		HeadTiltZ:        d.HeadTiltZ,
		LeftEyeOpenProb:  d.LeftEyeOpenProb,
		RightEyeOpenProb: d.RightEyeOpenProb,
	}
}

// FromMeasurement builds the wire record for m
func FromMeasurement(m fatigue.Measurement, frameID uint64) MeasurementData {
	return MeasurementData{
		EAR:              m.EAR,
		MAR:              m.MAR,
		HeadTiltX:        m.HeadTiltX,
		HeadTiltY:        m.HeadTiltY,
		HeadTiltZ:        m.HeadTiltZ,
		LeftEyeOpenProb:  m.LeftEyeOpenProb,
		RightEyeOpenProb: m.RightEyeOpenProb,
		FrameID:          frameID,
	}
}

// LandmarksData carries raw contours; EAR and MAR are computed by the monitor.
type LandmarksData struct {
	LeftEye          []landmarks.Point `json:"left_eye"`  // 6 points
	RightEye         []landmarks.Point `json:"right_eye"` // 6 points
	Mouth            []landmarks.Point `json:"mouth"`     // >= 10 points
	HeadTiltX        *float64          `json:"head_tilt_x,omitempty"`
	HeadTiltY        *float64          `json:"head_tilt_y,omitempty"`
	HeadTiltZ        *float64          `json:"head_tilt_z,omitempty"`
	LeftEyeOpenProb  *float64          `json:"left_eye_open_prob,omitempty"`
	RightEyeOpenProb *float64          `json:"right_eye_open_prob,omitempty"`
	FrameID          uint64            `json:"frame_id,omitempty"`
}

// FrameData contains a camera frame plus the scalars the client computed.
// Head pose is left to the monitor's pose estimator.
type FrameData struct {
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	Format           string   `json:"format"` // "jpeg"
	Data             string   `json:"data"`   // base64 encoded
	EAR              float64  `json:"ear"`
	MAR              float64  `json:"mar"`
	LeftEyeOpenProb  *float64 `json:"left_eye_open_prob,omitempty"`
	RightEyeOpenProb *float64 `json:"right_eye_open_prob,omitempty"`
	FrameID          uint64   `json:"frame_id,omitempty"`
}

// =============================================================================
// Monitor → Client Message Types
// =============================================================================

// ResultData is the classification of one frame
type ResultData struct {
	fatigue.DetectionResult
	SubjectID string `json:"subject_id"`
	Frame     uint64 `json:"frame"`              // Frames processed in this session
	FrameID   uint64 `json:"frame_id,omitempty"` // Echo of the client's frame id
}

// ErrorData explains why a message was rejected
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadMessage   = "bad_message"
	ErrCodeBadInput     = "invalid_input"
	ErrCodeUnsupported  = "unsupported"
	ErrCodeNoPose       = "no_pose"
	ErrCodeSessionEnded = "session_ended"
)

// SessionData is sent once when a subject connects
type SessionData struct {
	SessionID string    `json:"session_id"`
	SubjectID string    `json:"subject_id"`
	StartedAt time.Time `json:"started_at"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
