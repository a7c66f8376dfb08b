package store

import (
	"time"

	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/monitor"
)

// SessionRecord is one monitoring session of a subject
type SessionRecord struct {
	ID        string     `gorm:"primaryKey;size:36" json:"session_id"`
	SubjectID string     `gorm:"index;size:128;not null" json:"subject_id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    uint64     `json:"frames"`
	LastLevel string     `gorm:"size:32" json:"last_level"`
}

func (SessionRecord) TableName() string {
	return "fatigue_sessions"
}

// DetectionRecord is one stored frame result
type DetectionRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SessionID      string    `gorm:"index;size:36;not null" json:"session_id"`
	SubjectID      string    `gorm:"index:idx_detection_subject_time;size:128;not null" json:"subject_id"`
	Frame          uint64    `json:"frame"`
	Level          string    `gorm:"size:32;not null" json:"level"`
	PreviousLevel  string    `gorm:"size:32" json:"previous_level"`
	Confidence     float64   `json:"confidence"`
	Score          float64   `json:"drowsiness_score"`
	TriggeredSpray bool      `json:"triggered_spray"`
	BlinkCount     int       `json:"blink_count"`
	YawnCount      int       `json:"yawn_count"`
	EAR            float64   `json:"ear"`
	MAR            float64   `json:"mar"`
	HeadTiltX      *float64  `json:"head_tilt_x,omitempty"`
	HeadTiltY      *float64  `json:"head_tilt_y,omitempty"`
	HeadTiltZ      *float64  `json:"head_tilt_z,omitempty"`
	Reason         string    `gorm:"size:16" json:"reason"`
	CreatedAt      time.Time `gorm:"index:idx_detection_subject_time" json:"created_at"`
}

func (DetectionRecord) TableName() string {
	return "fatigue_detections"
}

// Why a detection row was written
const (
	ReasonLevelChange = "level_change"
	ReasonSpray       = "spray"
	ReasonSample      = "sample"
)

func sessionFromInfo(info monitor.SessionInfo) SessionRecord {
	return SessionRecord{
		ID:        info.SessionID,
		SubjectID: info.SubjectID,
		StartedAt: info.StartedAt,
		Frames:    info.Frames,
		LastLevel: info.Level.String(),
	}
}

func detectionFromEvent(e monitor.Event, reason string, at time.Time) DetectionRecord {
	m := e.Measurement
	return DetectionRecord{
		SessionID:      e.SessionID,
		SubjectID:      e.SubjectID,
		Frame:          e.Frame,
		Level:          e.Result.Level.String(),
		PreviousLevel:  e.PreviousLevel.String(),
		Confidence:     e.Result.Confidence,
		Score:          e.Result.DrowsinessScore,
		TriggeredSpray: e.Result.TriggeredSpray,
		BlinkCount:     e.BlinkCount,
		YawnCount:      e.YawnCount,
		EAR:            m.EAR,
		MAR:            m.MAR,
		HeadTiltX:      m.HeadTiltX,
		HeadTiltY:      m.HeadTiltY,
		HeadTiltZ:      m.HeadTiltZ,
		Reason:         reason,
		CreatedAt:      at,
	}
}

// ParsedLevel returns the stored level
func (r DetectionRecord) ParsedLevel() fatigue.Level {
	l, err := fatigue.ParseLevel(r.Level)
	if err != nil {
		return fatigue.Alert
	}
	return l
}
