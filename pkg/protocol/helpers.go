package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/landmarks"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewMeasurementMessage creates a measurement message
func NewMeasurementMessage(m fatigue.Measurement, frameID uint64) (*Message, error) {
	return NewMessage(TypeMeasurement, FromMeasurement(m, frameID))
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, ear, mar float64, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		EAR:     ear,
		MAR:     mar,
		FrameID: frameID,
	})
}

// NewResultMessage creates a result message
func NewResultMessage(subjectID string, frame, frameID uint64, r fatigue.DetectionResult) (*Message, error) {
	return NewMessage(TypeResult, ResultData{
		DetectionResult: r,
		SubjectID:       subjectID,
		Frame:           frame,
		FrameID:         frameID,
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewSessionMessage creates a session announcement
func NewSessionMessage(s SessionData) (*Message, error) {
	return NewMessage(TypeSession, s)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string, ts int64) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: ts})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetMeasurementData extracts a measurement from a message
func (m *Message) GetMeasurementData() (*MeasurementData, error) {
	var data MeasurementData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLandmarksData extracts landmark contours from a message
func (m *Message) GetLandmarksData() (*LandmarksData, error) {
	var data LandmarksData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Measurement runs the landmark adapter and returns classifier input.
// Errors wrap landmarks.ErrInvalidInput.
func (l *LandmarksData) Measurement() (fatigue.Measurement, error) {
	ear, err := landmarks.AverageEyeAspectRatio(l.LeftEye, l.RightEye)
	if err != nil {
		return fatigue.Measurement{}, err
	}
	mar, err := landmarks.MouthAspectRatio(l.Mouth)
	if err != nil {
		return fatigue.Measurement{}, fmt.Errorf("mouth: %w", err)
	}
	return fatigue.Measurement{
		EAR:              ear,
		MAR:              mar,
		HeadTiltX:        l.HeadTiltX,
		HeadTiltY:        l.HeadTiltY,
		HeadTiltZ:        l.HeadTiltZ,
		LeftEyeOpenProb:  l.LeftEyeOpenProb,
		RightEyeOpenProb: l.RightEyeOpenProb,
	}, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetResultData extracts a result from a message
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error details from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSessionData extracts a session announcement from a message
func (m *Message) GetSessionData() (*SessionData, error) {
	var data SessionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
