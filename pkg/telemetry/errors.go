package telemetry

import "errors"

var (
	// ErrNotConnected is returned when publishing without a live connection.
	ErrNotConnected = errors.New("telemetry: not connected")

	// ErrPublishTimeout is returned when the broker does not acknowledge in time.
	ErrPublishTimeout = errors.New("telemetry: publish timeout")
)
