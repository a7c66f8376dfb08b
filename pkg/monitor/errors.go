package monitor

import "errors"

var (
	// ErrSessionNotFound is returned for operations on an unknown subject.
	ErrSessionNotFound = errors.New("monitor: session not found")

	// ErrInvalidSubject is returned when a subject id is empty or malformed.
	ErrInvalidSubject = errors.New("monitor: invalid subject id")

	// ErrNoPoseEstimator is returned for image frames when no estimator is configured.
	ErrNoPoseEstimator = errors.New("monitor: no pose estimator configured")

	// ErrHubClosed is returned once Shutdown has been called.
	ErrHubClosed = errors.New("monitor: hub closed")
)
