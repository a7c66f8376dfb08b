package spray

import "errors"

var (
	// ErrCoolingDown is returned when a subject was sprayed within the cooldown.
	ErrCoolingDown = errors.New("spray: subject cooling down")

	// ErrNoGateway is returned when the HTTP actuator has no gateway URL.
	ErrNoGateway = errors.New("spray: no gateway URL configured")

	// ErrNoPublisher is returned when the MQTT actuator has no publisher.
	ErrNoPublisher = errors.New("spray: no MQTT publisher configured")
)
