package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoint is returned when a DeliverySession lists no URL.
	ErrNoEndpoint = errors.New("delivery session has no endpoint url")

	// ErrNoTracks is returned when a DeliverySession lacks a video or an
	// audio track id.
	ErrNoTracks = errors.New("delivery session has no video or audio track")
)

// NegotiationError reports a session creation request the delivery
// endpoint did not accept.
type NegotiationError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *NegotiationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("negotiate session at %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("negotiate session at %s: %v", e.Endpoint, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// HeartbeatError is left on a Heartbeat whose keepalive gave up.
type HeartbeatError struct {
	SessionID string
	Err       error
}

func (e *HeartbeatError) Error() string {
	return fmt.Sprintf("heartbeat for session %s: %v", e.SessionID, e.Err)
}

func (e *HeartbeatError) Unwrap() error { return e.Err }
