// Package cloudsync implements device registration, the cloud sync loop,
// and the retry/backoff and notification-channel plumbing around them
// (4.H). It is modeled on the teacher's reconfigure-with-backoff service
// pattern, with the HTTP transport and network signal swapped in as
// provider interfaces instead of a UART link.
package cloudsync

import "time"

// GcdState is the registration/connection state machine (4.H).
type GcdState int

const (
	StateUnconfigured GcdState = iota
	StateUnregistered
	StateConnecting
	StateConnected
	StateDisconnected
	StateInvalidCredentials
)

func (s GcdState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateUnregistered:
		return "unregistered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateInvalidCredentials:
		return "invalid_credentials"
	default:
		return "unknown"
	}
}

// PairingInfo carries the in-progress pairing/registration session's
// identifying details, supplementing the spec's registration flow with
// the fields the original device manager threads through it. ExpiresAt
// is a snapshot of when the session stops being valid; Syncer.Pairing
// treats a session whose ExpiresAt has passed as already cleared.
type PairingInfo struct {
	SessionID    string
	Mode         string
	EmbeddedCode string
	ExpiresAt    time.Time
}

// RegistrationData is the caller-supplied input to RegisterDevice.
type RegistrationData struct {
	Ticket        string
	OAuthClientID string
}
