package core

import "fmt"

// Phase is the connection lifecycle. Transitions are driven by the
// event loop in internal/app, never by polling.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiringMedia
	PhaseOffering
	PhaseAnswering
	PhaseConnecting
	PhaseConnected
	PhaseDisconnected
	PhaseFailed
	PhaseRecovering
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiringMedia:
		return "acquiring_media"
	case PhaseOffering:
		return "offering"
	case PhaseAnswering:
		return "answering"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseFailed:
		return "failed"
	case PhaseRecovering:
		return "recovering"
	}
	return "unknown"
}

// Negotiating reports whether the phase is one of the two negotiation
// roles.
func (p Phase) Negotiating() bool {
	return p == PhaseOffering || p == PhaseAnswering
}

// UserStatus renders the phase as the non-technical string the lobby UI
// shows. restarts is the current ICE-restart attempt, 0 when none.
func UserStatus(p Phase, restarts int) string {
	switch p {
	case PhaseIdle:
		return "voice idle"
	case PhaseAcquiringMedia:
		return "requesting microphone permission"
	case PhaseOffering, PhaseAnswering:
		return "setting up voice"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "voice connected"
	case PhaseDisconnected:
		return "voice interrupted"
	case PhaseFailed:
		if restarts > 0 {
			return fmt.Sprintf("reconnecting (attempt %d)", restarts)
		}
		return "connection failed"
	case PhaseRecovering:
		return "reconnecting"
	}
	return "voice idle"
}
