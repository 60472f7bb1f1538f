package core

import (
	"context"

	"github.com/usdfg/arenavoice/internal/domain"
)

type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// PeerHandle wraps one peer connection. Callbacks must be registered
// before negotiation starts; the handle is exclusively owned by one
// connection state machine and replaced only after a full teardown.
type PeerHandle interface {
	// AttachAudio adds the outbound audio track. Detach removes only the
	// outbound track, the receive path stays up.
	AttachAudio(stream MediaStream) error
	DetachAudio()
	// SetAudioEnabled gates the outbound track itself, so an override
	// holds even if the UI claims otherwise.
	SetAudioEnabled(enabled bool)

	CreateOffer(ctx context.Context) (domain.SessionDesc, error)
	CreateAnswer(ctx context.Context) (domain.SessionDesc, error)
	SetRemoteDescription(desc domain.SessionDesc) error
	HasRemoteDescription() bool
	AddRemoteCandidate(cand domain.Candidate) error
	// RestartICE produces a fresh offer with new ICE credentials; the
	// caller republishes it through the signal store.
	RestartICE(ctx context.Context) (domain.SessionDesc, error)

	OnStateChange(fn func(TransportState))
	OnLocalCandidate(fn func(domain.Candidate))
	OnRemoteTrack(fn func(trackID string))

	Close() error
}

// PeerConnector creates peer handles from the configured ICE servers.
type PeerConnector interface {
	NewPeer(ctx context.Context, session domain.SessionID) (PeerHandle, error)
}
