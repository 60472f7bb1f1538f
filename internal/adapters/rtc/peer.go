// Package rtc adapts pion/webrtc to the core.PeerHandle contract.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

// audioSource is what the media adapter's stream exposes; the peer only
// needs the tracks.
type audioSource interface {
	Tracks() []webrtc.TrackLocal
}

type Connector struct {
	cfg webrtc.Configuration
}

func NewConnector(cfg webrtc.Configuration) *Connector {
	return &Connector{cfg: cfg}
}

var _ core.PeerConnector = (*Connector)(nil)

func (c *Connector) NewPeer(_ context.Context, session domain.SessionID) (core.PeerHandle, error) {
	pc, err := webrtc.NewPeerConnection(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	// Listen-only participants still need the receive path.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("adding audio transceiver: %w", err)
	}

	p := &Peer{pc: pc, session: session}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("session", string(session)).
			Str("peer_connection_state", s.String()).Msg("peer state")
		p.mu.Lock()
		fn := p.onState
		p.mu.Unlock()
		if fn != nil {
			fn(mapState(s))
		}
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		p.mu.Lock()
		fn := p.onCandidate
		p.mu.Unlock()
		if fn != nil {
			fn(toDomainCandidate(cand.ToJSON()))
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("session", string(session)).
			Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()
		if fn != nil {
			fn(track.ID())
		}
	})
	return p, nil
}

type attached struct {
	track  webrtc.TrackLocal
	sender *webrtc.RTPSender
}

type Peer struct {
	pc      *webrtc.PeerConnection
	session domain.SessionID

	mu          sync.Mutex
	outbound    []attached
	onState     func(core.TransportState)
	onCandidate func(domain.Candidate)
	onTrack     func(trackID string)
}

var _ core.PeerHandle = (*Peer)(nil)

func (p *Peer) AttachAudio(stream core.MediaStream) error {
	src, ok := stream.(audioSource)
	if !ok {
		return errors.New("stream does not expose local tracks")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, track := range src.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("adding local track: %w", err)
		}
		p.outbound = append(p.outbound, attached{track: track, sender: sender})
	}
	return nil
}

func (p *Peer) DetachAudio() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.outbound {
		if err := p.pc.RemoveTrack(a.sender); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("session", string(p.session)).Msg("remove track")
		}
	}
	p.outbound = nil
}

// SetAudioEnabled gates the outbound track at the sender. Replacing
// with nil stops packets on the wire, so a mute override holds even if
// the UI layer misbehaves.
func (p *Peer) SetAudioEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.outbound {
		var err error
		if enabled {
			err = a.sender.ReplaceTrack(a.track)
		} else {
			err = a.sender.ReplaceTrack(nil)
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("session", string(p.session)).
				Bool("enabled", enabled).Msg("replace track")
		}
	}
}

func (p *Peer) CreateOffer(_ context.Context) (domain.SessionDesc, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDesc{}, fmt.Errorf("creating offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDesc{}, fmt.Errorf("setting local description: %w", err)
	}
	return domain.SessionDesc{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *Peer) CreateAnswer(_ context.Context) (domain.SessionDesc, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDesc{}, fmt.Errorf("creating answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDesc{}, fmt.Errorf("setting local description: %w", err)
	}
	return domain.SessionDesc{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *Peer) SetRemoteDescription(desc domain.SessionDesc) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *Peer) HasRemoteDescription() bool {
	return p.pc.RemoteDescription() != nil
}

func (p *Peer) AddRemoteCandidate(cand domain.Candidate) error {
	return p.pc.AddICECandidate(toICEInit(cand))
}

// RestartICE produces a fresh offer with new ICE credentials for the
// caller to republish through the signal store.
func (p *Peer) RestartICE(_ context.Context) (domain.SessionDesc, error) {
	offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return domain.SessionDesc{}, fmt.Errorf("creating restart offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDesc{}, fmt.Errorf("setting local description: %w", err)
	}
	return domain.SessionDesc{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *Peer) OnStateChange(fn func(core.TransportState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *Peer) OnLocalCandidate(fn func(domain.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *Peer) OnRemoteTrack(fn func(trackID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *Peer) Close() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("closing peer connection: %w", err)
	}
	return nil
}

func mapState(s webrtc.PeerConnectionState) core.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return core.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return core.TransportClosed
	default:
		return core.TransportNew
	}
}

func toDomainCandidate(ci webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

func toICEInit(cand domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	}
}
