package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDevice struct {
	mu       sync.Mutex
	err      error
	captures int
	streams  []*fakeStream
}

func (d *fakeDevice) Capture(_ context.Context) (core.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures++
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type fakePeer struct {
	label string

	mu          sync.Mutex
	offerN      int
	onState     func(core.TransportState)
	onCandidate func(domain.Candidate)
	onTrack     func(string)
	remote      *domain.SessionDesc
	added       []domain.Candidate
	attached    bool
	enabled     []bool
	restarts    int
	closed      bool
}

var _ core.PeerHandle = (*fakePeer)(nil)

func (p *fakePeer) AttachAudio(core.MediaStream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = true
	return nil
}

func (p *fakePeer) DetachAudio() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = false
}

func (p *fakePeer) SetAudioEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = append(p.enabled, enabled)
}

func (p *fakePeer) CreateOffer(context.Context) (domain.SessionDesc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offerN++
	return domain.SessionDesc{Type: "offer", SDP: fmt.Sprintf("%s-offer-%d", p.label, p.offerN)}, nil
}

func (p *fakePeer) CreateAnswer(context.Context) (domain.SessionDesc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offerN++
	return domain.SessionDesc{Type: "answer", SDP: fmt.Sprintf("%s-answer-%d", p.label, p.offerN)}, nil
}

func (p *fakePeer) SetRemoteDescription(desc domain.SessionDesc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := desc
	p.remote = &d
	return nil
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

func (p *fakePeer) AddRemoteCandidate(cand domain.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, cand)
	return nil
}

func (p *fakePeer) RestartICE(context.Context) (domain.SessionDesc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	return domain.SessionDesc{Type: "offer", SDP: fmt.Sprintf("%s-restart-%d", p.label, p.restarts)}, nil
}

func (p *fakePeer) OnStateChange(fn func(core.TransportState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) OnLocalCandidate(fn func(domain.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePeer) OnRemoteTrack(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) fireState(s core.TransportState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *fakePeer) fireCandidate(cand domain.Candidate) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

func (p *fakePeer) addedCandidates() []domain.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Candidate, len(p.added))
	copy(out, p.added)
	return out
}

func (p *fakePeer) isAttached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) lastEnabled() (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.enabled) == 0 {
		return false, false
	}
	return p.enabled[len(p.enabled)-1], true
}

type fakeConnector struct {
	mu    sync.Mutex
	peers []*fakePeer
}

var _ core.PeerConnector = (*fakeConnector)(nil)

func (f *fakeConnector) NewPeer(_ context.Context, _ domain.SessionID) (core.PeerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{label: fmt.Sprintf("peer%d", len(f.peers))}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeConnector) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.peers) {
		return nil
	}
	return f.peers[i]
}
