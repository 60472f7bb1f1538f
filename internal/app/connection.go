package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

// Deps are the external collaborators of one connection. All of them
// are shared across connections; everything the connection creates
// through them (stream, peer handle, watches) is exclusively its own.
type Deps struct {
	Signals   core.SignalStore
	Roster    core.RosterStore
	Requests  core.MicRequestStore
	Mutes     core.MuteStore
	Device    core.MediaDevice
	Connector core.PeerConnector
}

type Settings struct {
	RecoveryDeadline time.Duration
	ICERestartMax    int
}

func (s Settings) withDefaults() Settings {
	if s.RecoveryDeadline <= 0 {
		s.RecoveryDeadline = 8 * time.Second
	}
	if s.ICERestartMax <= 0 {
		s.ICERestartMax = 3
	}
	return s
}

// Snapshot is the observable surface the lobby UI reads.
type Snapshot struct {
	Phase        string                 `json:"phase"`
	Status       string                 `json:"status"`
	Muted        bool                   `json:"muted"`
	Overridden   bool                   `json:"overridden"`
	Transmitting bool                   `json:"transmitting"`
	Speakers     []domain.ParticipantID `json:"speakers"`
	MediaError   string                 `json:"mediaError,omitempty"`
}

// Connection is the per-(session, participant) state machine. A single
// goroutine owns all mutable state below the mutex line; callbacks and
// watches only post events. The generation counter guards against
// callbacks of a torn-down attempt leaking into the next one.
type Connection struct {
	deps Deps
	set  Settings

	session domain.SessionID
	self    domain.ParticipantID
	peers   []domain.ParticipantID

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}

	mu   sync.RWMutex
	snap Snapshot

	// Loop-owned state. Never touched outside run().
	gen           int
	phase         core.Phase
	peer          core.PeerHandle
	stream        core.MediaStream
	applied       *core.CandidateSet
	seq           int
	restarts      int
	recovered     bool
	offerer       bool
	transmitting  bool
	localMute     bool
	override      bool
	appliedOffer  string
	appliedAnswer string
	mediaErr      string
	speakers      []domain.ParticipantID
	watchCancel   context.CancelFunc
	recovery      *recoveryTimer
	restartWait   *backoff.ExponentialBackOff
}

func newConnection(parent context.Context, deps Deps, set Settings, session domain.SessionID, self domain.ParticipantID, peers []domain.ParticipantID) *Connection {
	ctx, cancel := context.WithCancel(parent)
	c := &Connection{
		deps:    deps,
		set:     set.withDefaults(),
		session: session,
		self:    self.Normalize(),
		peers:   peers,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan event, 64),
		done:    make(chan struct{}),
		applied: core.NewCandidateSet(),
		phase:   core.PhaseIdle,
	}
	c.recovery = newRecoveryTimer(c.set.RecoveryDeadline, func(gen int) {
		c.post(evDeadline{gen: gen})
	})
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 4 * time.Second
	bo.MaxElapsedTime = 0
	c.restartWait = bo
	return c
}

// Stop cancels the machine and waits for teardown to finish.
func (c *Connection) Stop() {
	c.cancel()
	<-c.done
}

func (c *Connection) Done() <-chan struct{} { return c.done }

// SetMute toggles the participant's own mute. The admin override is
// layered on top and wins regardless.
func (c *Connection) SetMute(muted bool) {
	c.post(cmdSetMute{muted: muted})
}

func (c *Connection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Connection) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Connection) run() {
	defer close(c.done)
	c.watchSession()
	c.startAttempt()
	for {
		select {
		case <-c.ctx.Done():
			c.teardown(true)
			return
		case ev := <-c.events:
			if g := ev.generation(); g != genAny && g != c.gen {
				log.Debug().Str("module", "app.connection").Str("session", string(c.session)).
					Int("event_gen", g).Int("gen", c.gen).Msg("dropping stale event")
				continue
			}
			c.handle(ev)
		}
	}
}

// watchSession subscribes to the session-scoped feeds that survive
// recovery: the speaker roster and the mute overrides.
func (c *Connection) watchSession() {
	if ch, err := c.deps.Roster.Watch(c.ctx, c.session); err == nil {
		go func() {
			for speakers := range ch {
				c.post(evRoster{speakers: speakers})
			}
		}()
	} else {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("roster watch")
	}
	if ch, err := c.deps.Mutes.Watch(c.ctx, c.session); err == nil {
		go func() {
			for controls := range ch {
				c.post(evMute{controls: controls})
			}
		}()
	} else {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("mute watch")
	}
}

// startAttempt runs one full negotiation attempt under the current
// generation. Only transmitting participants acquire media; listeners
// go straight to the peer with no local track.
func (c *Connection) startAttempt() {
	speakers, err := c.deps.Roster.Speakers(c.ctx, c.session)
	if err != nil {
		// Read errors mean "no data yet"; the roster watch catches up.
		log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("roster read")
	} else {
		c.speakers = speakers
	}
	c.transmitting = rosterContains(c.speakers, c.self)
	if c.transmitting {
		c.setPhase(core.PhaseAcquiringMedia)
		go c.acquireMedia(c.gen)
		return
	}
	c.initPeer()
}

func (c *Connection) acquireMedia(gen int) {
	stream, err := c.deps.Device.Capture(c.ctx)
	c.post(evMedia{gen: gen, stream: stream, err: err})
}

func (c *Connection) handle(ev event) {
	switch e := ev.(type) {
	case evMedia:
		c.onMedia(e)
	case evSignal:
		c.onSignal(e.rec)
	case evTransport:
		c.onTransport(e.state)
	case evLocalCandidate:
		c.onLocalCandidate(e.cand)
	case evRemoteTrack:
		log.Debug().Str("module", "app.connection").Str("session", string(c.session)).
			Str("track", e.trackID).Msg("remote track")
	case evDeadline:
		c.onDeadline()
	case evRestartTick:
		c.onRestartTick()
	case evRoster:
		c.onRoster(e.speakers)
	case evMute:
		c.onMute(e.controls)
	case cmdSetMute:
		c.localMute = e.muted
		c.applyMuteGate()
	}
	c.publishSnapshot()
}

func (c *Connection) onMedia(e evMedia) {
	if e.err != nil {
		// Terminal for this capture attempt: carry on listen-only.
		var capErr *core.CaptureError
		if errors.As(e.err, &capErr) {
			c.mediaErr = string(capErr.Reason)
		} else {
			c.mediaErr = string(core.CaptureDeviceUnavailable)
		}
		log.Error().Err(e.err).Str("module", "app.connection").Str("session", string(c.session)).Msg("media capture failed, continuing listen-only")
		c.transmitting = false
		if c.peer == nil {
			c.initPeer()
		}
		return
	}
	c.stream = e.stream
	c.mediaErr = ""
	if c.peer == nil {
		c.initPeer()
		return
	}
	// Promoted to speaker mid-session: attach to the live peer.
	if err := c.peer.AttachAudio(c.stream); err != nil {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("attach audio")
		return
	}
	c.applyMuteGate()
}

// initPeer creates the peer handle for the current generation, wires
// its callbacks and starts negotiation in the elected role.
func (c *Connection) initPeer() {
	peer, err := c.deps.Connector.NewPeer(c.ctx, c.session)
	if err != nil {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("new peer")
		c.setPhase(core.PhaseFailed)
		return
	}
	c.peer = peer
	gen := c.gen
	peer.OnStateChange(func(s core.TransportState) {
		c.post(evTransport{gen: gen, state: s})
	})
	peer.OnLocalCandidate(func(cand domain.Candidate) {
		c.post(evLocalCandidate{gen: gen, cand: cand})
	})
	peer.OnRemoteTrack(func(trackID string) {
		c.post(evRemoteTrack{gen: gen, trackID: trackID})
	})

	if c.stream != nil {
		if err := peer.AttachAudio(c.stream); err != nil {
			log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("attach audio")
		}
		c.applyMuteGate()
	}

	wctx, wcancel := context.WithCancel(c.ctx)
	c.watchCancel = wcancel
	ch, err := c.deps.Signals.Watch(wctx, c.session)
	if err != nil {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("signal watch")
		c.setPhase(core.PhaseFailed)
		return
	}
	go func() {
		for rec := range ch {
			c.post(evSignal{gen: gen, rec: rec})
		}
	}()

	all := append([]domain.ParticipantID{c.self}, c.peers...)
	c.offerer = core.IsOfferer(c.self, all)
	if c.offerer {
		c.setPhase(core.PhaseOffering)
		c.publishOffer()
	} else {
		c.setPhase(core.PhaseAnswering)
		// Wait for the offer to land in the signal record; the watch
		// re-delivers full state so nothing is missed.
	}
}

// publishOffer creates and publishes the offer, unless the record
// already carries one. A fresh offer appears only on a record cleared
// by teardown.
func (c *Connection) publishOffer() {
	rec, err := c.deps.Signals.Read(c.ctx, c.session)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("signal read")
	}
	if rec != nil && rec.Offer != nil {
		if rec.Offer.From != c.self {
			// Election said we offer but a peer already did; answer it.
			c.setPhase(core.PhaseAnswering)
			c.onSignal(*rec)
		}
		return
	}
	offer, err := c.peer.CreateOffer(c.ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("create offer")
		c.setPhase(core.PhaseFailed)
		return
	}
	offer.From = c.self
	if err := c.merge(domain.SignalPatch{Offer: &offer}, true); err != nil {
		c.setPhase(core.PhaseFailed)
	}
}

func (c *Connection) onSignal(rec domain.SignalRecord) {
	if c.peer == nil {
		return
	}
	// An offer from the peer: answer it. A changed offer SDP means the
	// offerer restarted ICE, which needs a fresh answer too.
	if rec.Offer != nil && rec.Offer.From != c.self && rec.Offer.SDP != c.appliedOffer {
		if err := c.peer.SetRemoteDescription(*rec.Offer); err != nil {
			log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("set remote offer")
		} else {
			c.appliedOffer = rec.Offer.SDP
			answer, err := c.peer.CreateAnswer(c.ctx)
			if err != nil {
				log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("create answer")
				c.setPhase(core.PhaseFailed)
			} else {
				answer.From = c.self
				if err := c.merge(domain.SignalPatch{Answer: &answer}, true); err != nil {
					c.setPhase(core.PhaseFailed)
				}
			}
		}
	}
	// The answer to our offer.
	if c.offerer && rec.Answer != nil && rec.Answer.From != c.self && rec.Answer.SDP != c.appliedAnswer {
		if err := c.peer.SetRemoteDescription(*rec.Answer); err != nil {
			log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("set remote answer")
		} else {
			c.appliedAnswer = rec.Answer.SDP
		}
	}
	// Candidates apply only once the remote description is set; earlier
	// snapshots are implicitly buffered by full-state re-delivery.
	if !c.peer.HasRemoteDescription() {
		return
	}
	for _, pending := range c.applied.Pending(&rec, c.self) {
		if err := c.peer.AddRemoteCandidate(pending.Candidate); err != nil {
			log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).
				Str("key", pending.Key).Msg("add remote candidate")
		}
		c.applied.MarkApplied(pending.Key)
	}
}

func (c *Connection) onLocalCandidate(cand domain.Candidate) {
	c.seq++
	key := domain.CandidateKey(c.self, c.seq)
	patch := domain.SignalPatch{Candidates: map[string]domain.Candidate{key: cand}}
	if err := c.merge(patch, false); err != nil {
		log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).
			Str("key", key).Msg("publish candidate")
	}
}

func (c *Connection) onTransport(state core.TransportState) {
	log.Info().Str("module", "app.connection").Str("session", string(c.session)).
		Str("wallet", string(c.self)).Str("state", state.String()).Msg("transport state")
	switch state {
	case core.TransportConnecting:
		c.setPhase(core.PhaseConnecting)
	case core.TransportConnected:
		c.setPhase(core.PhaseConnected)
		c.restarts = 0
		c.restartWait.Reset()
		c.recovery.Disarm()
		c.recovered = false
		if c.transmitting {
			c.registerSpeaker()
		}
	case core.TransportDisconnected:
		c.setPhase(core.PhaseDisconnected)
	case core.TransportFailed:
		c.setPhase(core.PhaseFailed)
		c.scheduleRestart()
	case core.TransportClosed:
		// Teardown path; nothing to drive.
	}
}

// scheduleRestart spaces ICE restarts with exponential backoff, up to
// the configured ceiling. Only the offerer can restart ICE; the
// answerer re-answers the restart offer when it lands, or falls back to
// the recovery deadline.
func (c *Connection) scheduleRestart() {
	if !c.offerer {
		return
	}
	policy := core.PolicyFor(core.KindNegotiation)
	max := c.set.ICERestartMax
	if policy.MaxAttempts > 0 && policy.MaxAttempts < max {
		max = policy.MaxAttempts
	}
	if c.restarts >= max {
		log.Error().Str("module", "app.connection").Str("session", string(c.session)).
			Int("restarts", c.restarts).Msg("ice restart ceiling reached")
		return
	}
	c.restarts++
	gen := c.gen
	time.AfterFunc(c.restartWait.NextBackOff(), func() {
		c.post(evRestartTick{gen: gen})
	})
}

func (c *Connection) onRestartTick() {
	if c.phase != core.PhaseFailed && c.phase != core.PhaseDisconnected {
		return
	}
	if c.peer == nil {
		return
	}
	offer, err := c.peer.RestartICE(c.ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("ice restart")
		c.scheduleRestart()
		return
	}
	offer.From = c.self
	if err := c.merge(domain.SignalPatch{Offer: &offer}, true); err != nil {
		c.scheduleRestart()
	}
}

// onDeadline fires once the recovery deadline elapsed without the
// connection healing. One teardown-and-reinit per failure episode; a
// second failure is terminal.
func (c *Connection) onDeadline() {
	if c.phase == core.PhaseConnected || c.phase == core.PhaseConnecting {
		return
	}
	if c.recovered {
		log.Error().Str("module", "app.connection").Str("session", string(c.session)).
			Msg("recovery already attempted, surfacing terminal failure")
		c.restarts = 0
		c.setPhase(core.PhaseFailed)
		return
	}
	c.recovered = true
	log.Info().Str("module", "app.connection").Str("session", string(c.session)).Msg("recovery: teardown and reinit")
	c.setPhase(core.PhaseRecovering)
	c.teardown(false)
	c.gen++
	c.restarts = 0
	c.seq = 0
	c.appliedOffer = ""
	c.appliedAnswer = ""
	c.applied.Reset()
	c.restartWait.Reset()
	c.setPhase(core.PhaseIdle)
	c.startAttempt()
}

func (c *Connection) onRoster(speakers []domain.ParticipantID) {
	c.speakers = speakers
	was := c.transmitting
	now := rosterContains(speakers, c.self)
	if now == was {
		return
	}
	c.transmitting = now
	if now {
		// Promoted: acquire the mic if we never had it.
		if c.stream == nil {
			if c.peer == nil {
				c.setPhase(core.PhaseAcquiringMedia)
			}
			go c.acquireMedia(c.gen)
		} else if c.peer != nil {
			if err := c.peer.AttachAudio(c.stream); err != nil {
				log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("attach audio")
			}
			c.applyMuteGate()
		}
		return
	}
	// Demoted: drop only the outbound track, keep hearing the others.
	if c.peer != nil {
		c.peer.DetachAudio()
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}

func (c *Connection) onMute(controls map[domain.ParticipantID]domain.MuteControl) {
	ctl, ok := controls[c.self]
	c.override = ok && ctl.Muted
	c.applyMuteGate()
}

func (c *Connection) applyMuteGate() {
	if c.peer == nil {
		return
	}
	c.peer.SetAudioEnabled(domain.EffectiveTransmit(c.localMute, c.override))
}

// registerSpeaker is the idempotent roster add on entering Connected.
// Losing a capacity race here is spectator bookkeeping, not an error.
func (c *Connection) registerSpeaker() {
	_, err := c.deps.Roster.Update(c.ctx, c.session, func(cur []domain.ParticipantID) ([]domain.ParticipantID, error) {
		if rosterContains(cur, c.self) {
			return cur, nil
		}
		if len(cur) >= domain.MaxSpeakers {
			return cur, nil
		}
		return append(cur, c.self), nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("roster register")
	}
}

// merge writes a signal patch with the store-write retry policy.
// critical failures (offer/answer) bubble up as negotiation errors,
// candidate bookkeeping is logged and swallowed.
func (c *Connection) merge(patch domain.SignalPatch, critical bool) error {
	patch.Timestamp = time.Now().UnixMilli()
	policy := core.PolicyFor(core.KindStoreWrite)
	var err error
	attempts := 1
	if policy.Retryable {
		attempts = policy.MaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err = c.deps.Signals.Merge(c.ctx, c.session, patch); err == nil {
			return nil
		}
		if i+1 < attempts {
			select {
			case <-time.After(policy.Backoff):
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
		}
	}
	if critical {
		log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("signal merge")
		return err
	}
	return err
}

// teardown releases everything the current attempt owns. final also
// clears the shared record and removes us from the roster, matching the
// session cleanup the lobby does when a challenge ends.
func (c *Connection) teardown(final bool) {
	c.recovery.Disarm()
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.peer != nil {
		if err := c.peer.Close(); err != nil {
			log.Error().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("peer close")
		}
		c.peer = nil
	}
	bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.deps.Signals.Delete(bg, c.session); err != nil {
		log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("signal delete")
	}
	if final {
		_, err := c.deps.Roster.Update(bg, c.session, func(cur []domain.ParticipantID) ([]domain.ParticipantID, error) {
			return rosterRemove(cur, c.self), nil
		})
		if err != nil {
			log.Warn().Err(err).Str("module", "app.connection").Str("session", string(c.session)).Msg("roster remove")
		}
		c.setPhase(core.PhaseIdle)
		c.publishSnapshot()
	}
}

func (c *Connection) setPhase(p core.Phase) {
	if c.phase == p {
		return
	}
	log.Debug().Str("module", "app.connection").Str("session", string(c.session)).
		Str("wallet", string(c.self)).Str("from", c.phase.String()).Str("to", p.String()).Msg("phase")
	c.phase = p
	// Every road into a failure phase starts the recovery deadline, not
	// just transport callbacks: peer creation, watch setup and critical
	// signal writes land here too.
	if p == core.PhaseFailed || p == core.PhaseDisconnected {
		c.recovery.Arm(c.gen)
	}
}

func (c *Connection) publishSnapshot() {
	speakers := make([]domain.ParticipantID, len(c.speakers))
	copy(speakers, c.speakers)
	snap := Snapshot{
		Phase:        c.phase.String(),
		Status:       core.UserStatus(c.phase, c.restarts),
		Muted:        c.localMute,
		Overridden:   c.override,
		Transmitting: c.transmitting,
		Speakers:     speakers,
		MediaError:   c.mediaErr,
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func rosterContains(roster []domain.ParticipantID, p domain.ParticipantID) bool {
	p = p.Normalize()
	for _, w := range roster {
		if w.Normalize() == p {
			return true
		}
	}
	return false
}

func rosterRemove(roster []domain.ParticipantID, p domain.ParticipantID) []domain.ParticipantID {
	p = p.Normalize()
	out := roster[:0]
	for _, w := range roster {
		if w.Normalize() != p {
			out = append(out, w)
		}
	}
	return out
}
