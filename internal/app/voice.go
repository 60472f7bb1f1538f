package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/domain"
)

type connKey struct {
	session domain.SessionID
	wallet  domain.ParticipantID
}

// VoiceService owns one connection per (session, wallet) and guards
// against double joins: concurrent joins for the same pair collapse
// into the existing connection instead of leaking devices and peers.
type VoiceService struct {
	deps Deps
	set  Settings

	mu    sync.Mutex
	conns map[connKey]*Connection
}

func NewVoiceService(deps Deps, set Settings) *VoiceService {
	return &VoiceService{
		deps:  deps,
		set:   set.withDefaults(),
		conns: make(map[connKey]*Connection),
	}
}

// Join starts (or returns the in-flight) connection for the pair.
// Invalid session ids and wallets are caller-contract violations and
// fail fast; everything else surfaces through the status snapshot.
func (s *VoiceService) Join(ctx context.Context, session domain.SessionID, wallet domain.ParticipantID, peers []domain.ParticipantID) (*Connection, error) {
	if err := domain.ValidateSessionID(session); err != nil {
		return nil, err
	}
	if err := domain.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	key := connKey{session: session, wallet: wallet.Normalize()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[key]; ok {
		select {
		case <-c.Done():
			// Finished connection left behind; replace it.
		default:
			log.Info().Str("module", "app.voice").Str("session", string(session)).
				Str("wallet", string(key.wallet)).Msg("join collapsed into existing connection")
			return c, nil
		}
	}
	c := newConnection(ctx, s.deps, s.set, session, key.wallet, peers)
	s.conns[key] = c
	go c.run()
	log.Info().Str("module", "app.voice").Str("session", string(session)).
		Str("wallet", string(key.wallet)).Msg("joined voice session")
	return c, nil
}

// Leave tears the pair's connection down. When the last participant of
// a session leaves, the session's shared documents are destroyed.
func (s *VoiceService) Leave(session domain.SessionID, wallet domain.ParticipantID) {
	key := connKey{session: session, wallet: wallet.Normalize()}
	s.mu.Lock()
	c, ok := s.conns[key]
	delete(s.conns, key)
	last := ok && !s.sessionActiveLocked(session)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.Stop()
	if last {
		s.destroySession(session)
	}
}

func (s *VoiceService) sessionActiveLocked(session domain.SessionID) bool {
	for key := range s.conns {
		if key.session == session {
			return true
		}
	}
	return false
}

func (s *VoiceService) destroySession(session domain.SessionID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Signals.Delete(ctx, session); err != nil {
		log.Warn().Err(err).Str("module", "app.voice").Str("session", string(session)).Msg("destroy signals")
	}
	if err := s.deps.Roster.Delete(ctx, session); err != nil {
		log.Warn().Err(err).Str("module", "app.voice").Str("session", string(session)).Msg("destroy roster")
	}
	reqs, err := s.deps.Requests.List(ctx, session)
	if err == nil {
		for _, r := range reqs {
			_ = s.deps.Requests.Delete(ctx, session, r.Requester)
		}
	}
	if err := s.deps.Mutes.DeleteSession(ctx, session); err != nil {
		log.Warn().Err(err).Str("module", "app.voice").Str("session", string(session)).Msg("destroy mute overrides")
	}
	log.Info().Str("module", "app.voice").Str("session", string(session)).Msg("session documents destroyed")
}

// Snapshot returns the observable state for the pair, or false when the
// participant is not in the session.
func (s *VoiceService) Snapshot(session domain.SessionID, wallet domain.ParticipantID) (Snapshot, bool) {
	key := connKey{session: session, wallet: wallet.Normalize()}
	s.mu.Lock()
	c, ok := s.conns[key]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return c.Snapshot(), true
}

// SetMute forwards the participant's own mute toggle.
func (s *VoiceService) SetMute(session domain.SessionID, wallet domain.ParticipantID, muted bool) bool {
	key := connKey{session: session, wallet: wallet.Normalize()}
	s.mu.Lock()
	c, ok := s.conns[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	c.SetMute(muted)
	return true
}
