// Package core holds the subsystem's interfaces and pure logic.
// Adapters own resources; core never touches transport directly.
package core

import (
	"context"

	"github.com/usdfg/arenavoice/internal/domain"
)

// SignalStore is the shared negotiation document: one mergeable record
// per session. Watch delivers the full current record on every mutation;
// implementations may coalesce to the latest snapshot when a subscriber
// lags, but must never deliver partial state. The channel closes when
// ctx ends.
type SignalStore interface {
	Read(ctx context.Context, session domain.SessionID) (*domain.SignalRecord, error)
	// Merge applies a field-level partial update. Offer/answer are
	// last-writer-wins per field; candidate keys are append-only and an
	// existing key is never overwritten.
	Merge(ctx context.Context, session domain.SessionID, patch domain.SignalPatch) error
	Delete(ctx context.Context, session domain.SessionID) error
	Watch(ctx context.Context, session domain.SessionID) (<-chan domain.SignalRecord, error)
}

// RosterStore holds the bounded speaker set per session.
//
// Update must apply mutate atomically against the committed value, so a
// capacity check inside mutate is a commit-time check: of two racing
// admits, one sees the other's write and loses. Remote implementations
// without transactions must emulate this with compare-and-swap.
type RosterStore interface {
	Speakers(ctx context.Context, session domain.SessionID) ([]domain.ParticipantID, error)
	Update(ctx context.Context, session domain.SessionID, mutate func([]domain.ParticipantID) ([]domain.ParticipantID, error)) ([]domain.ParticipantID, error)
	Watch(ctx context.Context, session domain.SessionID) (<-chan []domain.ParticipantID, error)
	Delete(ctx context.Context, session domain.SessionID) error
}

// MicRequestStore keys requests by (session, requester).
type MicRequestStore interface {
	Get(ctx context.Context, session domain.SessionID, requester domain.ParticipantID) (*domain.MicRequest, error)
	Put(ctx context.Context, session domain.SessionID, req domain.MicRequest) error
	Delete(ctx context.Context, session domain.SessionID, requester domain.ParticipantID) error
	List(ctx context.Context, session domain.SessionID) ([]domain.MicRequest, error)
	Watch(ctx context.Context, session domain.SessionID) (<-chan []domain.MicRequest, error)
}

// MuteStore keys admin overrides by (session, participant).
type MuteStore interface {
	Get(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.MuteControl, error)
	Set(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, ctl domain.MuteControl) error
	Clear(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error
	// DeleteSession drops every override of the session, so a reused
	// session id never inherits stale admin mutes.
	DeleteSession(ctx context.Context, session domain.SessionID) error
	Watch(ctx context.Context, session domain.SessionID) (<-chan map[domain.ParticipantID]domain.MuteControl, error)
}
