package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

// AdmissionController owns the bounded speaker roster and the mic
// request lifecycle. Capacity is re-validated inside the roster store's
// atomic mutate, so of two racing admits exactly one loses.
type AdmissionController struct {
	roster   core.RosterStore
	requests core.MicRequestStore
	max      int
}

func NewAdmissionController(roster core.RosterStore, requests core.MicRequestStore) *AdmissionController {
	return &AdmissionController{roster: roster, requests: requests, max: domain.MaxSpeakers}
}

// RequestMic files a pending request. A requester with an open request
// (pending or approved) cannot file another.
func (a *AdmissionController) RequestMic(ctx context.Context, session domain.SessionID, requester domain.ParticipantID) error {
	if err := domain.ValidateSessionID(session); err != nil {
		return err
	}
	requester = requester.Normalize()
	existing, err := a.requests.Get(ctx, session, requester)
	if err != nil {
		return err
	}
	if existing != nil && existing.Open() {
		return core.ErrRequestExists
	}
	req := domain.MicRequest{
		Requester: requester,
		Status:    domain.MicRequestPending,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := a.requests.Put(ctx, session, req); err != nil {
		return err
	}
	log.Info().Str("module", "app.admission").Str("session", string(session)).
		Str("requester", string(requester)).Msg("mic requested")
	return nil
}

// Approve admits the requester when a slot is free. A full roster is a
// normal outcome, not an error: ok is false and the caller re-offers
// the replace path.
func (a *AdmissionController) Approve(ctx context.Context, session domain.SessionID, requester, approver domain.ParticipantID) (bool, error) {
	requester = requester.Normalize()
	_, err := a.roster.Update(ctx, session, func(cur []domain.ParticipantID) ([]domain.ParticipantID, error) {
		if rosterContains(cur, requester) {
			return cur, nil
		}
		if len(cur) >= a.max {
			return cur, core.ErrRosterFull
		}
		return append(cur, requester), nil
	})
	if errors.Is(err, core.ErrRosterFull) {
		log.Info().Str("module", "app.admission").Str("session", string(session)).
			Str("requester", string(requester)).Msg("approve refused: roster full")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := a.resolve(ctx, session, requester, domain.MicRequestApproved); err != nil {
		return true, err
	}
	log.Info().Str("module", "app.admission").Str("session", string(session)).
		Str("requester", string(requester)).Str("approver", string(approver.Normalize())).Msg("mic approved")
	return true, nil
}

// ApproveWithReplace atomically swaps replaceTarget for the requester.
// Used exactly when the roster is full.
func (a *AdmissionController) ApproveWithReplace(ctx context.Context, session domain.SessionID, requester, replaceTarget, approver domain.ParticipantID) error {
	requester = requester.Normalize()
	replaceTarget = replaceTarget.Normalize()
	_, err := a.roster.Update(ctx, session, func(cur []domain.ParticipantID) ([]domain.ParticipantID, error) {
		next := make([]domain.ParticipantID, 0, len(cur))
		for _, w := range cur {
			if w.Normalize() == replaceTarget || w.Normalize() == requester {
				continue
			}
			next = append(next, w)
		}
		if len(next) >= a.max {
			return cur, core.ErrRosterFull
		}
		return append(next, requester), nil
	})
	if err != nil {
		return err
	}
	if err := a.resolve(ctx, session, requester, domain.MicRequestApproved); err != nil {
		return err
	}
	log.Info().Str("module", "app.admission").Str("session", string(session)).
		Str("requester", string(requester)).Str("replaced", string(replaceTarget)).
		Str("approver", string(approver.Normalize())).Msg("mic approved with replace")
	return nil
}

// Deny marks the request denied; the roster is untouched.
func (a *AdmissionController) Deny(ctx context.Context, session domain.SessionID, requester, approver domain.ParticipantID) error {
	if err := a.resolve(ctx, session, requester.Normalize(), domain.MicRequestDenied); err != nil {
		return err
	}
	log.Info().Str("module", "app.admission").Str("session", string(session)).
		Str("requester", string(requester.Normalize())).Str("approver", string(approver.Normalize())).Msg("mic denied")
	return nil
}

// RemoveSpeaker is idempotent: graceful leaves, forced demotions and
// recovery teardowns all land here.
func (a *AdmissionController) RemoveSpeaker(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error {
	participant = participant.Normalize()
	_, err := a.roster.Update(ctx, session, func(cur []domain.ParticipantID) ([]domain.ParticipantID, error) {
		return rosterRemove(cur, participant), nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.admission").Str("session", string(session)).
		Str("participant", string(participant)).Msg("speaker removed")
	return nil
}

// Speakers returns the current roster.
func (a *AdmissionController) Speakers(ctx context.Context, session domain.SessionID) ([]domain.ParticipantID, error) {
	return a.roster.Speakers(ctx, session)
}

// PendingRequests lists the open requests for the admin panel.
func (a *AdmissionController) PendingRequests(ctx context.Context, session domain.SessionID) ([]domain.MicRequest, error) {
	all, err := a.requests.List(ctx, session)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, r := range all {
		if r.Status == domain.MicRequestPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

func (a *AdmissionController) resolve(ctx context.Context, session domain.SessionID, requester domain.ParticipantID, status domain.MicRequestStatus) error {
	existing, err := a.requests.Get(ctx, session, requester)
	if err != nil {
		return err
	}
	if existing == nil {
		// Approving a participant who never filed is fine (e.g. the
		// initial two players); only an explicit deny needs a target.
		if status == domain.MicRequestDenied {
			return core.ErrNoSuchRequest
		}
		return nil
	}
	existing.Status = status
	return a.requests.Put(ctx, session, *existing)
}
