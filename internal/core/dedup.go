package core

import (
	"sort"

	"github.com/usdfg/arenavoice/internal/domain"
)

// CandidateSet tracks which remote candidate keys were already applied,
// so re-delivered snapshots of the signal record are idempotent.
type CandidateSet struct {
	applied map[string]struct{}
}

func NewCandidateSet() *CandidateSet {
	return &CandidateSet{applied: make(map[string]struct{})}
}

type PendingCandidate struct {
	Key       string
	Candidate domain.Candidate
}

// Pending returns the remote candidates in rec that were not applied
// yet, in ascending key order (per-participant sequence order). The
// local participant's own keys are skipped.
func (s *CandidateSet) Pending(rec *domain.SignalRecord, self domain.ParticipantID) []PendingCandidate {
	if rec == nil || len(rec.Candidates) == 0 {
		return nil
	}
	self = self.Normalize()
	out := make([]PendingCandidate, 0, len(rec.Candidates))
	for key, cand := range rec.Candidates {
		from, _, ok := domain.ParseCandidateKey(key)
		if !ok || from == self {
			continue
		}
		if _, done := s.applied[key]; done {
			continue
		}
		out = append(out, PendingCandidate{Key: key, Candidate: cand})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *CandidateSet) MarkApplied(key string) {
	s.applied[key] = struct{}{}
}

func (s *CandidateSet) Applied(key string) bool {
	_, ok := s.applied[key]
	return ok
}

func (s *CandidateSet) Reset() {
	s.applied = make(map[string]struct{})
}
