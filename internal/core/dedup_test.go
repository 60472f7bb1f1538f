package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usdfg/arenavoice/internal/domain"
)

func record(keys ...string) *domain.SignalRecord {
	rec := &domain.SignalRecord{Candidates: make(map[string]domain.Candidate)}
	for _, k := range keys {
		rec.Candidates[k] = domain.Candidate{Candidate: "candidate:" + k}
	}
	return rec
}

func TestCandidateSetPendingSkipsOwnAndApplied(t *testing.T) {
	s := NewCandidateSet()
	rec := record(
		domain.CandidateKey("0xalice", 1),
		domain.CandidateKey("0xalice", 2),
		domain.CandidateKey("0xbob", 1),
	)

	pending := s.Pending(rec, "0xAlice")
	require.Len(t, pending, 1)
	assert.Equal(t, domain.CandidateKey("0xbob", 1), pending[0].Key)

	s.MarkApplied(pending[0].Key)
	assert.Empty(t, s.Pending(rec, "0xAlice"), "a re-delivered snapshot must be a no-op")
}

func TestCandidateSetPendingOrdersBySequence(t *testing.T) {
	s := NewCandidateSet()
	rec := record(
		domain.CandidateKey("0xbob", 12),
		domain.CandidateKey("0xbob", 2),
		domain.CandidateKey("0xbob", 100),
	)

	pending := s.Pending(rec, "0xalice")
	require.Len(t, pending, 3)
	assert.Equal(t, domain.CandidateKey("0xbob", 2), pending[0].Key)
	assert.Equal(t, domain.CandidateKey("0xbob", 12), pending[1].Key)
	assert.Equal(t, domain.CandidateKey("0xbob", 100), pending[2].Key)
}

func TestCandidateSetIgnoresForeignKeys(t *testing.T) {
	s := NewCandidateSet()
	rec := &domain.SignalRecord{Candidates: map[string]domain.Candidate{
		"garbage": {Candidate: "x"},
	}}
	assert.Empty(t, s.Pending(rec, "0xalice"))
}

func TestCandidateSetReset(t *testing.T) {
	s := NewCandidateSet()
	key := domain.CandidateKey("0xbob", 1)
	s.MarkApplied(key)
	require.True(t, s.Applied(key))

	s.Reset()
	assert.False(t, s.Applied(key), "a new attempt starts with a clean applied set")
}

func TestCandidateSetNilRecord(t *testing.T) {
	s := NewCandidateSet()
	assert.Empty(t, s.Pending(nil, "0xalice"))
}
