package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SessionDesc is an SDP blob plus the participant that produced it.
type SessionDesc struct {
	Type string        `json:"type"`
	SDP  string        `json:"sdp"`
	From ParticipantID `json:"from"`
}

// Candidate mirrors the ICE candidate JSON shape exchanged through the
// signal record. Pointer fields stay nil when the transport omits them.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// SignalRecord is the shared negotiation document, one per session.
// Both participants mutate it through field-level merges only.
type SignalRecord struct {
	Offer      *SessionDesc         `json:"offer,omitempty"`
	Answer     *SessionDesc         `json:"answer,omitempty"`
	Candidates map[string]Candidate `json:"candidates,omitempty"`
	Timestamp  int64                `json:"timestamp"`
}

// SignalPatch is a partial update of a SignalRecord. Nil fields are left
// untouched by a merge; candidate keys are append-only.
type SignalPatch struct {
	Offer      *SessionDesc
	Answer     *SessionDesc
	Candidates map[string]Candidate
	Timestamp  int64
}

const candidateKeyPrefix = "candidate_"

// CandidateKey builds the append-only key a local candidate is stored
// under: candidate_<wallet>_<seq>. Sequence numbers are zero padded so
// lexicographic ordering matches numeric ordering.
func CandidateKey(p ParticipantID, seq int) string {
	return fmt.Sprintf("%s%s_%06d", candidateKeyPrefix, p.Normalize(), seq)
}

// ParseCandidateKey splits a candidate key back into originating
// participant and sequence. ok is false for foreign keys.
func ParseCandidateKey(key string) (p ParticipantID, seq int, ok bool) {
	if !strings.HasPrefix(key, candidateKeyPrefix) {
		return "", 0, false
	}
	rest := key[len(candidateKeyPrefix):]
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, false
	}
	return ParticipantID(rest[:i]), n, true
}
