package core

import (
	"sort"

	"github.com/usdfg/arenavoice/internal/domain"
)

// Offerer picks which session member initiates the offer: normalize the
// ids, sort, first one offers. Both sides compute the same answer with
// no coordination message. ok is false only for an empty set.
func Offerer(participants []domain.ParticipantID) (domain.ParticipantID, bool) {
	norm := make([]domain.ParticipantID, 0, len(participants))
	for _, p := range participants {
		if n := p.Normalize(); n != "" {
			norm = append(norm, n)
		}
	}
	if len(norm) == 0 {
		return "", false
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i] < norm[j] })
	return norm[0], true
}

// IsOfferer reports whether self should create the offer. While the
// participant set is still a transient subset (peer not yet known),
// self offers, so a lone participant never deadlocks waiting.
func IsOfferer(self domain.ParticipantID, participants []domain.ParticipantID) bool {
	first, ok := Offerer(participants)
	if !ok {
		return true
	}
	return first == self.Normalize()
}
