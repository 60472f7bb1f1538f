package domain

// MaxSpeakers is the hard cap on participants transmitting audio at the
// same time in one session.
const MaxSpeakers = 2

// SpeakerRoster is the ordered set of participants currently allowed to
// transmit. Membership changes only through the admission controller.
type SpeakerRoster struct {
	SpeakerWallets []ParticipantID `json:"speakerWallets"`
}

func (r SpeakerRoster) Contains(p ParticipantID) bool {
	p = p.Normalize()
	for _, w := range r.SpeakerWallets {
		if w.Normalize() == p {
			return true
		}
	}
	return false
}
