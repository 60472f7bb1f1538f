package domain

// MuteControl is an admin-imposed forced mute for one participant,
// layered on top of the participant's own mute toggle.
type MuteControl struct {
	Muted   bool          `json:"muted"`
	MutedBy ParticipantID `json:"mutedBy"`
	MutedAt int64         `json:"mutedAt"`
}

// EffectiveTransmit is the single place mute precedence is decided:
// an override always wins over the local toggle.
func EffectiveTransmit(localMute, override bool) bool {
	return !localMute && !override
}
