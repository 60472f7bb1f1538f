package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

// MuteOverrideSync manages the admin-imposed forced mute. It only
// writes the store; enforcement happens at the track level inside each
// connection, driven by the mute watch.
type MuteOverrideSync struct {
	mutes core.MuteStore
}

func NewMuteOverrideSync(mutes core.MuteStore) *MuteOverrideSync {
	return &MuteOverrideSync{mutes: mutes}
}

func (m *MuteOverrideSync) SetOverride(ctx context.Context, session domain.SessionID, participant, setBy domain.ParticipantID) error {
	ctl := domain.MuteControl{
		Muted:   true,
		MutedBy: setBy.Normalize(),
		MutedAt: time.Now().UnixMilli(),
	}
	if err := m.mutes.Set(ctx, session, participant.Normalize(), ctl); err != nil {
		return err
	}
	log.Info().Str("module", "app.mutesync").Str("session", string(session)).
		Str("participant", string(participant.Normalize())).Str("by", string(setBy.Normalize())).Msg("mute override set")
	return nil
}

func (m *MuteOverrideSync) ClearOverride(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error {
	if err := m.mutes.Clear(ctx, session, participant.Normalize()); err != nil {
		return err
	}
	log.Info().Str("module", "app.mutesync").Str("session", string(session)).
		Str("participant", string(participant.Normalize())).Msg("mute override cleared")
	return nil
}

// Override reports whether the participant is force-muted right now.
func (m *MuteOverrideSync) Override(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	ctl, err := m.mutes.Get(ctx, session, participant.Normalize())
	if err != nil {
		return false, err
	}
	return ctl != nil && ctl.Muted, nil
}
