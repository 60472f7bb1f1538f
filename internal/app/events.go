package app

import (
	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

// Events feeding the connection loop. Attempt-scoped events carry the
// generation they were produced under; the loop drops stale ones after
// a teardown. Session-scoped events (roster, mute, commands) use genAny.
const genAny = -1

type event interface {
	generation() int
}

type evMedia struct {
	gen    int
	stream core.MediaStream
	err    error
}

type evSignal struct {
	gen int
	rec domain.SignalRecord
}

type evTransport struct {
	gen   int
	state core.TransportState
}

type evLocalCandidate struct {
	gen  int
	cand domain.Candidate
}

type evRemoteTrack struct {
	gen     int
	trackID string
}

type evDeadline struct{ gen int }

type evRestartTick struct{ gen int }

type evRoster struct {
	speakers []domain.ParticipantID
}

type evMute struct {
	controls map[domain.ParticipantID]domain.MuteControl
}

type cmdSetMute struct{ muted bool }

func (e evMedia) generation() int          { return e.gen }
func (e evSignal) generation() int         { return e.gen }
func (e evTransport) generation() int      { return e.gen }
func (e evLocalCandidate) generation() int { return e.gen }
func (e evRemoteTrack) generation() int    { return e.gen }
func (e evDeadline) generation() int       { return e.gen }
func (e evRestartTick) generation() int    { return e.gen }
func (e evRoster) generation() int         { return genAny }
func (e evMute) generation() int           { return genAny }
func (e cmdSetMute) generation() int       { return genAny }
