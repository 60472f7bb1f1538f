package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usdfg/arenavoice/internal/adapters/store"
	"github.com/usdfg/arenavoice/internal/core"
	"github.com/usdfg/arenavoice/internal/domain"
)

const testSession = domain.SessionID("wager-42")

func newAdmission(t *testing.T) (*AdmissionController, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewAdmissionController(mem.Roster(), mem.Requests()), mem
}

func TestRequestMicDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	require.NoError(t, ac.RequestMic(ctx, testSession, "0xCarol"))
	assert.ErrorIs(t, ac.RequestMic(ctx, testSession, "0xcarol"), core.ErrRequestExists,
		"a requester with an open request cannot file another")
}

func TestRequestMicAgainAfterDeny(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	require.NoError(t, ac.RequestMic(ctx, testSession, "0xcarol"))
	require.NoError(t, ac.Deny(ctx, testSession, "0xcarol", "0xadmin"))
	assert.NoError(t, ac.RequestMic(ctx, testSession, "0xcarol"),
		"a denied request is closed, re-requesting is allowed")
}

func TestApproveRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	ok, err := ac.Approve(ctx, testSession, "0xalice", "0xadmin")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ac.Approve(ctx, testSession, "0xbob", "0xadmin")
	require.NoError(t, err)
	require.True(t, ok)

	// Roster full: not an error, the caller offers the replace path.
	require.NoError(t, ac.RequestMic(ctx, testSession, "0xcarol"))
	ok, err = ac.Approve(ctx, testSession, "0xcarol", "0xadmin")
	require.NoError(t, err)
	assert.False(t, ok)

	speakers, err := ac.Speakers(ctx, testSession)
	require.NoError(t, err)
	assert.Len(t, speakers, domain.MaxSpeakers)
	assert.NotContains(t, speakers, domain.ParticipantID("0xcarol"))

	// The pending request survives the refused approve.
	pending, err := ac.PendingRequests(ctx, testSession)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.ParticipantID("0xcarol"), pending[0].Requester)
}

func TestApproveIdempotentForExistingSpeaker(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	ok, err := ac.Approve(ctx, testSession, "0xalice", "0xadmin")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ac.Approve(ctx, testSession, "0xAlice", "0xadmin")
	require.NoError(t, err)
	assert.True(t, ok)

	speakers, err := ac.Speakers(ctx, testSession)
	require.NoError(t, err)
	assert.Len(t, speakers, 1)
}

func TestApproveWithReplaceSwapsAtomically(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	for _, p := range []domain.ParticipantID{"0xalice", "0xbob"} {
		ok, err := ac.Approve(ctx, testSession, p, "0xadmin")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, ac.RequestMic(ctx, testSession, "0xcarol"))

	require.NoError(t, ac.ApproveWithReplace(ctx, testSession, "0xcarol", "0xbob", "0xadmin"))

	speakers, err := ac.Speakers(ctx, testSession)
	require.NoError(t, err)
	assert.Len(t, speakers, domain.MaxSpeakers, "the cap holds through the swap")
	assert.Contains(t, speakers, domain.ParticipantID("0xcarol"))
	assert.NotContains(t, speakers, domain.ParticipantID("0xbob"))
}

func TestDenyWithoutRequest(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)
	assert.ErrorIs(t, ac.Deny(ctx, testSession, "0xghost", "0xadmin"), core.ErrNoSuchRequest)
}

func TestRemoveSpeakerIdempotent(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	ok, err := ac.Approve(ctx, testSession, "0xalice", "0xadmin")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ac.RemoveSpeaker(ctx, testSession, "0xalice"))
	require.NoError(t, ac.RemoveSpeaker(ctx, testSession, "0xalice"))

	speakers, err := ac.Speakers(ctx, testSession)
	require.NoError(t, err)
	assert.Empty(t, speakers)
}

func TestConcurrentAdmitsOneLoses(t *testing.T) {
	ctx := context.Background()
	ac, _ := newAdmission(t)

	ok, err := ac.Approve(ctx, testSession, "0xalice", "0xadmin")
	require.NoError(t, err)
	require.True(t, ok)

	type outcome struct {
		ok  bool
		err error
	}
	results := make(chan outcome, 2)
	for _, p := range []domain.ParticipantID{"0xbob", "0xcarol"} {
		p := p
		go func() {
			ok, err := ac.Approve(ctx, testSession, p, "0xadmin")
			results <- outcome{ok: ok, err: err}
		}()
	}

	admitted := 0
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		if r.ok {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted, "exactly one racing admit wins the last slot")

	speakers, err := ac.Speakers(ctx, testSession)
	require.NoError(t, err)
	assert.Len(t, speakers, domain.MaxSpeakers)
}
