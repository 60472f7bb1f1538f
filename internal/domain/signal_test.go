package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateKeyRoundTrip(t *testing.T) {
	key := CandidateKey("0xAbCdEf", 7)
	assert.Equal(t, "candidate_0xabcdef_000007", key)

	p, seq, ok := ParseCandidateKey(key)
	require.True(t, ok)
	assert.Equal(t, ParticipantID("0xabcdef"), p)
	assert.Equal(t, 7, seq)
}

func TestCandidateKeyOrdering(t *testing.T) {
	// Zero padding keeps lexicographic order equal to numeric order, which
	// the dedup set relies on when sorting pending candidates.
	assert.Less(t, CandidateKey("0xbob", 9), CandidateKey("0xbob", 10))
	assert.Less(t, CandidateKey("0xbob", 99), CandidateKey("0xbob", 100))
}

func TestParseCandidateKeyRejectsForeign(t *testing.T) {
	for _, key := range []string{"", "offer", "candidate_", "candidate_0xbob_x"} {
		_, _, ok := ParseCandidateKey(key)
		assert.False(t, ok, key)
	}
}

func TestEffectiveTransmit(t *testing.T) {
	tests := []struct {
		localMute bool
		override  bool
		want      bool
	}{
		{false, false, true},
		{true, false, false},
		{false, true, false},
		{true, true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveTransmit(tt.localMute, tt.override))
	}
}

func TestValidateWallet(t *testing.T) {
	assert.NoError(t, ValidateWallet("0xabc"))
	assert.ErrorIs(t, ValidateWallet(""), ErrEmptyWallet)

	long := make([]byte, MaxWalletLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, ValidateWallet(ParticipantID(long)), ErrWalletTooLong)
}
