package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usdfg/arenavoice/internal/domain"
)

func TestOfferer(t *testing.T) {
	tests := []struct {
		name         string
		participants []domain.ParticipantID
		want         domain.ParticipantID
		ok           bool
	}{
		{
			name:         "two participants sorted",
			participants: []domain.ParticipantID{"0xBBB", "0xAAA"},
			want:         "0xaaa",
			ok:           true,
		},
		{
			name:         "case and whitespace folded before comparison",
			participants: []domain.ParticipantID{"  0xAbC  ", "0xabd"},
			want:         "0xabc",
			ok:           true,
		},
		{
			name:         "single participant",
			participants: []domain.ParticipantID{"0xSolo"},
			want:         "0xsolo",
			ok:           true,
		},
		{
			name:         "empty set",
			participants: nil,
			ok:           false,
		},
		{
			name:         "blank entries ignored",
			participants: []domain.ParticipantID{"", "  ", "0xonly"},
			want:         "0xonly",
			ok:           true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Offerer(tt.participants)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestOffererDeterministicAcrossOrderings(t *testing.T) {
	a, okA := Offerer([]domain.ParticipantID{"0xAAA", "0xBBB", "0xCCC"})
	b, okB := Offerer([]domain.ParticipantID{"0xccc", "0xbbb", "0xaaa"})
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b, "both sides must elect the same offerer with no coordination")
}

func TestIsOfferer(t *testing.T) {
	assert.True(t, IsOfferer("0xAAA", []domain.ParticipantID{"0xaaa", "0xbbb"}))
	assert.False(t, IsOfferer("0xBBB", []domain.ParticipantID{"0xaaa", "0xbbb"}))

	// A lone participant must offer so the session never deadlocks.
	assert.True(t, IsOfferer("0xsolo", nil))
	assert.True(t, IsOfferer("0xsolo", []domain.ParticipantID{"0xsolo"}))
}
