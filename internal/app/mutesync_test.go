package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usdfg/arenavoice/internal/adapters/store"
)

func TestMuteOverrideLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	sync := NewMuteOverrideSync(mem.Mutes())

	muted, err := sync.Override(ctx, testSession, "0xbob")
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, sync.SetOverride(ctx, testSession, "0xBob", "0xAdmin"))
	muted, err = sync.Override(ctx, testSession, "0xbob")
	require.NoError(t, err)
	assert.True(t, muted)

	ctl, err := mem.Mutes().Get(ctx, testSession, "0xbob")
	require.NoError(t, err)
	require.NotNil(t, ctl)
	assert.Equal(t, "0xadmin", string(ctl.MutedBy))
	assert.NotZero(t, ctl.MutedAt)

	require.NoError(t, sync.ClearOverride(ctx, testSession, "0xbob"))
	muted, err = sync.Override(ctx, testSession, "0xbob")
	require.NoError(t, err)
	assert.False(t, muted)
}
