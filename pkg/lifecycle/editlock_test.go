package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldgate/worldgate/pkg/world"
)

func TestIsEditable_UnknownWorldIsEditable(t *testing.T) {
	_, s, _, _ := newTestCoordinator(t, Config{})
	lock := NewEditLock(s)

	e, err := lock.IsEditable(context.Background(), "w-never-seen")
	require.NoError(t, err)
	assert.True(t, e.Editable)
	assert.Equal(t, world.StatusNeverLoaded, e.Status)
	assert.Empty(t, e.Reason)
}

func TestIsEditable_TracksLifecycle(t *testing.T) {
	c, s, _, _ := newTestCoordinator(t, Config{})
	lock := NewEditLock(s)
	ctx := context.Background()

	_, err := c.RequestBoot(ctx, "w-1", "guild:1", "")
	require.NoError(t, err)

	e, err := lock.IsEditable(ctx, "w-1")
	require.NoError(t, err)
	assert.False(t, e.Editable)
	assert.Equal(t, world.StatusActive, e.Status)
	assert.NotEmpty(t, e.Reason, "blocked answers must say why")

	require.NoError(t, c.RequestStop(ctx, "w-1", ""))

	e, err = lock.IsEditable(ctx, "w-1")
	require.NoError(t, err)
	assert.True(t, e.Editable)
	assert.Equal(t, world.StatusStored, e.Status)
}

func TestIsEditable_MatchesStatusSetExactly(t *testing.T) {
	for _, st := range world.AllStatuses {
		want := st == world.StatusStored || st == world.StatusNeverLoaded
		assert.Equal(t, want, st.Editable(), "status %s", st)
	}
}
