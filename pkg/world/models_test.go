package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, st := range AllStatuses {
		parsed, err := ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	_, err := ParseStatus("hibernating")
	assert.Error(t, err)
}

func TestStatus_Editable(t *testing.T) {
	editable := map[Status]bool{
		StatusNeverLoaded: true,
		StatusStored:      true,
		StatusLoading:     false,
		StatusActive:      false,
		StatusSaving:      false,
		StatusMigrating:   false,
		StatusError:       false,
	}

	for st, want := range editable {
		assert.Equal(t, want, st.Editable(), "status %s", st)
	}
}

func TestStatus_BlockReason(t *testing.T) {
	for _, st := range AllStatuses {
		if st.Editable() {
			assert.Empty(t, st.BlockReason(), "editable status %s should have no block reason", st)
		} else {
			assert.NotEmpty(t, st.BlockReason(), "blocked status %s needs a human-readable reason", st)
		}
	}
}

func TestStatus_InTransition(t *testing.T) {
	assert.True(t, StatusLoading.InTransition())
	assert.True(t, StatusSaving.InTransition())
	assert.True(t, StatusMigrating.InTransition())
	assert.False(t, StatusActive.InTransition())
	assert.False(t, StatusStored.InTransition())
	assert.False(t, StatusError.InTransition())
}

func TestWorld_Bound(t *testing.T) {
	w := &World{ID: "w-1", Status: StatusStored}
	assert.False(t, w.Bound())

	id := "i-1"
	w.BoundInstanceID = &id
	assert.True(t, w.Bound())

	empty := ""
	w.BoundInstanceID = &empty
	assert.False(t, w.Bound())
}

func TestTransitionRequest_Expired(t *testing.T) {
	now := time.Now()
	req := &TransitionRequest{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, req.Expired(now))
	assert.True(t, req.Expired(now.Add(2*time.Minute)))
}

func TestInstanceRef_HeartbeatStale(t *testing.T) {
	now := time.Now()

	inst := &InstanceRef{LastHeartbeatAt: now.Add(-30 * time.Second)}
	assert.False(t, inst.HeartbeatStale(now, time.Minute))
	assert.True(t, inst.HeartbeatStale(now, 10*time.Second))

	// Zero heartbeat is always stale once a threshold is set.
	assert.True(t, (&InstanceRef{}).HeartbeatStale(now, time.Minute))

	// Threshold zero disables the check entirely.
	assert.False(t, (&InstanceRef{}).HeartbeatStale(now, 0))
}
