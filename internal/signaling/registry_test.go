package signaling

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookupRemove(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	r.Register(&User{ConnID: id, State: Idle})

	got := r.Lookup(id)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ConnID)
	assert.Equal(t, 1, r.Count())

	r.Remove(id)
	assert.Nil(t, r.Lookup(id))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	r.Register(&User{ConnID: id, State: Idle, Username: "orig"})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Username = "mutated"

	assert.Equal(t, "orig", r.Lookup(id).Username, "mutating a snapshot entry must not affect the live record")
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() { r.Remove(uuid.New()) })
}
