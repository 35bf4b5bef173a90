package state

import (
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/chatlink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestState(t *testing.T) *State {
	t.Helper()

	st, err := LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st
}

func TestIdentity_AbsentReturnsNil(t *testing.T) {
	st := loadTestState(t)

	id, err := st.Identity()
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestIdentity_RoundTrip(t *testing.T) {
	st := loadTestState(t)

	want := models.Identity{ID: "u1", DisplayName: "Alice", Token: "tok-123"}
	require.NoError(t, st.SetIdentity(want))

	got, err := st.Identity()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestSetIdentity_Overwrites(t *testing.T) {
	st := loadTestState(t)

	require.NoError(t, st.SetIdentity(models.Identity{ID: "u1", DisplayName: "Alice", Token: "t1"}))
	require.NoError(t, st.SetIdentity(models.Identity{ID: "u2", DisplayName: "Bob", Token: "t2"}))

	got, err := st.Identity()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u2", got.ID)
}

func TestClearIdentity(t *testing.T) {
	st := loadTestState(t)

	require.NoError(t, st.SetIdentity(models.Identity{ID: "u1", DisplayName: "Alice", Token: "t1"}))
	require.NoError(t, st.ClearIdentity())

	got, err := st.Identity()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClearIdentity_EmptyIsNoop(t *testing.T) {
	st := loadTestState(t)

	assert.NoError(t, st.ClearIdentity())
}

func TestDeferredNav_AbsentReturnsNotFound(t *testing.T) {
	st := loadTestState(t)

	_, found, err := st.DeferredNav()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeferredNav_RoundTrip(t *testing.T) {
	st := loadTestState(t)

	want := models.NavTarget{ChatID: "c1", PeerID: "u2", DisplayName: "Bob"}
	require.NoError(t, st.SetDeferredNav(want))

	got, found, err := st.DeferredNav()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestSetDeferredNav_LastWriteWins(t *testing.T) {
	st := loadTestState(t)

	require.NoError(t, st.SetDeferredNav(models.NavTarget{ChatID: "a"}))
	require.NoError(t, st.SetDeferredNav(models.NavTarget{ChatID: "b", IsGroup: true}))

	got, found, err := st.DeferredNav()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", got.ChatID)
	assert.True(t, got.IsGroup)
}

func TestClearDeferredNav(t *testing.T) {
	st := loadTestState(t)

	require.NoError(t, st.SetDeferredNav(models.NavTarget{ChatID: "c1"}))
	require.NoError(t, st.ClearDeferredNav())

	_, found, err := st.DeferredNav()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestState_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	st, err := LoadAt(path)
	require.NoError(t, err)
	require.NoError(t, st.SetIdentity(models.Identity{ID: "u1", DisplayName: "Alice", Token: "t1"}))
	require.NoError(t, st.SetDeferredNav(models.NavTarget{ChatID: "c1"}))
	require.NoError(t, st.Close())

	st2, err := LoadAt(path)
	require.NoError(t, err)
	defer st2.Close()

	id, err := st2.Identity()
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.ID)

	target, found, err := st2.DeferredNav()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c1", target.ChatID)
}
