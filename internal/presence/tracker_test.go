package presence

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestTracker() *Tracker {
	t := NewTracker(slog.Default())
	t.Advance(1)

	return t
}

func TestApplySnapshot_ReplacesSet(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyJoin(1, "u1")
	tr.ApplyJoin(1, "u2")

	tr.ApplySnapshot(1, []string{"u3", "u4"})

	assert.False(t, tr.IsOnline("u1"))
	assert.False(t, tr.IsOnline("u2"))
	assert.True(t, tr.IsOnline("u3"))
	assert.True(t, tr.IsOnline("u4"))
	assert.Len(t, tr.ListOnline(), 2)
}

func TestApplyJoin_Idempotent(t *testing.T) {
	tr := newTestTracker()

	tr.ApplyJoin(1, "u1")
	tr.ApplyJoin(1, "u1")
	tr.ApplyJoin(1, "u1")

	assert.True(t, tr.IsOnline("u1"))
	assert.Len(t, tr.ListOnline(), 1)
}

func TestApplyLeave_Idempotent(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyJoin(1, "u1")

	tr.ApplyLeave(1, "u1")
	tr.ApplyLeave(1, "u1")
	tr.ApplyLeave(1, "never-joined")

	assert.False(t, tr.IsOnline("u1"))
	assert.Empty(t, tr.ListOnline())
}

func TestDuplicateDeltas_ConvergeToLastNonStale(t *testing.T) {
	tr := newTestTracker()

	// Any interleaving of duplicate join/leave deltas converges to the
	// state of the last one applied.
	tr.ApplyJoin(1, "u1")
	tr.ApplyLeave(1, "u1")
	tr.ApplyJoin(1, "u1")
	tr.ApplyJoin(1, "u1")
	tr.ApplyLeave(1, "u1")

	assert.False(t, tr.IsOnline("u1"))
}

func TestStaleGeneration_Dropped(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyJoin(1, "u1")

	tr.Advance(2)
	tr.ApplySnapshot(2, []string{"u2"})

	// Events from the superseded generation must not mutate the set.
	tr.ApplyJoin(1, "u3")
	tr.ApplyLeave(1, "u2")
	tr.ApplySnapshot(1, []string{"u9"})

	assert.True(t, tr.IsOnline("u2"))
	assert.False(t, tr.IsOnline("u3"))
	assert.False(t, tr.IsOnline("u9"))
	assert.Len(t, tr.ListOnline(), 1)
}

func TestAdvance_KeepsSetUntilSnapshot(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyJoin(1, "u1")

	tr.Advance(2)

	// The last known state remains visible during reconnect.
	assert.True(t, tr.IsOnline("u1"))

	tr.ApplySnapshot(2, nil)
	assert.False(t, tr.IsOnline("u1"))
}

func TestClear_EmptiesSet(t *testing.T) {
	tr := newTestTracker()
	tr.ApplyJoin(1, "u1")
	tr.ApplyJoin(1, "u2")

	tr.Clear()

	assert.Empty(t, tr.ListOnline())
}

func TestSubscribe_NotifiedOnChange(t *testing.T) {
	tr := newTestTracker()

	calls := 0
	cancel := tr.Subscribe(func() { calls++ })

	tr.ApplyJoin(1, "u1")
	assert.Equal(t, 1, calls)

	// No-op mutations do not notify.
	tr.ApplyJoin(1, "u1")
	assert.Equal(t, 1, calls)

	tr.ApplyLeave(1, "u1")
	assert.Equal(t, 2, calls)

	cancel()
	tr.ApplyJoin(1, "u2")
	assert.Equal(t, 2, calls)
}

func TestSubscriber_MayQueryTracker(t *testing.T) {
	tr := newTestTracker()

	var seen []string

	tr.Subscribe(func() {
		seen = tr.ListOnline()
	})

	tr.ApplyJoin(1, "u1")
	assert.Equal(t, []string{"u1"}, seen)
}
