package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRejectsOverlap(t *testing.T) {
	g := New()

	release, err := g.Acquire("reminder_tick")
	require.NoError(t, err)
	assert.True(t, g.Running("reminder_tick"))

	_, err = g.Acquire("reminder_tick")
	assert.ErrorIs(t, err, ErrJobRunning)

	other, err := g.Acquire("overdue_digest")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, g.Running("reminder_tick"))

	again, err := g.Acquire("reminder_tick")
	require.NoError(t, err)
	again()
}
