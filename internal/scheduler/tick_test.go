package scheduler

import (
	"testing"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronTicksDefaultSpecs(t *testing.T) {
	loc := time.UTC

	reminder, err := NewCronTicks(config.DefaultReminderSpec, loc)
	require.NoError(t, err)
	from := time.Date(2026, 6, 1, 10, 2, 30, 0, loc)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 5, 0, 0, loc), reminder.Next(from))

	overdue, err := NewCronTicks(config.DefaultOverdueSpec, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 2, 9, 0, 0, 0, loc), overdue.Next(time.Date(2026, 6, 1, 9, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, loc), overdue.Next(time.Date(2026, 6, 1, 8, 59, 59, 0, loc)))
}

func TestCronTicksRejectsBadSpec(t *testing.T) {
	_, err := NewCronTicks("every five minutes", time.UTC)
	assert.Error(t, err)
}

func TestCronTicksDropsWhenBusy(t *testing.T) {
	ticks, err := NewCronTicks(config.DefaultReminderSpec, time.UTC)
	require.NoError(t, err)

	ticks.fire()
	ticks.fire()
	assert.Len(t, ticks.ch, 1)
}
