package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunLaterToday(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	now := time.Date(2026, 8, 27, 10, 30, 0, 0, loc)
	next := nextRun(now, 23, loc)
	assert.Equal(t, time.Date(2026, 8, 27, 23, 0, 0, 0, loc), next)
}

func TestNextRunRollsToTomorrow(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 8, 27, 10, 30, 0, 0, loc)
	next := nextRun(now, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, loc), next)

	// exactly at the boundary schedules the next day, not an immediate rerun
	now = time.Date(2026, 8, 27, 0, 0, 0, 0, loc)
	next = nextRun(now, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, loc), next)
}

func TestNextRunCrossesTimezones(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	// 17:00 UTC is 01:00 next day in Shanghai
	now := time.Date(2026, 8, 27, 17, 0, 0, 0, time.UTC)
	next := nextRun(now, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, loc), next)
}
