package diskmonitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatPathCurrentDir(t *testing.T) {
	stats, err := statPath(".")
	require.NoError(t, err)
	require.Greater(t, stats.TotalBytes, uint64(0))
	require.LessOrEqual(t, stats.FreeBytes, stats.TotalBytes)
	require.GreaterOrEqual(t, stats.UsagePercent, 0.0)
	require.LessOrEqual(t, stats.UsagePercent, 100.0)
}

func TestCheckDoesNotCrossWhenThresholdsAreUnreachable(t *testing.T) {
	m := New(".", 1000, 2000)
	ctx := context.Background()

	_, err := m.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(0), m.lastThreshold.Load(), "usage never reaches an unreachable threshold")
}

func TestCheckRecordsNoTransitionWhenThresholdsAreZero(t *testing.T) {
	m := New(".", 0, 0)
	ctx := context.Background()

	_, err := m.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(0), m.lastThreshold.Load())

	// A second check at the same level does not re-log (current == last).
	_, err = m.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(0), m.lastThreshold.Load())
}
