package store

import (
	"testing"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/stretchr/testify/require"
)

func TestNextRunAtDailyAdvancesOneDay(t *testing.T) {
	from := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	sc := DatabaseBackupSchedule{ScheduleType: enum.BackupScheduleDaily, ScheduleHour: 2}
	next := nextRunAt(sc, from)
	require.Equal(t, time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRunAtWeeklyAlignsToScheduleDay(t *testing.T) {
	// 2026-07-31 is a Friday (5); schedule wants Monday (1).
	from := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	monday := int(time.Monday)
	sc := DatabaseBackupSchedule{ScheduleType: enum.BackupScheduleWeekly, ScheduleHour: 2, ScheduleDay: &monday}
	next := nextRunAt(sc, from)
	require.Equal(t, time.Monday, next.Weekday())
	require.Equal(t, time.Date(2026, 8, 3, 2, 0, 0, 0, time.UTC), next)
	require.True(t, next.After(from))
}

func TestNextRunAtWeeklyWrapsToNextWeekWhenDayAlreadyPassed(t *testing.T) {
	// 2026-07-31 is a Friday; schedule wants Wednesday, already passed this week.
	from := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	wednesday := int(time.Wednesday)
	sc := DatabaseBackupSchedule{ScheduleType: enum.BackupScheduleWeekly, ScheduleHour: 2, ScheduleDay: &wednesday}
	next := nextRunAt(sc, from)
	require.Equal(t, time.Wednesday, next.Weekday())
	require.Equal(t, time.Date(2026, 8, 5, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRunAtMonthlyAlignsToScheduleDay(t *testing.T) {
	from := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	day := 15
	sc := DatabaseBackupSchedule{ScheduleType: enum.BackupScheduleMonthly, ScheduleHour: 2, ScheduleDay: &day}
	next := nextRunAt(sc, from)
	require.Equal(t, time.Date(2026, 8, 15, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRunAtMonthlyClampsToShortMonth(t *testing.T) {
	from := time.Date(2026, 1, 31, 2, 0, 0, 0, time.UTC)
	day := 31
	sc := DatabaseBackupSchedule{ScheduleType: enum.BackupScheduleMonthly, ScheduleHour: 2, ScheduleDay: &day}
	next := nextRunAt(sc, from)
	// February 2026 has 28 days; the 31st clamps down to the last day.
	require.Equal(t, time.Date(2026, 2, 28, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRunAtWeeklyFallsBackToFlatOffsetWhenDayUnset(t *testing.T) {
	from := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	sc := DatabaseBackupSchedule{ScheduleType: enum.BackupScheduleWeekly, ScheduleHour: 2}
	next := nextRunAt(sc, from)
	require.Equal(t, time.Date(2026, 8, 7, 2, 0, 0, 0, time.UTC), next)
}
