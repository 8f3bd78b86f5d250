package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartStateShouldRestart(t *testing.T) {
	s := NewRestartState()
	now := time.Now()

	assert.True(t, s.ShouldRestart(now), "a never-restarted container is always due")

	s.RecordRestart(now, 5*time.Second, 300*time.Second)
	assert.False(t, s.ShouldRestart(now), "just restarted, backoff not yet elapsed")
	assert.True(t, s.ShouldRestart(now.Add(5*time.Second)))
}

func TestRestartStateExponentialBackoff(t *testing.T) {
	s := NewRestartState()
	now := time.Now()
	initial := 5 * time.Second
	max := 300 * time.Second

	expected := []time.Duration{5, 10, 20, 40, 80, 160, 300, 300}
	for _, want := range expected {
		s.RecordRestart(now, initial, max)
		assert.Equal(t, want*time.Second, s.CurrentBackoff)
		now = now.Add(s.CurrentBackoff)
	}
}

func TestRestartStateReset(t *testing.T) {
	s := NewRestartState()
	now := time.Now()
	s.RecordRestart(now, 5*time.Second, 300*time.Second)
	s.RecordRestart(now.Add(5*time.Second), 5*time.Second, 300*time.Second)
	assert.Equal(t, 2, s.RestartCount)

	s.Reset()
	assert.Equal(t, 0, s.RestartCount)
	assert.Equal(t, time.Duration(0), s.CurrentBackoff)
	assert.False(t, s.Failed)
	assert.True(t, s.ShouldRestart(now))
}

func TestRestartStateMarkFailed(t *testing.T) {
	s := NewRestartState()
	s.MarkFailed()
	assert.True(t, s.Failed)
	assert.False(t, s.ShouldRestart(time.Now()))
}

func TestRestartStateExceededAttempts(t *testing.T) {
	s := NewRestartState()
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.RecordRestart(now, time.Second, time.Minute)
		now = now.Add(time.Hour)
	}
	assert.True(t, s.ExceededAttempts(5))
	assert.False(t, s.ExceededAttempts(6))
}

func TestRestartStateObserveRunningResetsAfterStableDuration(t *testing.T) {
	s := NewRestartState()
	now := time.Now()
	s.RecordRestart(now, 5*time.Second, 300*time.Second)
	assert.Equal(t, 1, s.RestartCount)

	s.ObserveRunning(now, time.Minute)
	assert.Equal(t, 1, s.RestartCount, "first observation just sets the clock")

	s.ObserveRunning(now.Add(2*time.Minute), time.Minute)
	assert.Equal(t, 0, s.RestartCount, "stable beyond the window resets the counter")
}

func TestRestartStateObserveDownClearsStableClock(t *testing.T) {
	s := NewRestartState()
	now := time.Now()
	s.ObserveRunning(now, time.Minute)
	s.ObserveDown()
	s.ObserveRunning(now.Add(2*time.Minute), time.Minute)
	assert.Equal(t, 0, s.RestartCount, "clock restarted, no reset should have fired from stale counters")
}
