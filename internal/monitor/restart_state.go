// Package monitor implements the container monitor (spec.md §4.3): a
// background loop that reconciles each running App/ManagedDatabase/Service's
// declared status against the actual state of its backing container,
// restarting crashed containers with exponential backoff and flipping
// declared state to failed/stopped once restart attempts are exhausted.
package monitor

import "time"

// RestartState is the in-memory, per-container bookkeeping the monitor uses
// to decide whether a crashed container is due for another restart attempt.
// It lives only in process memory — a process restart resets every
// container's backoff clock to zero, matching the original implementation.
type RestartState struct {
	RestartCount   int
	LastRestart    time.Time
	CurrentBackoff time.Duration
	Failed         bool
	lastSeenUp     time.Time
}

// NewRestartState returns a fresh, not-yet-restarted state.
func NewRestartState() *RestartState {
	return &RestartState{}
}

// ShouldRestart reports whether enough time has elapsed since the last
// restart attempt for another one to be due. A container already marked
// Failed is never retried automatically.
func (s *RestartState) ShouldRestart(now time.Time) bool {
	if s.Failed {
		return false
	}
	if s.RestartCount == 0 {
		return true
	}
	return now.Sub(s.LastRestart) >= s.CurrentBackoff
}

// RecordRestart increments the attempt counter and doubles the backoff
// (seeding it at initialBackoff on the first attempt), capped at
// maxBackoff. This reproduces the 5s,10s,20s,40s,80s,160s,300s,300s,...
// sequence the restart logic was ported from.
func (s *RestartState) RecordRestart(now time.Time, initialBackoff, maxBackoff time.Duration) {
	s.RestartCount++
	s.LastRestart = now
	if s.RestartCount == 1 {
		s.CurrentBackoff = initialBackoff
		return
	}
	s.CurrentBackoff *= 2
	if s.CurrentBackoff > maxBackoff {
		s.CurrentBackoff = maxBackoff
	}
}

// MarkFailed flags the container as no longer eligible for automatic
// restart, once RestartCount has exceeded the configured attempt budget.
func (s *RestartState) MarkFailed() {
	s.Failed = true
}

// ExceededAttempts reports whether the restart budget has been spent.
func (s *RestartState) ExceededAttempts(maxAttempts int) bool {
	return s.RestartCount >= maxAttempts
}

// ObserveRunning records that the container was seen running at `now`, and
// resets the restart state once it has stayed up for at least
// stableDuration — a container that crash-loops every few seconds should
// keep climbing its backoff, but one that runs cleanly for an hour earns a
// clean slate.
func (s *RestartState) ObserveRunning(now time.Time, stableDuration time.Duration) {
	if s.lastSeenUp.IsZero() {
		s.lastSeenUp = now
		return
	}
	if s.RestartCount > 0 && now.Sub(s.lastSeenUp) >= stableDuration {
		s.Reset()
	}
}

// ObserveDown clears the "seen running" clock so a subsequent crash is
// measured from scratch.
func (s *RestartState) ObserveDown() {
	s.lastSeenUp = time.Time{}
}

// Reset clears all restart bookkeeping, as if the container had never
// crashed.
func (s *RestartState) Reset() {
	s.RestartCount = 0
	s.LastRestart = time.Time{}
	s.CurrentBackoff = 0
	s.Failed = false
	s.lastSeenUp = time.Time{}
}
