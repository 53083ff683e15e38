package session

import "time"

// Clock abstracts time.Now so tests can simulate time
type Clock interface {
	Now() time.Time
}

// SystemClock is the real Clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// CancelFunc cancels a scheduled task. Safe to call more than once.
type CancelFunc func()

// Scheduler runs a function once after a delay. It is the single
// cancellable-delayed-task primitive the coordinator builds on, so
// tests can drive it manually without real waiting.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}

// TimerScheduler is the real Scheduler backed by time.AfterFunc
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	if delay < 0 {
		delay = 0
	}
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}
