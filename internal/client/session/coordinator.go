package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CoordinatorState is the refresh coordinator's state
type CoordinatorState int

const (
	// StateIdle means no session is being watched
	StateIdle CoordinatorState = iota
	// StateScheduled means a refresh timer is armed
	StateScheduled
	// StateRefreshing means a refresh call is in flight
	StateRefreshing
	// StateExpired means a refresh failed and the session is gone
	StateExpired
)

func (s CoordinatorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// RefreshFunc exchanges the current token for a new one. It returns
// the replacement token and its expiry; an error is fatal to the
// session.
type RefreshFunc func(ctx context.Context, token string) (string, time.Time, error)

// Default coordinator policy
const (
	// DefaultRefreshWindow is how long before expiry the refresh fires
	DefaultRefreshWindow = 5 * time.Minute
	// DefaultLivenessInterval is how often the independent liveness
	// check runs
	DefaultLivenessInterval = time.Minute
)

// CoordinatorConfig holds refresh coordinator configuration
type CoordinatorConfig struct {
	RefreshWindow    time.Duration
	LivenessInterval time.Duration
	// OnExpired runs after the session has been invalidated locally,
	// typically to force a redirect to re-authentication.
	OnExpired func()
}

// Coordinator watches one session's expiry and proactively triggers
// reissuance before it lapses. A failed refresh is fatal: the session
// is invalidated locally and OnExpired fires; nothing is retried
// silently.
type Coordinator struct {
	mu sync.Mutex

	state     CoordinatorState
	token     string
	expiresAt time.Time
	sessState *State

	store   *StateStore
	refresh RefreshFunc
	clock   Clock
	sched   Scheduler
	logger  *slog.Logger
	cfg     CoordinatorConfig

	cancelRefresh  CancelFunc
	cancelLiveness CancelFunc
	// generation guards against superseded timers: a callback armed
	// for generation N is a no-op once the coordinator moved to N+1.
	generation uint64
}

// NewCoordinator creates a Coordinator. clock and sched default to the
// real implementations when nil.
func NewCoordinator(store *StateStore, refresh RefreshFunc, clock Clock, sched Scheduler, logger *slog.Logger, cfg CoordinatorConfig) *Coordinator {
	if clock == nil {
		clock = SystemClock{}
	}
	if sched == nil {
		sched = TimerScheduler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshWindow == 0 {
		cfg.RefreshWindow = DefaultRefreshWindow
	}
	if cfg.LivenessInterval == 0 {
		cfg.LivenessInterval = DefaultLivenessInterval
	}
	return &Coordinator{
		state:   StateIdle,
		store:   store,
		refresh: refresh,
		clock:   clock,
		sched:   sched,
		logger:  logger,
		cfg:     cfg,
	}
}

// State returns the coordinator's current state
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins watching a session. The refresh timer is armed for
// expiry minus the refresh window, clamped to zero: a token already
// inside the window refreshes immediately rather than waiting.
func (c *Coordinator) Start(token string, expiresAt time.Time, sessState *State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimersLocked()
	c.generation++

	c.token = token
	c.expiresAt = expiresAt
	c.sessState = sessState
	c.state = StateScheduled

	c.armRefreshLocked()
	c.armLivenessLocked()
}

// Stop tears the coordinator down. Every pending timer is cancelled
// before state is cleared, so a delayed callback can never act on a
// superseded session.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimersLocked()
	c.generation++
	c.token = ""
	c.sessState = nil
	c.state = StateIdle
}

// armRefreshLocked arms the single delayed refresh task. Caller holds mu.
func (c *Coordinator) armRefreshLocked() {
	delay := c.expiresAt.Sub(c.clock.Now()) - c.cfg.RefreshWindow
	if delay < 0 {
		delay = 0
	}

	gen := c.generation
	c.cancelRefresh = c.sched.Schedule(delay, func() {
		c.fireRefresh(gen)
	})
}

// armLivenessLocked arms the next liveness check. Caller holds mu.
func (c *Coordinator) armLivenessLocked() {
	gen := c.generation
	c.cancelLiveness = c.sched.Schedule(c.cfg.LivenessInterval, func() {
		c.fireLiveness(gen)
	})
}

// cancelTimersLocked cancels both pending tasks. Caller holds mu.
func (c *Coordinator) cancelTimersLocked() {
	if c.cancelRefresh != nil {
		c.cancelRefresh()
		c.cancelRefresh = nil
	}
	if c.cancelLiveness != nil {
		c.cancelLiveness()
		c.cancelLiveness = nil
	}
}

// fireRefresh runs the scheduled refresh. A second refresh request for
// the same session while one is in flight is a no-op.
func (c *Coordinator) fireRefresh(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state == StateIdle || c.state == StateExpired {
		c.mu.Unlock()
		return
	}
	if c.state == StateRefreshing {
		c.mu.Unlock()
		return
	}
	c.state = StateRefreshing
	token := c.token
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	newToken, newExpiry, err := c.refresh(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		// Session was superseded while the call was in flight.
		return
	}

	if err != nil {
		c.logger.Warn("session refresh failed, forcing logout", "error", err)
		c.expireLocked()
		return
	}

	c.token = newToken
	c.expiresAt = newExpiry
	if c.sessState != nil {
		c.sessState.ExpiresAt = newExpiry
		c.sessState.SessionValid = true
		if err := c.store.Save(newToken, c.sessState); err != nil {
			c.logger.Warn("failed to persist refreshed session", "error", err)
		}
	}
	c.state = StateScheduled
	c.armRefreshLocked()
}

// fireLiveness verifies the stored token still exists and the expiry
// has not silently passed, catching timers suspended by device sleep.
func (c *Coordinator) fireLiveness(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state == StateIdle || c.state == StateExpired {
		return
	}

	// Mid-refresh the expiry on record is the old token's; a tick landing
	// here must not kill a refresh that is about to succeed. Re-arm and
	// let the next tick see the settled state.
	if c.state == StateRefreshing {
		c.armLivenessLocked()
		return
	}

	_, token, err := c.store.Restore()
	if err != nil || token == "" {
		c.logger.Warn("stored session vanished, forcing logout")
		c.expireLocked()
		return
	}

	if !c.expiresAt.After(c.clock.Now()) {
		c.logger.Warn("session expired while timer was suspended, forcing logout")
		c.expireLocked()
		return
	}

	c.armLivenessLocked()
}

// expireLocked invalidates the session locally: timers cancelled,
// storage cleared, OnExpired fired. The coordinator stays in Expired
// until Stop (the forced-logout path) or a fresh Start moves it on.
// Caller holds mu.
func (c *Coordinator) expireLocked() {
	c.cancelTimersLocked()
	c.generation++
	c.state = StateExpired
	c.token = ""
	c.sessState = nil

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear session storage", "error", err)
	}

	if c.cfg.OnExpired != nil {
		// Run outside the lock; the callback may call back into the
		// coordinator.
		go c.cfg.OnExpired()
	}
}
