package account

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Brute force protection constants
const (
	// MaxFailedAttempts is the failure count that triggers a lock
	MaxFailedAttempts = 5
	// LockDuration is how long an account stays locked after too many failures
	LockDuration = 2 * time.Hour
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// CredentialStore verifies a presented password against the stored hash
// and enforces brute-force lockout for one account. It is the only
// place the failure/success counters change; every mutation is
// persisted through the repository.
type CredentialStore struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewCredentialStore creates a CredentialStore on the given repository
func NewCredentialStore(repo Repository, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Verify compares a plaintext password against the account's stored
// bcrypt hash. Returns false on mismatch, never an error: bcrypt's
// comparison is constant-time for a given hash.
func (s *CredentialStore) Verify(acct *Account, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(plaintext)) == nil
}

// IsLocked reports whether the account's lockout is currently active
func (s *CredentialStore) IsLocked(acct *Account) bool {
	return acct.Locked(s.now())
}

// RecordFailure registers a failed verification attempt.
//
// If a previous lock has already lapsed, the counter restarts at 1 and
// the lock is cleared: the stale window does not count against the
// fresh one. Otherwise the counter is incremented atomically; reaching
// MaxFailedAttempts on an unlocked account sets LockedUntil.
func (s *CredentialStore) RecordFailure(ctx context.Context, acct *Account) error {
	now := s.now()

	if acct.LockedUntil != nil && !acct.LockedUntil.After(now) {
		// Lapsed lock: fresh window, this failure is attempt #1.
		if err := s.repo.ResetFailedAttempts(ctx, acct.ID, 1); err != nil {
			return err
		}
		acct.FailedAttemptCount = 1
		acct.LockedUntil = nil
		return nil
	}

	count, err := s.repo.IncrementFailedAttempts(ctx, acct.ID)
	if err != nil {
		return err
	}
	acct.FailedAttemptCount = count

	if count >= MaxFailedAttempts && !acct.Locked(now) {
		until := now.Add(LockDuration)
		if err := s.repo.SetLock(ctx, acct.ID, until); err != nil {
			return err
		}
		acct.LockedUntil = &until
		s.logger.Warn("account locked after repeated failures",
			"account_id", acct.ID.Hex(),
			"failed_attempts", count,
			"locked_until", until,
		)
	}

	return nil
}

// RecordSuccess clears the failure counter and any lock unconditionally
func (s *CredentialStore) RecordSuccess(ctx context.Context, acct *Account) error {
	if err := s.repo.ResetFailedAttempts(ctx, acct.ID, 0); err != nil {
		return err
	}
	acct.FailedAttemptCount = 0
	acct.LockedUntil = nil
	return nil
}

// HashPassword creates a bcrypt hash with the fixed cost factor
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
