package account

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Common errors
var (
	ErrNotFound           = errors.New("account not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// Repository defines the interface for account data access.
//
// IncrementFailedAttempts, SetLock and ResetFailedAttempts are the
// atomic primitives backing the credential store: the increment is an
// unconditional $inc so that concurrent failures against the same
// account never under-count.
type Repository interface {
	Create(ctx context.Context, acct *Account) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	// IncrementFailedAttempts atomically increments the failure counter
	// and returns the post-increment count.
	IncrementFailedAttempts(ctx context.Context, id primitive.ObjectID) (int, error)
	// SetLock stamps LockedUntil on the account.
	SetLock(ctx context.Context, id primitive.ObjectID, until time.Time) error
	// ResetFailedAttempts sets the counter to the given value and clears
	// LockedUntil. Used both on success (count 0) and when an expired
	// lock is treated as a fresh failure window (count 1).
	ResetFailedAttempts(ctx context.Context, id primitive.ObjectID, count int) error

	UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string, changedAt time.Time) error
}
