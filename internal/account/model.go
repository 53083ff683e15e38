package account

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the access tier assigned to an account.
type Role string

const (
	RoleStandard Role = "standard"
	RolePremium  Role = "premium"
	RoleAdmin    Role = "admin"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPendingVerification Status = "pending-verification"
	StatusActive              Status = "active"
	StatusSuspended           Status = "suspended"
	StatusClosed              Status = "closed"
)

// Account represents an identity and credential record in the accounts
// collection. Email is stored lowercase and carries a unique index.
// FailedAttemptCount and LockedUntil are mutated only through the
// credential verification path.
type Account struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Email              string             `bson:"email"`
	PasswordHash       string             `bson:"password_hash"`
	Role               Role               `bson:"role"`
	Verified           bool               `bson:"verified"`
	Status             Status             `bson:"status"`
	FailedAttemptCount int                `bson:"failed_attempt_count"`
	LockedUntil        *time.Time         `bson:"locked_until,omitempty"`
	PasswordChangedAt  time.Time          `bson:"password_changed_at"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
	LastLoginAt        *time.Time         `bson:"last_login_at,omitempty"`
}

// IsAdmin reports whether the account carries the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Locked reports whether the account lock is currently in effect.
// A LockedUntil in the past means the lock has lapsed; it is cleared
// lazily on the next verification attempt rather than by a sweep.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}
