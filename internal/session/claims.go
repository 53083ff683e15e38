package session

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/techieonvacation/stylopay-sub000/internal/account"
)

// TokenKind is the fixed discriminator stamped into every session
// token. Validation rejects tokens that do not carry it, which defends
// against tokens minted by an unrelated signer in the same secret
// space.
const TokenKind = "stylopay-session"

// Claims is the fixed claim set encoded in a session token. The
// subject identity lives in RegisteredClaims.Subject (the account ID);
// the remaining fields are a snapshot of the account taken at issuance
// time and not re-read from storage until the next refresh.
type Claims struct {
	Email    string         `json:"email"`
	Role     account.Role   `json:"role"`
	IsAdmin  bool           `json:"is_admin"`
	Verified bool           `json:"verified"`
	Status   account.Status `json:"status"`

	// ExternalCredential is the embedded third-party token, present
	// only when the external integration was enabled at issuance.
	ExternalCredential string           `json:"external_credential,omitempty"`
	ExternalExpiresAt  *jwt.NumericDate `json:"external_expires_at,omitempty"`

	// IssuingIP is informational only and never enforced.
	IssuingIP string `json:"issuing_ip,omitempty"`

	Kind string `json:"kind"`

	jwt.RegisteredClaims
}

// AccountID returns the subject account ID
func (c *Claims) AccountID() string {
	return c.Subject
}

// HasExternalCredential reports whether an external credential is embedded
func (c *Claims) HasExternalCredential() bool {
	return c.ExternalCredential != ""
}
