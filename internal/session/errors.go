package session

import "errors"

// Token error taxonomy. Callers branch on these to decide between a
// refresh attempt (expired) and a forced re-login (everything else).
var (
	// ErrTokenInvalid means the token is malformed or its signature
	// does not verify.
	ErrTokenInvalid = errors.New("session token invalid")
	// ErrTokenExpired means the token verified but is past its expiry.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenStructureInvalid means the token verified but its kind
	// discriminator is missing or wrong, i.e. it was minted by an
	// unrelated issuer sharing the same secret space.
	ErrTokenStructureInvalid = errors.New("session token structure invalid")
	// ErrMissingExternalCredential means the external integration is
	// enabled but the token carries no embedded external credential.
	ErrMissingExternalCredential = errors.New("session token missing external credential")
	// ErrReauthenticationRequired means the token cannot be refreshed;
	// the subject must log in again.
	ErrReauthenticationRequired = errors.New("re-authentication required")
)
