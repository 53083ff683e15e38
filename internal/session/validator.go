package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validator is the sole authority for "is this session usable". It
// never touches storage: everything it needs is inside the token.
type Validator struct {
	signingSecret   string
	externalEnabled bool
	nowFunc         func() time.Time
}

// NewValidator creates a Validator. externalEnabled must match the
// issuer-side integration flag: a token minted without an embedded
// external credential is rejected once the flag flips on, while an
// embedded-but-unused credential is harmless when it flips off.
func NewValidator(signingSecret string, externalEnabled bool) *Validator {
	return &Validator{
		signingSecret:   signingSecret,
		externalEnabled: externalEnabled,
		nowFunc:         func() time.Time { return time.Now().UTC() },
	}
}

// Validate decodes and verifies a session token. On ErrTokenExpired the
// decoded claims are still returned so the refresh path can inspect
// them; every other failure returns nil claims.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(v.signingSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Signature verified; only the timestamp failed. Structure
			// checks still apply before the claims are handed back.
			if sErr := v.checkStructure(claims); sErr != nil {
				return nil, sErr
			}
			return claims, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if err := v.checkStructure(claims); err != nil {
		return nil, err
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(v.nowFunc()) {
		return claims, ErrTokenExpired
	}

	if v.externalEnabled && !claims.HasExternalCredential() {
		return nil, ErrMissingExternalCredential
	}

	return claims, nil
}

// checkStructure verifies the fixed claim shape: the kind
// discriminator, a subject, and an expiry must all be present.
func (v *Validator) checkStructure(claims *Claims) error {
	if claims.Kind != TokenKind {
		return ErrTokenStructureInvalid
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return ErrTokenStructureInvalid
	}
	return nil
}
