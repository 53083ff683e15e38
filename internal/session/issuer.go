package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/techieonvacation/stylopay-sub000/internal/account"
	"github.com/techieonvacation/stylopay-sub000/internal/broker"
)

// Default token policy
const (
	// DefaultTokenValidity is the fixed session token lifetime
	DefaultTokenValidity = 30 * time.Minute
	// DefaultRefreshThreshold is how close to expiry a token must be
	// before a refresh mints a replacement
	DefaultRefreshThreshold = 5 * time.Minute
	// RefreshGrace is how long past expiry a signature-valid token may
	// still be exchanged at the refresh endpoint
	RefreshGrace = 5 * time.Minute
)

// IssuerConfig holds token issuance configuration
type IssuerConfig struct {
	SigningSecret    string
	TokenValidity    time.Duration
	RefreshThreshold time.Duration
	Issuer           string
}

// Issuer mints signed session tokens. It is the sole mint authority;
// refresh always produces a new token, never patches an existing one.
type Issuer struct {
	cfg     IssuerConfig
	broker  broker.Broker
	repo    account.Repository
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewIssuer creates an Issuer. The broker may be broker.Disabled{} when
// the external integration is switched off.
func NewIssuer(cfg IssuerConfig, b broker.Broker, repo account.Repository, logger *slog.Logger) *Issuer {
	if cfg.TokenValidity == 0 {
		cfg.TokenValidity = DefaultTokenValidity
	}
	if cfg.RefreshThreshold == 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		cfg:     cfg,
		broker:  b,
		repo:    repo,
		logger:  logger,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// IssuedToken is the result of minting a session token
type IssuedToken struct {
	Token             string
	ExpiresAt         time.Time
	ExternalEmbedded  bool
	ExternalExpiresAt *time.Time
}

// Issue mints a session token for the account. When the external
// integration is enabled the broker is consulted first; a broker
// failure is logged and issuance proceeds without an embedded
// credential, since local session auth must not hard-fail because a
// third party is unreachable.
func (i *Issuer) Issue(ctx context.Context, acct *account.Account, clientIP string) (*IssuedToken, error) {
	now := i.nowFunc()
	expiresAt := now.Add(i.cfg.TokenValidity)

	claims := Claims{
		Email:     acct.Email,
		Role:      acct.Role,
		IsAdmin:   acct.IsAdmin(),
		Verified:  acct.Verified,
		Status:    acct.Status,
		IssuingIP: clientIP,
		Kind:      TokenKind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.cfg.Issuer,
			Subject:   acct.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	issued := &IssuedToken{ExpiresAt: expiresAt}

	if i.broker.Enabled() {
		cred, err := i.broker.Obtain(ctx)
		if err != nil {
			i.logger.Warn("external credential unavailable, issuing local-only session",
				"account_id", acct.ID.Hex(),
				"error", err,
			)
		} else {
			claims.ExternalCredential = cred.Token
			claims.ExternalExpiresAt = jwt.NewNumericDate(cred.ExpiresAt)
			issued.ExternalEmbedded = true
			issued.ExternalExpiresAt = &cred.ExpiresAt
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.SigningSecret))
	if err != nil {
		return nil, err
	}

	issued.Token = signed
	return issued, nil
}

// RefreshResult is the outcome of RefreshIfNeeded
type RefreshResult struct {
	// Refreshed is false when the presented token still has enough
	// life left; Token/ExpiresAt then echo the original.
	Refreshed bool
	Token     string
	ExpiresAt time.Time
	Remaining time.Duration
	Claims    *Claims
}

// RefreshIfNeeded validates the presented token and, when it is inside
// the refresh window, mints a replacement with a fresh account
// snapshot. Tokens expired less than RefreshGrace ago may still
// refresh provided the signature verifies; anything older, or any
// token whose subject no longer maps to an active account, yields
// ErrReauthenticationRequired.
func (i *Issuer) RefreshIfNeeded(ctx context.Context, tokenString string, validator *Validator, clientIP string) (*RefreshResult, error) {
	now := i.nowFunc()

	claims, err := validator.Validate(tokenString)
	if err != nil {
		if claims == nil || !isRefreshable(err) {
			return nil, ErrReauthenticationRequired
		}
		// Expired but signature-valid: allow within the grace window.
		if now.Sub(claims.ExpiresAt.Time) > RefreshGrace {
			return nil, ErrReauthenticationRequired
		}
	}

	remaining := claims.ExpiresAt.Time.Sub(now)
	if remaining >= i.cfg.RefreshThreshold {
		return &RefreshResult{
			Refreshed: false,
			Token:     tokenString,
			ExpiresAt: claims.ExpiresAt.Time,
			Remaining: remaining,
			Claims:    claims,
		}, nil
	}

	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, ErrReauthenticationRequired
	}

	acct, err := i.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrReauthenticationRequired
	}

	// Fresh status snapshot: a suspension or closure that happened
	// since issuance is enforced here.
	if acct.Status != account.StatusActive && acct.Status != account.StatusPendingVerification {
		return nil, ErrReauthenticationRequired
	}

	// A password change invalidates every token issued before it.
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(acct.PasswordChangedAt) {
		return nil, ErrReauthenticationRequired
	}

	issued, err := i.Issue(ctx, acct, clientIP)
	if err != nil {
		return nil, err
	}

	newClaims, err := validator.Validate(issued.Token)
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		Refreshed: true,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Remaining: issued.ExpiresAt.Sub(now),
		Claims:    newClaims,
	}, nil
}

// isRefreshable reports whether a validation error still permits a
// refresh attempt. Only plain expiry qualifies; structural or
// signature failures never do.
func isRefreshable(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}
