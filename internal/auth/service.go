package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/techieonvacation/stylopay-sub000/internal/account"
	"github.com/techieonvacation/stylopay-sub000/internal/metrics"
	"github.com/techieonvacation/stylopay-sub000/internal/session"
)

// Auth service errors
var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrEmailExists        = errors.New("email already exists")
	ErrPasswordMismatch   = errors.New("password and confirm_password do not match")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountClosed      = errors.New("account closed")
	ErrAccountNotFound    = errors.New("account not found")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeAccountSuspended   = "ACCOUNT_SUSPENDED"
	CodeAccountClosed      = "ACCOUNT_CLOSED"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeReauthRequired     = "REAUTHENTICATION_REQUIRED"
	CodeAuthTokenMissing   = "AUTH_TOKEN_MISSING"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// ChangePasswordRequest represents the password change payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// AccountSummary is the account view returned to clients
type AccountSummary struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsAdmin     bool       `json:"is_admin"`
	Verified    bool       `json:"verified"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// LoginResponse carries the minted session token and its expiry
type LoginResponse struct {
	Account          AccountSummary `json:"account"`
	SessionToken     string         `json:"session_token"`
	ExpiresAt        time.Time      `json:"expires_at"`
	ExternalEmbedded bool           `json:"external_embedded"`
}

// RefreshResponse carries the refresh outcome
type RefreshResponse struct {
	Refreshed        bool      `json:"refreshed"`
	SessionToken     string    `json:"session_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// StatusResponse describes the current session
type StatusResponse struct {
	Account          AccountSummary `json:"account"`
	ExpiresAt        time.Time      `json:"expires_at"`
	RemainingSeconds int64          `json:"remaining_seconds"`
}

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Service orchestrates the credential store, token issuer and
// validator behind the HTTP surface.
type Service struct {
	repo      account.Repository
	creds     *account.CredentialStore
	issuer    *session.Issuer
	validator *session.Validator
	passwords *PasswordPolicy
	logger    *slog.Logger
}

// NewService creates the auth Service
func NewService(
	repo account.Repository,
	creds *account.CredentialStore,
	issuer *session.Issuer,
	validator *session.Validator,
	passwords *PasswordPolicy,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		creds:     creds,
		issuer:    issuer,
		validator: validator,
		passwords: passwords,
		logger:    logger,
	}
}

// Login authenticates a user and mints a session token.
//
// Gate order matters: status first, then the lock check, then password
// verification. The lock check runs before Verify so a locked account
// cannot be brute-forced past the lock by timing, and the lock error
// stays distinct internally even though the handler answers
// generically.
func (s *Service) Login(ctx context.Context, req LoginRequest, clientIP string) (*LoginResponse, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	acct, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			// Unknown account: answer identically to a wrong password
			// so callers cannot enumerate accounts.
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	switch acct.Status {
	case account.StatusSuspended:
		metrics.LoginsTotal.WithLabelValues("suspended").Inc()
		return nil, ErrAccountSuspended
	case account.StatusClosed:
		metrics.LoginsTotal.WithLabelValues("closed").Inc()
		return nil, ErrAccountClosed
	}

	if s.creds.IsLocked(acct) {
		metrics.LoginsTotal.WithLabelValues("locked").Inc()
		return nil, ErrAccountLocked
	}

	if !s.creds.Verify(acct, req.Password) {
		if err := s.creds.RecordFailure(ctx, acct); err != nil {
			s.logger.Error("failed to record login failure", "account_id", acct.ID.Hex(), "error", err)
		}
		if acct.LockedUntil != nil {
			metrics.LockoutsTotal.Inc()
		}
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if err := s.creds.RecordSuccess(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLastLogin(ctx, acct.ID); err != nil {
		s.logger.Warn("failed to update last login", "account_id", acct.ID.Hex(), "error", err)
	}

	issued, err := s.issuer.Issue(ctx, acct, clientIP)
	if err != nil {
		return nil, err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()

	return &LoginResponse{
		Account:          summarize(acct),
		SessionToken:     issued.Token,
		ExpiresAt:        issued.ExpiresAt,
		ExternalEmbedded: issued.ExternalEmbedded,
	}, nil
}

// Register creates a new account. Accounts start in
// pending-verification status with the standard role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AccountSummary, []ValidationError, error) {
	var validationErrors []ValidationError

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(email) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "email",
			Message: "Invalid email format",
		})
	}

	for _, pe := range s.passwords.Validate(req.Password) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   pe.Field,
			Message: pe.Message,
		})
	}

	if req.Password != req.ConfirmPassword {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "confirm_password",
			Message: "Password and confirm_password do not match",
		})
	}

	if len(validationErrors) > 0 {
		return nil, validationErrors, nil
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, ErrEmailExists
	}

	hash, err := account.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	acct := &account.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         account.RoleStandard,
		Status:       account.StatusPendingVerification,
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrEmailAlreadyExists) {
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}

	summary := summarize(acct)
	return &summary, nil, nil
}

// Refresh exchanges a token nearing (or just past) expiry for a new one
func (s *Service) Refresh(ctx context.Context, tokenString, clientIP string) (*RefreshResponse, error) {
	result, err := s.issuer.RefreshIfNeeded(ctx, tokenString, s.validator, clientIP)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	outcome := "noop"
	if result.Refreshed {
		outcome = "refreshed"
	}
	metrics.RefreshesTotal.WithLabelValues(outcome).Inc()

	return &RefreshResponse{
		Refreshed:        result.Refreshed,
		SessionToken:     result.Token,
		ExpiresAt:        result.ExpiresAt,
		RemainingSeconds: int64(result.Remaining.Seconds()),
	}, nil
}

// Validate checks a token and returns its claims. Callers decide how
// to surface failures; the /validate-token endpoint answers 200 with a
// validity flag either way.
func (s *Service) Validate(tokenString string) (*session.Claims, error) {
	return s.validator.Validate(tokenString)
}

// Status describes the session carried by the given token
func (s *Service) Status(tokenString string) (*StatusResponse, error) {
	claims, err := s.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &StatusResponse{
		Account: AccountSummary{
			ID:       claims.Subject,
			Email:    claims.Email,
			Role:     string(claims.Role),
			IsAdmin:  claims.IsAdmin,
			Verified: claims.Verified,
			Status:   string(claims.Status),
		},
		ExpiresAt:        claims.ExpiresAt.Time,
		RemainingSeconds: int64(claims.ExpiresAt.Time.Sub(now).Seconds()),
	}, nil
}

// ChangePassword verifies the current password and replaces the hash.
// PasswordChangedAt moves forward, which invalidates every token
// issued before this instant at its next refresh.
func (s *Service) ChangePassword(ctx context.Context, accountID string, req ChangePasswordRequest) ([]ValidationError, error) {
	id, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if s.creds.IsLocked(acct) {
		return nil, ErrAccountLocked
	}
	if !s.creds.Verify(acct, req.CurrentPassword) {
		if err := s.creds.RecordFailure(ctx, acct); err != nil {
			s.logger.Error("failed to record verification failure", "account_id", acct.ID.Hex(), "error", err)
		}
		return nil, ErrInvalidCredentials
	}

	var validationErrors []ValidationError
	for _, pe := range s.passwords.Validate(req.NewPassword) {
		validationErrors = append(validationErrors, ValidationError{Field: pe.Field, Message: pe.Message})
	}
	if len(validationErrors) > 0 {
		return validationErrors, nil
	}

	hash, err := account.HashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if err := s.creds.RecordSuccess(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, time.Now().UTC()); err != nil {
		return nil, err
	}

	s.logger.Info("password changed", "account_id", acct.ID.Hex())
	return nil, nil
}

// summarize builds the client-facing account view
func summarize(acct *account.Account) AccountSummary {
	return AccountSummary{
		ID:          acct.ID.Hex(),
		Email:       acct.Email,
		Role:        string(acct.Role),
		IsAdmin:     acct.IsAdmin(),
		Verified:    acct.Verified,
		Status:      string(acct.Status),
		CreatedAt:   acct.CreatedAt,
		LastLoginAt: acct.LastLoginAt,
	}
}

// isValidEmail checks if the email format is valid
func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
