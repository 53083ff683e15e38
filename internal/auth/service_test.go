package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/techieonvacation/stylopay-sub000/internal/account"
	"github.com/techieonvacation/stylopay-sub000/internal/broker"
	"github.com/techieonvacation/stylopay-sub000/internal/session"
)

const testSigningSecret = "auth-service-test-secret"

// mockAccountRepo implements account.Repository in memory
type mockAccountRepo struct {
	accounts map[string]*account.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[string]*account.Account)}
}

func (m *mockAccountRepo) Create(ctx context.Context, acct *account.Account) error {
	email := strings.ToLower(acct.Email)
	for _, a := range m.accounts {
		if a.Email == email {
			return account.ErrEmailAlreadyExists
		}
	}
	if acct.ID.IsZero() {
		acct.ID = primitive.NewObjectID()
	}
	acct.Email = email
	acct.CreatedAt = time.Now().UTC()
	acct.UpdatedAt = acct.CreatedAt
	m.accounts[acct.ID.Hex()] = acct
	return nil
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*account.Account, error) {
	if a, ok := m.accounts[id.Hex()]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, account.ErrNotFound
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	email = strings.ToLower(email)
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *mockAccountRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockAccountRepo) IncrementFailedAttempts(ctx context.Context, id primitive.ObjectID) (int, error) {
	a, ok := m.accounts[id.Hex()]
	if !ok {
		return 0, account.ErrNotFound
	}
	a.FailedAttemptCount++
	return a.FailedAttemptCount, nil
}

func (m *mockAccountRepo) SetLock(ctx context.Context, id primitive.ObjectID, until time.Time) error {
	a, ok := m.accounts[id.Hex()]
	if !ok {
		return account.ErrNotFound
	}
	a.LockedUntil = &until
	return nil
}

func (m *mockAccountRepo) ResetFailedAttempts(ctx context.Context, id primitive.ObjectID, count int) error {
	a, ok := m.accounts[id.Hex()]
	if !ok {
		return account.ErrNotFound
	}
	a.FailedAttemptCount = count
	a.LockedUntil = nil
	return nil
}

func (m *mockAccountRepo) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	a, ok := m.accounts[id.Hex()]
	if !ok {
		return account.ErrNotFound
	}
	now := time.Now().UTC()
	a.LastLoginAt = &now
	return nil
}

func (m *mockAccountRepo) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string, changedAt time.Time) error {
	a, ok := m.accounts[id.Hex()]
	if !ok {
		return account.ErrNotFound
	}
	a.PasswordHash = hash
	a.PasswordChangedAt = changedAt
	return nil
}

// newTestService wires a Service over in-memory storage with the
// external integration switched off.
func newTestService(t testing.TB) (*Service, *mockAccountRepo) {
	t.Helper()
	repo := newMockAccountRepo()
	creds := account.NewCredentialStore(repo, nil)
	issuer := session.NewIssuer(session.IssuerConfig{
		SigningSecret: testSigningSecret,
		Issuer:        "stylopay-test",
	}, broker.Disabled{}, repo, nil)
	validator := session.NewValidator(testSigningSecret, false)

	return NewService(repo, creds, issuer, validator, NewPasswordPolicy(), nil), repo
}

// seedAccount creates an active account with the given password,
// using a cheap hash so tests stay fast.
func seedAccount(t testing.TB, repo *mockAccountRepo, email, password string) *account.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	acct := &account.Account{
		Email:             email,
		PasswordHash:      string(hash),
		Role:              account.RoleStandard,
		Verified:          true,
		Status:            account.StatusActive,
		PasswordChangedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Create(context.Background(), acct); err != nil {
		t.Fatalf("create: %v", err)
	}
	return acct
}

func TestLoginSuccess(t *testing.T) {
	svc, repo := newTestService(t)
	seedAccount(t, repo, "user@example.com", "Str0ng-pass!")

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "User@Example.com",
		Password: "Str0ng-pass!",
	}, "203.0.113.9")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if resp.SessionToken == "" {
		t.Error("login must return a session token")
	}
	if resp.Account.Email != "user@example.com" {
		t.Errorf("email %q", resp.Account.Email)
	}
	if resp.ExternalEmbedded {
		t.Error("external integration is off, nothing should be embedded")
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Errorf("expiry %v not in the future", resp.ExpiresAt)
	}

	claims, err := svc.Validate(resp.SessionToken)
	if err != nil {
		t.Fatalf("validate minted token: %v", err)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("claims email %q", claims.Email)
	}

	stored, _ := repo.GetByEmail(context.Background(), "user@example.com")
	if stored.LastLoginAt == nil {
		t.Error("last login timestamp was not updated")
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	}, "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown account must look like a bad password, got %v", err)
	}
}

func TestLoginWrongPasswordCountsFailure(t *testing.T) {
	svc, repo := newTestService(t)
	acct := seedAccount(t, repo, "user@example.com", "Str0ng-pass!")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "wrong",
	}, "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), acct.ID)
	if stored.FailedAttemptCount != 1 {
		t.Errorf("failure count %d, want 1", stored.FailedAttemptCount)
	}
}

func TestLoginSuccessResetsFailureCount(t *testing.T) {
	svc, repo := newTestService(t)
	acct := seedAccount(t, repo, "user@example.com", "Str0ng-pass!")
	ctx := context.Background()

	for i := 0; i < account.MaxFailedAttempts-1; i++ {
		if _, err := svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "wrong"}, ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	if _, err := svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "Str0ng-pass!"}, ""); err != nil {
		t.Fatalf("correct password before the threshold must log in, got %v", err)
	}

	stored, _ := repo.GetByID(ctx, acct.ID)
	if stored.FailedAttemptCount != 0 {
		t.Errorf("failure count %d after successful login, want 0", stored.FailedAttemptCount)
	}
	if stored.LockedUntil != nil {
		t.Errorf("lock %v should be clear", stored.LockedUntil)
	}
}

func TestLoginLockoutAtThreshold(t *testing.T) {
	svc, repo := newTestService(t)
	acct := seedAccount(t, repo, "user@example.com", "Str0ng-pass!")
	ctx := context.Background()

	for i := 0; i < account.MaxFailedAttempts; i++ {
		if _, err := svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "wrong"}, ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	stored, _ := repo.GetByID(ctx, acct.ID)
	if stored.LockedUntil == nil {
		t.Fatal("account should be locked at the threshold")
	}

	// The correct password is refused while the lock holds.
	_, err := svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "Str0ng-pass!"}, "")
	if !errors.Is(err, ErrAccountLocked) {
		t.Errorf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginStatusGate(t *testing.T) {
	tests := []struct {
		status  account.Status
		wantErr error
	}{
		{account.StatusSuspended, ErrAccountSuspended},
		{account.StatusClosed, ErrAccountClosed},
		{account.StatusPendingVerification, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			svc, repo := newTestService(t)
			acct := seedAccount(t, repo, "user@example.com", "Str0ng-pass!")
			repo.accounts[acct.ID.Hex()].Status = tt.status

			_, err := svc.Login(context.Background(), LoginRequest{
				Email:    "user@example.com",
				Password: "Str0ng-pass!",
			}, "")

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	svc, repo := newTestService(t)

	summary, validationErrors, err := svc.Register(context.Background(), RegisterRequest{
		Email:           "New.User@Example.com",
		Password:        "Fresh-Passw0rd!",
		ConfirmPassword: "Fresh-Passw0rd!",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(validationErrors) > 0 {
		t.Fatalf("unexpected validation errors: %v", validationErrors)
	}

	if summary.Email != "new.user@example.com" {
		t.Errorf("email %q should be lowercased", summary.Email)
	}
	if summary.Status != string(account.StatusPendingVerification) {
		t.Errorf("status %q, want pending-verification", summary.Status)
	}
	if summary.Role != string(account.RoleStandard) {
		t.Errorf("role %q, want standard", summary.Role)
	}

	stored, err := repo.GetByEmail(context.Background(), "new.user@example.com")
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if stored.PasswordHash == "Fresh-Passw0rd!" || stored.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, repo := newTestService(t)
	seedAccount(t, repo, "taken@example.com", "Str0ng-pass!")

	_, _, err := svc.Register(context.Background(), RegisterRequest{
		Email:           "taken@example.com",
		Password:        "Fresh-Passw0rd!",
		ConfirmPassword: "Fresh-Passw0rd!",
	})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"bad email", RegisterRequest{Email: "not-an-email", Password: "Fresh-Passw0rd!", ConfirmPassword: "Fresh-Passw0rd!"}},
		{"weak password", RegisterRequest{Email: "user@example.com", Password: "short", ConfirmPassword: "short"}},
		{"mismatch", RegisterRequest{Email: "user@example.com", Password: "Fresh-Passw0rd!", ConfirmPassword: "Other-Passw0rd!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, validationErrors, err := svc.Register(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("validation failures are not errors: %v", err)
			}
			if summary != nil {
				t.Error("no account should be created")
			}
			if len(validationErrors) == 0 {
				t.Error("expected validation errors")
			}
		})
	}
}

func TestRefreshThroughService(t *testing.T) {
	svc, repo := newTestService(t)
	seedAccount(t, repo, "user@example.com", "Str0ng-pass!")

	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "Str0ng-pass!",
	}, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// A freshly minted token is a no-op refresh.
	resp, err := svc.Refresh(context.Background(), login.SessionToken, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if resp.Refreshed {
		t.Error("fresh token should not be replaced")
	}
	if resp.SessionToken != login.SessionToken {
		t.Error("no-op refresh must echo the token")
	}

	// Garbage is a hard rejection.
	if _, err := svc.Refresh(context.Background(), "garbage", ""); !errors.Is(err, session.ErrReauthenticationRequired) {
		t.Errorf("expected ErrReauthenticationRequired, got %v", err)
	}
}

func TestStatusReportsClaims(t *testing.T) {
	svc, repo := newTestService(t)
	seedAccount(t, repo, "user@example.com", "Str0ng-pass!")

	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "Str0ng-pass!",
	}, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	status, err := svc.Status(login.SessionToken)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Account.Email != "user@example.com" {
		t.Errorf("email %q", status.Account.Email)
	}
	if !status.ExpiresAt.Equal(login.ExpiresAt) {
		t.Errorf("expiry %v, want %v", status.ExpiresAt, login.ExpiresAt)
	}
	if status.RemainingSeconds <= 0 {
		t.Errorf("remaining %d should be positive", status.RemainingSeconds)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo := newTestService(t)
	acct := seedAccount(t, repo, "user@example.com", "Old-Passw0rd!")
	ctx := context.Background()
	before := time.Now().UTC()

	validationErrors, err := svc.ChangePassword(ctx, acct.ID.Hex(), ChangePasswordRequest{
		CurrentPassword: "Old-Passw0rd!",
		NewPassword:     "New-Passw0rd!",
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if len(validationErrors) > 0 {
		t.Fatalf("unexpected validation errors: %v", validationErrors)
	}

	stored, _ := repo.GetByID(ctx, acct.ID)
	if stored.PasswordChangedAt.Before(before) {
		t.Error("password change timestamp did not move forward")
	}

	// Old password no longer works, new one does.
	if _, err := svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "Old-Passw0rd!"}, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should be refused, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "New-Passw0rd!"}, ""); err != nil {
		t.Errorf("new password should work, got %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	svc, repo := newTestService(t)
	acct := seedAccount(t, repo, "user@example.com", "Old-Passw0rd!")
	ctx := context.Background()

	_, err := svc.ChangePassword(ctx, acct.ID.Hex(), ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "New-Passw0rd!",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// A wrong current password counts toward the lockout.
	stored, _ := repo.GetByID(ctx, acct.ID)
	if stored.FailedAttemptCount != 1 {
		t.Errorf("failure count %d, want 1", stored.FailedAttemptCount)
	}
}

func TestChangePasswordWeakNew(t *testing.T) {
	svc, repo := newTestService(t)
	acct := seedAccount(t, repo, "user@example.com", "Old-Passw0rd!")

	validationErrors, err := svc.ChangePassword(context.Background(), acct.ID.Hex(), ChangePasswordRequest{
		CurrentPassword: "Old-Passw0rd!",
		NewPassword:     "weak",
	})
	if err != nil {
		t.Fatalf("validation failures are not errors: %v", err)
	}
	if len(validationErrors) == 0 {
		t.Error("expected validation errors for a weak password")
	}

	// The password must be unchanged.
	stored, _ := repo.GetByID(context.Background(), acct.ID)
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Old-Passw0rd!")) != nil {
		t.Error("password should not have changed")
	}
}
