package session

import (
	"testing"
	"time"

	"github.com/techieonvacation/stylopay-sub000/internal/auth"
)

func testState(expiresAt time.Time) *State {
	now := time.Now().UTC()
	return &State{
		Account: auth.AccountSummary{
			ID:    "64f000000000000000000001",
			Email: "user@example.com",
			Role:  "standard",
		},
		ExpiresAt:      expiresAt,
		LoginAt:        now,
		LastActivityAt: now,
		SessionValid:   true,
	}
}

func TestStateStoreSaveRestore(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)
	expiry := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)

	if err := store.Save("token-abc", testState(expiry)); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, token, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if token != "token-abc" {
		t.Errorf("token %q", token)
	}
	if state == nil {
		t.Fatal("expected state")
	}
	if state.Account.Email != "user@example.com" {
		t.Errorf("email %q", state.Account.Email)
	}
	if !state.ExpiresAt.Equal(expiry) {
		t.Errorf("expiry %v, want %v", state.ExpiresAt, expiry)
	}
	if !state.SessionValid {
		t.Error("restored state must be marked valid")
	}
}

func TestStateStoreRestoreEmpty(t *testing.T) {
	store := NewStateStore(NewMemoryStorage())

	state, token, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if state != nil || token != "" {
		t.Errorf("empty storage should restore nothing, got %v, %q", state, token)
	}
}

func TestStateStoreRestoreExpiredClearsStorage(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)

	if err := store.Save("token-abc", testState(time.Now().UTC().Add(-time.Minute))); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, token, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if state != nil || token != "" {
		t.Error("an expired session must not be reinstated")
	}
	if mem.Len() != 0 {
		t.Errorf("storage should be cleared, %d keys remain", mem.Len())
	}
}

func TestStateStoreRestoreExpiryBoundary(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)
	expiry := time.Now().UTC().Add(30 * time.Minute)

	if err := store.Save("token-abc", testState(expiry)); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Exactly at the expiry instant the session is already gone.
	store.now = func() time.Time { return expiry }
	if state, _, _ := store.Restore(); state != nil {
		t.Error("session at its expiry instant must not restore")
	}
}

func TestStateStoreRestoreTokenWithoutState(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)

	// Half-wiped storage: a token with no state blob.
	if err := mem.Set(KeySessionToken, "orphan-token"); err != nil {
		t.Fatalf("set: %v", err)
	}

	state, token, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if state != nil || token != "" {
		t.Error("inconsistent storage must read as no session")
	}
	if mem.Len() != 0 {
		t.Error("inconsistent storage should be cleared")
	}
}

func TestStateStoreRestoreCorruptState(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)

	if err := mem.Set(KeySessionToken, "token-abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := mem.Set(KeyAuthState, "{corrupt"); err != nil {
		t.Fatalf("set: %v", err)
	}

	state, token, err := store.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if state != nil || token != "" {
		t.Error("corrupt state must read as no session")
	}
	if mem.Len() != 0 {
		t.Error("corrupt storage should be cleared")
	}
}

func TestStateStoreTouch(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)
	expiry := time.Now().UTC().Add(30 * time.Minute)

	state := testState(expiry)
	state.LastActivityAt = time.Now().UTC().Add(-10 * time.Minute)
	if err := store.Save("token-abc", state); err != nil {
		t.Fatalf("save: %v", err)
	}

	touchTime := time.Now().UTC().Truncate(time.Second)
	store.now = func() time.Time { return touchTime }
	if err := store.Touch("token-abc", state); err != nil {
		t.Fatalf("touch: %v", err)
	}

	restored, _, err := store.Restore()
	if err != nil || restored == nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.LastActivityAt.Equal(touchTime) {
		t.Errorf("last activity %v, want %v", restored.LastActivityAt, touchTime)
	}
}

func TestStateStoreClear(t *testing.T) {
	mem := NewMemoryStorage()
	store := NewStateStore(mem)

	if err := store.Save("token-abc", testState(time.Now().UTC().Add(time.Hour))); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mem.Len() != 0 {
		t.Errorf("%d keys remain after clear", mem.Len())
	}
}
