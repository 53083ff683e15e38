// Package session holds the dashboard-side session machinery: the
// persisted session state, the storage it lives in, and the refresh
// coordinator that keeps a session alive until the user logs out or
// the server refuses a refresh.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/techieonvacation/stylopay-sub000/internal/auth"
)

// Storage keys owned by the state store
const (
	KeySessionToken = "session_token"
	KeyAuthState    = "session_auth_state"
)

// State is the client's cached view of an authenticated session.
type State struct {
	Account        auth.AccountSummary `json:"account"`
	ExpiresAt      time.Time           `json:"expires_at"`
	LoginAt        time.Time           `json:"login_at"`
	LastActivityAt time.Time           `json:"last_activity_at"`
	Remember       bool                `json:"remember"`
	SessionValid   bool                `json:"session_valid"`
}

// StateStore persists session state across reloads and validates it on
// restore.
type StateStore struct {
	storage Storage
	now     func() time.Time
}

// NewStateStore creates a StateStore over the given Storage
func NewStateStore(storage Storage) *StateStore {
	return &StateStore{
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Save overwrites the full persisted snapshot. No partial merges:
// stale-field drift between the token and the state blob is worse than
// the extra write.
func (s *StateStore) Save(token string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.storage.Set(KeySessionToken, token); err != nil {
		return err
	}
	return s.storage.Set(KeyAuthState, string(data))
}

// Restore reads the persisted state. With nothing persisted it returns
// (nil, "", nil). A persisted expiry that is not strictly in the
// future means the session is gone: the state is discarded and storage
// cleared, never reinstated optimistically.
func (s *StateStore) Restore() (*State, string, error) {
	token, err := s.storage.Get(KeySessionToken)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}

	raw, err := s.storage.Get(KeyAuthState)
	if err != nil {
		// Token without state is the inconsistent half-wipe case;
		// treat it as no session.
		_ = s.Clear()
		return nil, "", nil
	}

	state := &State{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		_ = s.Clear()
		return nil, "", nil
	}

	if !state.ExpiresAt.After(s.now()) {
		_ = s.Clear()
		return nil, "", nil
	}

	state.SessionValid = true
	return state, token, nil
}

// Touch updates the last-activity timestamp and re-saves the snapshot
func (s *StateStore) Touch(token string, state *State) error {
	state.LastActivityAt = s.now()
	return s.Save(token, state)
}

// Clear removes every persisted key the store owns
func (s *StateStore) Clear() error {
	return s.storage.Clear()
}
