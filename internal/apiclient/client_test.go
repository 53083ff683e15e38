package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// writeEnvelope mirrors the server's response wrapper
func writeEnvelope(w http.ResponseWriter, status int, data interface{}, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"success":   code == "",
		"timestamp": time.Now().UTC(),
	}
	if code == "" {
		resp["data"] = data
	} else {
		resp["error"] = map[string]string{"code": code, "message": message}
	}
	json.NewEncoder(w).Encode(resp)
}

func TestLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["email"] != "user@example.com" {
			t.Errorf("email %q", req["email"])
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"session_token": "minted-token",
			"expires_at":    time.Now().UTC().Add(30 * time.Minute),
			"account":       map[string]string{"email": "user@example.com"},
		}, "", "")
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Login(context.Background(), "user@example.com", "Str0ng-pass!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.SessionToken != "minted-token" {
		t.Errorf("token %q", resp.SessionToken)
	}
	if resp.Account.Email != "user@example.com" {
		t.Errorf("email %q", resp.Account.Email)
	}
}

func TestLoginUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, nil, "INVALID_CREDENTIALS", "Invalid email or password")
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Login(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer the-token" {
			t.Errorf("authorization %q", got)
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"refreshed":     true,
			"session_token": "the-token-2",
			"expires_at":    time.Now().UTC().Add(30 * time.Minute),
		}, "", "")
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Refresh(context.Background(), "the-token")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !resp.Refreshed || resp.SessionToken != "the-token-2" {
		t.Errorf("unexpected refresh response: %+v", resp)
	}
}

func TestServerErrorsMapToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	if _, err := client.Status(context.Background(), "token"); !errors.Is(err, ErrServerUnavailable) {
		t.Errorf("expected ErrServerUnavailable, got %v", err)
	}

	srv.Close()
	if _, err := client.Status(context.Background(), "token"); !errors.Is(err, ErrServerUnavailable) {
		t.Errorf("expected ErrServerUnavailable on refused connection, got %v", err)
	}
}

func TestValidateNeverErrorsOnInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"valid":  false,
			"reason": "expired",
		}, "", "")
	}))
	defer srv.Close()

	result, err := New(srv.URL, time.Second).Validate(context.Background(), "stale-token")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid || result.Reason != "expired" {
		t.Errorf("unexpected result: %+v", result)
	}
}
