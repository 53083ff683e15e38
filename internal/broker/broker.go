// Package broker adapts the third-party credential authority. It is a
// pure adapter: it obtains a short-lived credential over HTTP and maps
// upstream misbehavior onto a small typed failure set. Broker failures
// are never fatal to local session issuance.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/techieonvacation/stylopay-sub000/internal/metrics"
)

// Broker failure taxonomy
var (
	// ErrUnavailable means the authority could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("external credential service unavailable")
	// ErrRateLimited means the authority rejected the request with 429.
	ErrRateLimited = errors.New("external credential service rate limited")
	// ErrMalformedResponse means the authority answered with a body
	// that does not parse or lacks a credential.
	ErrMalformedResponse = errors.New("external credential response malformed")
	// ErrCredentialExpired means the authority handed back a
	// credential that was already expired on arrival.
	ErrCredentialExpired = errors.New("external credential expired on arrival")
	// ErrAuthFailed means the authority rejected our own credentials.
	ErrAuthFailed = errors.New("external credential authentication failed")
)

// Credential is a short-lived token obtained from the external
// authority, with its own expiry independent of the session token that
// may wrap it.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Broker obtains a credential from the external authority.
type Broker interface {
	Obtain(ctx context.Context) (*Credential, error)
	Enabled() bool
}

// Config holds HTTP broker configuration
type Config struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPBroker is the HTTP implementation of Broker.
type HTTPBroker struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// NewHTTPBroker creates a broker calling the configured endpoint with
// an explicit request timeout.
func NewHTTPBroker(cfg Config) *HTTPBroker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBroker{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether the external integration is switched on
func (b *HTTPBroker) Enabled() bool {
	return b.cfg.Enabled
}

// tokenResponse is the authority's issuance payload
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Obtain requests a credential from the authority. A malformed or
// pre-expired upstream credential is a broker failure, never silently
// accepted.
func (b *HTTPBroker) Obtain(ctx context.Context) (*Credential, error) {
	cred, err := b.obtain(ctx)
	metrics.BrokerRequestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	return cred, err
}

func (b *HTTPBroker) obtain(ctx context.Context) (*Credential, error) {
	start := b.now()
	defer func() {
		metrics.BrokerRequestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuthFailed
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrMalformedResponse, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Token == "" || body.ExpiresAt.IsZero() {
		return nil, ErrMalformedResponse
	}
	if !body.ExpiresAt.After(b.now()) {
		return nil, ErrCredentialExpired
	}

	return &Credential{Token: body.Token, ExpiresAt: body.ExpiresAt}, nil
}

// outcomeLabel maps an Obtain error onto its metric label
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrCredentialExpired):
		return "expired"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "unavailable"
	}
}

// Disabled is a Broker for deployments without the external
// integration. Obtain must never be called on it; issuance checks
// Enabled first.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Obtain(ctx context.Context) (*Credential, error) {
	return nil, ErrUnavailable
}
