// Command sessionctl is a small client for the session service. It
// logs in, persists the session locally, keeps it refreshed, and
// inspects its status, exercising the same session machinery the
// dashboard frontend uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/techieonvacation/stylopay-sub000/internal/apiclient"
	clientsession "github.com/techieonvacation/stylopay-sub000/internal/client/session"
	"github.com/techieonvacation/stylopay-sub000/internal/logger"
)

const usage = `Usage: sessionctl [flags] <command>

Commands:
  login     authenticate and persist the session
  status    show the current session
  refresh   force a token refresh
  validate  check whether the stored token is still valid
  watch     keep the session refreshed until interrupted
  logout    discard the stored session

Flags:
`

func main() {
	var (
		server    = flag.String("server", envOr("SESSIONCTL_SERVER", "http://localhost:8080/api/v1"), "API base URL")
		email     = flag.String("email", "", "account email (login)")
		password  = flag.String("password", "", "account password (login; prefer SESSIONCTL_PASSWORD)")
		stateFile = flag.String("state", defaultStatePath(), "session state file")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.New(logger.Config{Level: envOr("LOG_LEVEL", "warn"), Format: "text", Output: "stderr"})
	api := apiclient.New(*server, 15*time.Second)
	store := clientsession.NewStateStore(clientsession.NewFileStorage(*stateFile))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "login":
		err = runLogin(ctx, api, store, *email, *password)
	case "status":
		err = runStatus(ctx, api, store)
	case "refresh":
		err = runRefresh(ctx, api, store)
	case "validate":
		err = runValidate(ctx, api, store)
	case "watch":
		cancel()
		err = runWatch(api, store, log)
	case "logout":
		err = store.Clear()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionctl:", err)
		os.Exit(1)
	}
}

func runLogin(ctx context.Context, api *apiclient.Client, store *clientsession.StateStore, email, password string) error {
	if password == "" {
		password = os.Getenv("SESSIONCTL_PASSWORD")
	}
	if email == "" || password == "" {
		return fmt.Errorf("login requires -email and a password")
	}

	resp, err := api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	state := &clientsession.State{
		Account:        resp.Account,
		ExpiresAt:      resp.ExpiresAt,
		LoginAt:        now,
		LastActivityAt: now,
		SessionValid:   true,
	}
	if err := store.Save(resp.SessionToken, state); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	fmt.Printf("logged in as %s (expires %s)\n", resp.Account.Email, resp.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runStatus(ctx context.Context, api *apiclient.Client, store *clientsession.StateStore) error {
	_, token, err := restored(store)
	if err != nil {
		return err
	}

	resp, err := api.Status(ctx, token)
	if err != nil {
		return err
	}

	fmt.Printf("account:   %s (%s)\n", resp.Account.Email, resp.Account.Role)
	fmt.Printf("status:    %s\n", resp.Account.Status)
	fmt.Printf("expires:   %s (%ds remaining)\n", resp.ExpiresAt.Format(time.RFC3339), resp.RemainingSeconds)
	return nil
}

func runRefresh(ctx context.Context, api *apiclient.Client, store *clientsession.StateStore) error {
	state, token, err := restored(store)
	if err != nil {
		return err
	}

	resp, err := api.Refresh(ctx, token)
	if err != nil {
		return err
	}
	if !resp.Refreshed {
		fmt.Printf("token still fresh (%ds remaining), nothing to do\n", resp.RemainingSeconds)
		return nil
	}

	state.ExpiresAt = resp.ExpiresAt
	state.LastActivityAt = time.Now().UTC()
	if err := store.Save(resp.SessionToken, state); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	fmt.Printf("refreshed, new expiry %s\n", resp.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runValidate(ctx context.Context, api *apiclient.Client, store *clientsession.StateStore) error {
	_, token, err := restored(store)
	if err != nil {
		return err
	}

	result, err := api.Validate(ctx, token)
	if err != nil {
		return err
	}
	if result.Valid {
		fmt.Println("token is valid")
		return nil
	}

	fmt.Printf("token is invalid: %s\n", result.Reason)
	return nil
}

// runWatch restores the stored session and hands it to a refresh
// coordinator, mirroring what the dashboard does on page load. It
// blocks until interrupted or the session dies.
func runWatch(api *apiclient.Client, store *clientsession.StateStore, log *slog.Logger) error {
	state, token, err := restored(store)
	if err != nil {
		return err
	}

	expired := make(chan struct{})
	refresh := func(ctx context.Context, token string) (string, time.Time, error) {
		resp, err := api.Refresh(ctx, token)
		if err != nil {
			return "", time.Time{}, err
		}
		return resp.SessionToken, resp.ExpiresAt, nil
	}

	coord := clientsession.NewCoordinator(store, refresh, nil, nil, log, clientsession.CoordinatorConfig{
		OnExpired: func() { close(expired) },
	})
	coord.Start(token, state.ExpiresAt, state)
	defer coord.Stop()

	fmt.Printf("watching session for %s (expires %s)\n", state.Account.Email, state.ExpiresAt.Format(time.RFC3339))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		fmt.Println("stopping")
		return nil
	case <-expired:
		return fmt.Errorf("session expired; log in again")
	}
}

// restored loads the persisted session or explains its absence
func restored(store *clientsession.StateStore) (*clientsession.State, string, error) {
	state, token, err := store.Restore()
	if err != nil {
		return nil, "", fmt.Errorf("restore session: %w", err)
	}
	if state == nil {
		return nil, "", fmt.Errorf("no stored session; run sessionctl login first")
	}
	return state, token, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stylopay-session.json"
	}
	return filepath.Join(home, ".stylopay", "session.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
