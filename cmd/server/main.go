package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/techieonvacation/stylopay-sub000/internal/account"
	"github.com/techieonvacation/stylopay-sub000/internal/auth"
	"github.com/techieonvacation/stylopay-sub000/internal/broker"
	"github.com/techieonvacation/stylopay-sub000/internal/config"
	"github.com/techieonvacation/stylopay-sub000/internal/health"
	"github.com/techieonvacation/stylopay-sub000/internal/logger"
	"github.com/techieonvacation/stylopay-sub000/internal/metrics"
	authmw "github.com/techieonvacation/stylopay-sub000/internal/middleware"
	"github.com/techieonvacation/stylopay-sub000/internal/session"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if cfg.Session.SigningSecret == "" {
		log.Error("SESSION_SIGNING_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.Broker.Enabled && cfg.Broker.Endpoint == "" {
		log.Error("BROKER_ENDPOINT is required when BROKER_ENABLED is set")
		os.Exit(1)
	}

	mongoClient, err := connectMongo(cfg, log)
	if err != nil {
		log.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Warn("mongodb disconnect failed", "error", err)
		}
	}()

	db := mongoClient.Database(cfg.Mongo.Database)

	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := account.EnsureIndexes(ctx, db)
		cancel()
		if err != nil {
			log.Error("failed to ensure mongodb indexes", "error", err)
			os.Exit(1)
		}
	}

	accountRepo := account.NewMongoRepository(db)
	credStore := account.NewCredentialStore(accountRepo, log)

	var credBroker broker.Broker = broker.Disabled{}
	if cfg.Broker.Enabled {
		credBroker = broker.NewHTTPBroker(broker.Config{
			Enabled:  true,
			Endpoint: cfg.Broker.Endpoint,
			APIKey:   cfg.Broker.APIKey,
			Timeout:  cfg.Broker.Timeout,
		})
	}

	issuer := session.NewIssuer(session.IssuerConfig{
		SigningSecret:    cfg.Session.SigningSecret,
		TokenValidity:    cfg.Session.TokenValidity,
		RefreshThreshold: cfg.Session.RefreshThreshold,
		Issuer:           cfg.Session.Issuer,
	}, credBroker, accountRepo, log)

	validator := session.NewValidator(cfg.Session.SigningSecret, cfg.Broker.Enabled)

	passwordPolicy := auth.NewPasswordPolicy()
	authService := auth.NewService(accountRepo, credStore, issuer, validator, passwordPolicy, log)
	authHandler := auth.NewHandler(authService)
	authMiddleware := authmw.NewAuthMiddleware(validator)

	healthHandler := health.NewHandler(health.Config{
		MongoClient: mongoClient,
		Version:     version,
	})

	loginLimiter := authmw.NewRateLimiter(10, time.Minute)
	defer loginLimiter.Stop()

	loggingMiddleware := authmw.NewLoggingMiddleware(log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware.Handler)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.stylopay.com", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	metrics.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authmw.LoginRateLimit(loginLimiter))
			auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate)
		})
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr, "broker_enabled", cfg.Broker.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

// connectMongo connects to MongoDB and verifies the connection with a
// ping before handing the client back.
func connectMongo(cfg *config.Config, log *slog.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(time.Minute)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("connected to mongodb", "database", cfg.Mongo.Database)
	return client, nil
}
