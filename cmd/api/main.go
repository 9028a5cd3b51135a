// cmd/api/main.go
//
// MindMap Research API – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Parse flags (kingpin).
//
//  2. Load settings once (config.Get): defaults → .env → environment,
//     validated, tier override applied.
//
//  3. Start the logger described by LOG_LEVEL and LOG_FORMAT.
//
//  4. Preflight: refuse to start on missing or unsafe critical settings.
//     With --check-config, print a redacted summary and exit here.
//
//  5. Open the SQL pool (fatal on failure).
//
//  6. Connect Redis.  On failure the API degrades to in-memory rate
//     limiting instead of exiting.
//
//  7. Build identity credentials (checked by the detailed health route),
//     verifier, token issuer, pseudonymizer, rate limiter.
//
//  8. Build the router and serve until SIGINT/SIGTERM, then drain.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mindmap-platform/mindmap-api/internal/auth"
	"github.com/mindmap-platform/mindmap-api/internal/cache"
	"github.com/mindmap-platform/mindmap-api/internal/config"
	"github.com/mindmap-platform/mindmap-api/internal/database"
	"github.com/mindmap-platform/mindmap-api/internal/identity"
	"github.com/mindmap-platform/mindmap-api/internal/logger"
	"github.com/mindmap-platform/mindmap-api/internal/metrics"
	"github.com/mindmap-platform/mindmap-api/internal/pseudonym"
	"github.com/mindmap-platform/mindmap-api/internal/ratelimit"
	"github.com/mindmap-platform/mindmap-api/internal/server"
)

const shutdownGrace = 15 * time.Second

func main() {
	app := kingpin.New("mindmap-api", "MindMap Research API server")
	addr := app.Flag("addr", "Listen address").Default(":8000").String()
	checkConfig := app.Flag("check-config", "Load and preflight settings, print a redacted summary, and exit").Bool()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	s, err := config.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load settings: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromSettings(s, config.RootDir()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "start logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := config.Preflight(s, log); err != nil {
		log.Fatalw("preflight failed", "error", err)
	}
	if *checkConfig {
		printSummary(s)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, *addr, log); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}

func run(ctx context.Context, s *config.Settings, addr string, log *zap.SugaredLogger) error {
	metrics.SetAppInfo(s)

	//
	// ── 1.  SQL pool ────────────────────────────────────────────────────
	//
	log.Infow("connecting to database", "url", s.LogSafeDatabaseURL())
	db, err := database.Open(ctx, s.Database.URL, s.DatabaseConfig(), log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	checks := []server.HealthCheck{{Name: "database", Check: db.Health}}

	//
	// ── 2.  Redis (optional) ────────────────────────────────────────────
	//
	var rc *redis.Client
	if c, err := cache.Connect(ctx, s.CacheStoreConfig(), log); err != nil {
		log.Warnw("redis unavailable, using in-memory rate limiting", "error", err)
	} else {
		rc = c
		defer rc.Close()
		checks = append(checks, server.HealthCheck{
			Name:  "cache",
			Check: func(ctx context.Context) error { return rc.Ping(ctx).Err() },
		})
	}

	//
	// ── 3.  Identity, tokens, pseudonyms, limits ────────────────────────
	//
	var verifier server.TokenVerifier
	if creds, err := identity.Credentials(s.IdentityProviderConfig()); err != nil {
		if !errors.Is(err, identity.ErrNotConfigured) {
			return err
		}
		log.Infow("firebase not configured, token exchange disabled")
	} else {
		v, err := identity.NewVerifier(ctx, s.ProjectID, nil)
		if err != nil {
			return err
		}
		verifier = v
		checks = append(checks, server.HealthCheck{
			Name:  "identity",
			Check: identity.HealthCheck(ctx, creds),
		})
		log.Infow("firebase configured", "project", s.ProjectID, "client_email", creds.Email)
	}

	hasher, err := pseudonym.FromSettings(s)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.New(ratelimit.LimitsFromSettings(s), rc, log)
	if err != nil {
		return err
	}

	//
	// ── 4.  Router and server ───────────────────────────────────────────
	//
	handler, err := server.NewRouter(server.Deps{
		Settings:   s,
		Log:        log.Desugar(),
		Checks:     checks,
		Limiter:    limiter,
		Verifier:   verifier,
		Issuer:     auth.NewIssuer(s),
		Pseudonyms: hasher,
	})
	if err != nil {
		return err
	}
	srv := server.New(addr, handler, log.Desugar())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("listening", "addr", addr, "environment", s.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// printSummary writes the non-secret settings as JSON to stdout.
func printSummary(s *config.Settings) {
	summary := map[string]any{
		"app":             s.App.Name,
		"version":         s.Version,
		"environment":     s.Environment,
		"debug":           s.Debug,
		"log_level":       s.Logging.Level,
		"database_url":    s.LogSafeDatabaseURL(),
		"redis_url":       redactURL(s.Redis.URL),
		"firebase":        s.ProjectID != "",
		"allowed_hosts":   s.AllowedHosts,
		"allowed_origins": s.AllowedOrigins,
		"rate_limit": map[string]int{
			"per_minute": s.RequestsPerMinute,
			"per_hour":   s.RequestsPerHour,
			"burst":      s.BurstSize,
		},
		"metrics_enabled": s.MetricsEnabled,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
