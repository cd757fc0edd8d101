// Command server runs the natural-language query gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/mhr-212/talk-to-your-data/internal/analytics"
	"github.com/mhr-212/talk-to-your-data/internal/api"
	"github.com/mhr-212/talk-to-your-data/internal/config"
	internaldb "github.com/mhr-212/talk-to-your-data/internal/db"
	"github.com/mhr-212/talk-to-your-data/internal/executor"
	"github.com/mhr-212/talk-to-your-data/internal/llm"
	"github.com/mhr-212/talk-to-your-data/internal/middleware"
	"github.com/mhr-212/talk-to-your-data/internal/policy"
	"github.com/mhr-212/talk-to-your-data/internal/resultcache"
	"github.com/mhr-212/talk-to-your-data/internal/schema"
	"github.com/mhr-212/talk-to-your-data/internal/service"
)

func main() {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Natural-language query gateway over SQLite",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), tokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.DatabasePath, 4)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer writeDB.Close()
	defer readDB.Close()

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	resolver, err := policy.LoadResolver(cfg.RolesFile)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}

	var provider llm.Provider
	switch {
	case cfg.DevFallback || cfg.OpenAIAPIKey == "":
		logger.Info("sql generation running in rule-based mode, no model configured")
		provider = llm.NewFallbackProvider()
	default:
		provider = llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.LLMTemperature, cfg.LLMTimeout)
	}

	schemas := schema.NewCache(cfg.SchemaCacheTTL)
	results := resultcache.New(cfg.ResultCacheEntries, cfg.ResultCacheTTL)
	recorder := analytics.NewRecorder(cfg.AuditCapacity)
	engine := executor.NewEngine(readDB, cfg.StatementTimeout, logger)

	query := service.NewQueryService(
		readDB, schemas, resolver, provider, engine, results, recorder, cfg.MaxLimit, logger,
	)
	saved := service.NewSavedQueryStore(500)

	validator, err := buildValidator(ctx, cfg)
	if err != nil {
		return err
	}
	auth := middleware.NewAuthenticator(validator, cfg.Auth.RoleClaim, !cfg.IsProduction())

	srv := api.NewServer(cfg, logger, query, saved, recorder, results, schemas, readDB, writeDB, auth)

	// Hourly sweep keeps abandoned cache entries from pinning memory.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		if removed := results.SweepExpired(); removed > 0 {
			logger.Info("result cache sweep", "removed", removed)
		}
	}); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// buildValidator picks OIDC when an issuer or JWKS endpoint is configured,
// falling back to the shared HS256 secret for local development.
func buildValidator(ctx context.Context, cfg *config.Config) (middleware.JWTValidator, error) {
	switch {
	case cfg.Auth.JWKSURL != "":
		return middleware.NewOIDCValidatorFromJWKS(
			ctx, cfg.Auth.JWKSURL, cfg.Auth.IssuerURL, cfg.Auth.Audience, cfg.Auth.AllowedIssuers,
		)
	case cfg.Auth.IssuerURL != "":
		return middleware.NewOIDCValidator(
			ctx, cfg.Auth.IssuerURL, cfg.Auth.Audience, cfg.Auth.AllowedIssuers,
		)
	default:
		return middleware.NewHS256Validator(cfg.Auth.JWTSecret)
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development HS256 JWT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			token, err := middleware.MintHS256Token(cfg.Auth.JWTSecret, userID, name, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "user_1", "subject claim")
	cmd.Flags().StringVar(&name, "name", "analyst", "name claim")
	cmd.Flags().StringVar(&role, "role", "analyst", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
