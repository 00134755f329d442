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

	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/commentsync/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/commentsync/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/commentsync/internal/adapter/driving/http"
	"github.com/ericfisherdev/commentsync/internal/application"
	"github.com/ericfisherdev/commentsync/internal/config"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// draftPruneInterval is how often expired drafts are removed.
const draftPruneInterval = time.Hour

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var listenAddr, dbPath string

	cmd := &cobra.Command{
		Use:           "commentsync",
		Short:         "Keeps editor comment threads in sync with their providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("db-path") {
				cfg.DBPath = dbPath
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "HTTP listen address (overrides COMMENTSYNC_LISTEN_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "sqlite draft database, empty disables persistence (overrides COMMENTSYNC_DB_PATH)")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	// 1. Log the effective configuration.
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"provider_timeout", cfg.ProviderTimeout,
		"fanout_limit", cfg.FanoutLimit,
		"github_repo", cfg.GitHubRepo,
		"github_pr", cfg.GitHubPR,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the draft store (dual reader/writer with WAL mode) and migrate.
	var drafts driven.DraftStore
	if cfg.DBPath != "" {
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		slog.Info("database opened", "path", cfg.DBPath)

		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return err
		}
		slog.Info("migrations complete")

		repo := sqliteadapter.NewDraftRepo(db)
		drafts = repo
		go pruneDrafts(ctx, repo, cfg.DraftTTL)
	} else {
		slog.Info("no database configured, drafts are kept in memory only")
	}

	// 4. Create the registry and the provider host.
	registry := application.NewCommentRegistry(cfg.FanoutLimit)
	host := application.NewCommentsHost(registry, cfg.ProviderTimeout)
	defer host.Close()

	// 5. Attach the GitHub pull request provider and schedule its syncs.
	var syncSvc *application.SyncService
	if cfg.GitHubEnabled() {
		provider, err := attachGitHub(ctx, cfg, host)
		if err != nil {
			return err
		}
		syncSvc = application.NewSyncService(cfg.SyncTick)
		syncSvc.Add(provider.Label(), provider)
		go syncSvc.Start(ctx)
	} else {
		slog.Info("no github pull request configured, only extension providers are available")
	}

	// 6. Create the HTTP handler.
	apiHandler := httphandler.NewHandler(ctx, host, registry, drafts, syncSvc, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// 7. Wait for shutdown signal or a server failure.
	slog.Info("commentsync started", "listen_addr", cfg.ListenAddr)
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down")

	// 8. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// attachGitHub resolves the username when only a token is configured, then
// registers the pull request provider with host.
func attachGitHub(ctx context.Context, cfg *config.Config, host *application.CommentsHost) (*githubadapter.Provider, error) {
	username := cfg.GitHubUsername
	if username == "" {
		login, err := githubadapter.NewClient(cfg.GitHubToken, "").ValidateToken(ctx, cfg.GitHubToken)
		if err != nil {
			return nil, fmt.Errorf("resolve github username: %w", err)
		}
		username = login
	}

	client := githubadapter.NewClient(cfg.GitHubToken, username)
	provider := githubadapter.NewProvider(client, cfg.GitHubRepo, cfg.GitHubPR, cfg.WorkspaceRoot)

	// A failed first sync leaves the provider registered; the sync service
	// retries on its schedule.
	if _, err := provider.Attach(ctx, host); err != nil {
		slog.Warn("initial github sync failed", "repo", cfg.GitHubRepo, "pr", cfg.GitHubPR, "username", username, "error", err)
	}
	return provider, nil
}

// pruneDrafts deletes drafts untouched for longer than ttl, once at startup
// and then every draftPruneInterval.
func pruneDrafts(ctx context.Context, repo *sqliteadapter.DraftRepo, ttl time.Duration) {
	prune := func() {
		n, err := repo.PruneOlderThan(ctx, time.Now().Add(-ttl))
		if err != nil {
			slog.Warn("draft prune failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("expired drafts pruned", "count", n)
		}
	}

	prune()
	ticker := time.NewTicker(draftPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
