package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"redbook/api/internal/app"
	"redbook/api/internal/assetcache"
	"redbook/api/internal/authpw"
	"redbook/api/internal/backup"
	"redbook/api/internal/config"
	"redbook/api/internal/export"
	"redbook/api/internal/search"
	"redbook/api/internal/session"
	"redbook/api/internal/store"
)

// assetAllowlist names the front-end files the cache worker keeps available
// offline. Anything else passes straight through to the origin.
var assetAllowlist = []string{
	"/static/css/app.css",
	"/static/css/editor.css",
	"/static/js/app.js",
	"/static/js/editor.js",
	"/static/js/comments.js",
	"/static/fonts/tajawal-regular.woff2",
	"/static/fonts/tajawal-bold.woff2",
	"/static/img/logo.svg",
}

func main() {
	root := &cobra.Command{
		Use:   "redbook-api",
		Short: "Episode planning and review backend",
		// Running the bare binary serves, matching the pre-subcommand
		// behaviour operators rely on.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	var seedUser, seedPassword string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the initial admin account and tracks on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), seedUser, seedPassword)
		},
	}
	seedCmd.Flags().StringVar(&seedUser, "admin-user", "admin", "username for the seeded admin account")
	seedCmd.Flags().StringVar(&seedPassword, "admin-password", "", "password for the seeded admin account (required)")

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database to object storage and prune old snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context())
		},
	}

	root.AddCommand(serveCmd, seedCmd, backupCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.PostgresStore, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return db, store.NewPostgresStore(db), nil
}

func runServe(ctx context.Context) error {
	cfg := config.Load()

	db, dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer sessions.Close()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	service := app.NewService(dataStore, sessions, authpw.NewService(dataStore)).
		WithSearch(searchService).
		WithExport(export.NewService(dataStore)).
		WithPinger(dbPinger{db})

	var handler http.Handler = app.NewHTTPServer(service, cfg.CORSOrigin).Handler()

	worker := assetcache.New(cfg.AssetCacheDir, cfg.AssetCacheVersion, cfg.AssetOrigin, assetAllowlist)
	go func() {
		if err := worker.Install(); err != nil {
			log.Printf("asset cache install failed: %v", err)
			return
		}
		if err := worker.Activate(); err != nil {
			log.Printf("asset cache activate failed: %v", err)
			return
		}
		log.Printf("asset cache %s active", worker.Version())
	}()
	handler = worker.Handler(handler)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func runSeed(ctx context.Context, adminUser, adminPassword string) error {
	if adminPassword == "" {
		adminPassword = os.Getenv("REDBOOK_ADMIN_PASSWORD")
	}
	if adminPassword == "" {
		return errors.New("--admin-password or REDBOOK_ADMIN_PASSWORD is required")
	}

	cfg := config.Load()
	db, dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	service := app.NewService(dataStore, noSessions{}, authpw.NewService(dataStore))
	return service.Bootstrap(ctx, adminUser, adminPassword)
}

func runBackup(ctx context.Context) error {
	cfg := config.Load()
	if cfg.BackupEndpoint == "" {
		return errors.New("BACKUP_S3_ENDPOINT is not configured")
	}

	db, dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := backup.New(cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey,
		cfg.BackupBucket, cfg.BackupUseSSL, cfg.BackupKeep, dataStore)
	if err != nil {
		return fmt.Errorf("backup setup: %w", err)
	}
	return svc.Run(ctx)
}

type dbPinger struct {
	db *sql.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// noSessions satisfies the session dependency for one-shot commands that
// never log anyone in.
type noSessions struct{}

func (noSessions) Create(context.Context, int64, string, bool) (string, error) {
	return "", errors.New("sessions unavailable")
}

func (noSessions) Lookup(context.Context, string) (session.Session, error) {
	return session.Session{}, session.ErrNoSession
}

func (noSessions) Revoke(context.Context, string) error { return nil }
