package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careops/outreach/internal/config"
	"github.com/careops/outreach/internal/domain/consolidate"
	"github.com/careops/outreach/internal/domain/contacts"
	"github.com/careops/outreach/internal/domain/roster"
	"github.com/careops/outreach/internal/pipeline"
	"github.com/careops/outreach/internal/platform/blobsync"
	"github.com/careops/outreach/internal/platform/db"
	"github.com/careops/outreach/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "outreach",
		Short: "Patient outreach consolidation",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one consolidation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateRun(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signalContext()
			defer stop()

			aliases := roster.AliasTable(nil)
			if cfg.AliasFile != "" {
				aliases, err = roster.LoadAliases(cfg.AliasFile)
				if err != nil {
					return err
				}
			}

			loader := roster.NewLoader(aliases, logger)
			client := contacts.NewClient(contacts.Options{
				BaseURL:    cfg.ContactsBaseURL,
				Token:      cfg.ContactsAPIToken,
				PageSize:   cfg.ContactsPageSize,
				MaxRetries: cfg.FetchMaxRetries,
				Backoff:    cfg.FetchBackoff,
				Timeout:    cfg.FetchTimeout,
			}, logger)
			matcher := consolidate.NewMatcher(logger)
			writer := consolidate.NewWriter(cfg.MasterFile, logger)

			p := pipeline.New(loader, client, matcher, writer, logger)

			if cfg.DatabaseURL != "" {
				pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer pool.Close()
				p.WithRepository(consolidate.NewRepoPG(pool))
			}

			if cfg.BlobEndpoint != "" {
				if err := cfg.ValidateSync(); err != nil {
					return err
				}
				syncer, err := newSyncer(ctx, cfg, logger)
				if err != nil {
					return err
				}
				p.WithSyncer(syncer)
			}

			summary, err := p.Run(ctx, cfg.RosterFiles)
			if err != nil {
				return err
			}

			pipeline.PrintSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BearerAuth(cfg.APIToken))

	repo := consolidate.NewRepoPG(pool)
	svc := consolidate.NewService(repo)
	handler := consolidate.NewHandler(svc)
	handler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newSyncer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*blobsync.Syncer, error) {
	store, err := blobsync.NewMinioStore(cfg.BlobEndpoint, cfg.BlobAccessKey, cfg.BlobSecretKey, cfg.BlobBucket, cfg.BlobUseSSL)
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return blobsync.NewSyncer(store, cfg.BlobObjectKey, logger), nil
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the master document to object storage",
	}

	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the local master document if it changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, func(ctx context.Context, s *blobsync.Syncer, path string) (bool, error) {
				return s.Push(ctx, path)
			})
		},
	}
	cmd.AddCommand(pushCmd)

	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the remote master document if it is newer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, func(ctx context.Context, s *blobsync.Syncer, path string) (bool, error) {
				return s.Pull(ctx, path)
			})
		},
	}
	cmd.AddCommand(pullCmd)

	return cmd
}

func runSync(cmd *cobra.Command, op func(context.Context, *blobsync.Syncer, string) (bool, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSync(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	syncer, err := newSyncer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	changed, err := op(ctx, syncer, cfg.MasterFile)
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintln(cmd.OutOrStdout(), "synced")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "up to date")
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}
