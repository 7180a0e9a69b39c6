package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/jeraldrich/sql-transformer/internal/config"
	httpapi "github.com/jeraldrich/sql-transformer/internal/http"
	"github.com/jeraldrich/sql-transformer/internal/ingest"
	"github.com/jeraldrich/sql-transformer/internal/observability"
	"github.com/jeraldrich/sql-transformer/internal/repo"
	"github.com/jeraldrich/sql-transformer/internal/source"
	"github.com/jeraldrich/sql-transformer/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var errInterrupted = errors.New("interrupted")

const defaultEnvFile = ".env"

type flags struct {
	envFile       string
	sources       []string
	workers       int
	queueCapacity int
	relinkBodies  bool
	opsAddr       string
}

// rootCmd builds the command that runs one ingestion pass and exits.
func rootCmd() *cobra.Command {
	return newRootCmd(&flags{})
}

func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql-transformer",
		Short: "Ingest JSON message documents into a relational store.",
		Long: `sql-transformer fetches JSON arrays of message records from one or more
sources, validates each record and writes it with its referenced users,
channel, correlation and body into SQLite or Postgres.

Records already present are skipped, so a run can be repeated safely.
Settings come from the environment (optionally a .env file); flags win.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "config:", err)
				return err
			}
			sysutil.ConfigureLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogPretty)
			if err := run(cmd.Context(), cfg); err != nil {
				if errors.Is(err, errInterrupted) {
					log.Warn().Msg("interrupt signal received")
				} else {
					log.Error().Err(err).Msg("ingestion failed")
				}
				return err
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the environment")
	fl.StringArrayVar(&f.sources, "source", nil, "source location (http(s) URL, file:// URL or path); repeatable, replaces SOURCE_URLS")
	fl.IntVar(&f.workers, "workers", 0, "consumer pool size (WORKERS)")
	fl.IntVar(&f.queueCapacity, "queue-capacity", 0, "bounded queue size (QUEUE_CAPACITY)")
	fl.BoolVar(&f.relinkBodies, "relink-bodies", false, "attach bodies to messages persisted without one (RELINK_MISSING_BODIES)")
	fl.StringVar(&f.opsAddr, "ops-addr", "", "serve health, metrics and progress on this address (OPS_ADDR)")
	return cmd
}

// loadConfig reads the env file, the environment, then applies any flag the
// caller set explicitly.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	if err := godotenv.Load(f.envFile); err != nil {
		// A missing default file is normal; an explicit one must exist.
		if cmd.Flags().Changed("env-file") || !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", f.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	fl := cmd.Flags()
	if fl.Changed("source") {
		cfg.Sources = f.sources
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("queue-capacity") {
		cfg.QueueCapacity = f.queueCapacity
	}
	if fl.Changed("relink-bodies") {
		cfg.RelinkMissingBodies = f.relinkBodies
	}
	if fl.Changed("ops-addr") {
		cfg.OpsAddr = f.opsAddr
	}
	if len(cfg.Sources) == 0 {
		return config.Config{}, ingest.ErrNoSources
	}
	return cfg, cfg.Validate()
}

// run executes one ingestion pass with cfg. It returns errInterrupted when
// ctx was canceled before the pipeline drained.
func run(ctx context.Context, cfg config.Config) error {
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver,
		observability.RunAttributes(cfg.Workers, cfg.QueueCapacity, len(cfg.Sources))...)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeDB(db)

	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("provision store: %w", err)
	}

	fetcher := source.NewHTTPFetcher(source.Options{
		Timeout:    cfg.Fetch.Timeout,
		Attempts:   uint(cfg.Fetch.Attempts),
		RetryDelay: cfg.Fetch.RetryDelay,
		RPS:        cfg.Fetch.RPS,
	})

	p, err := ingest.New(db, fetcher, ingest.Options{
		Sources:             cfg.Sources,
		Workers:             cfg.Workers,
		QueueCapacity:       cfg.QueueCapacity,
		PollTimeout:         cfg.PollTimeout,
		RelinkMissingBodies: cfg.RelinkMissingBodies,
	})
	if err != nil {
		return err
	}

	if cfg.OpsAddr != "" {
		srv := opsServer(db, p, cfg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.OpsAddr).Msg("ops server")
			}
		}()
		log.Info().Str("addr", cfg.OpsAddr).Msg("ops server listening")
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	_, runErr := p.Run(ctx)
	if ctx.Err() != nil {
		return errInterrupted
	}
	if runErr != nil {
		return runErr
	}

	tc, err := repo.Stats(context.Background(), db)
	if err != nil {
		log.Warn().Err(err).Msg("table counts unavailable")
		return nil
	}
	log.Info().
		Int64("users", tc.Users).
		Int64("channels", tc.Channels).
		Int64("correlations", tc.Correlations).
		Int64("messages", tc.Messages).
		Int64("message_bodies", tc.Bodies).
		Int64("messages_without_body", tc.WithoutBody).
		Msg("store totals")
	return nil
}

func opsServer(db *gorm.DB, p *ingest.Pipeline, cfg config.Config) *http.Server {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, p, cfg)
	return &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
