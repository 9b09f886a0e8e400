package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"squares/auth"
	"squares/config"
	"squares/customer"
	"squares/db"
	"squares/listing"
	"squares/logging"
	"squares/migrations"
	"squares/moderation"
	"squares/notify"
	"squares/outbox"
	"squares/vendors"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "api",
		Short:         "Property marketplace API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath, config.Default())
			if err != nil {
				return err
			}
			if verbose {
				cfg.Logging.Level = "debug"
			}
			logger, err = logging.New(cfg.Logging)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "squares.toml", "path to TOML config")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, outbox relay and notification hub",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the embedded database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(cmd.Context(), cfg, logger)
			},
		},
	)
	return root
}

func migrate(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required (or set DATABASE_URL)")
	}
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		return err
	}
	names, _ := migrations.Names()
	logger.Info("migrations applied", zap.Strings("files", names))
	return nil
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := cfg.RequireServer(); err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			return err
		}
	}

	hub := notify.NewHub(cfg.Notify.Buffer, logger.Named("notify"))
	writer := outbox.NewWriter()
	listingRepo := listing.NewRepository(pool)
	vendorRepo := vendors.NewRepository(pool)

	server := &Server{
		authService:       auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret).WithTokenTTL(cfg.Auth.TokenTTL.Duration),
		listingService:    listing.NewService(pool, listingRepo, writer).WithLogger(logger.Named("listing")),
		customers:         customer.NewRepository(pool),
		moderationService: moderation.NewService(pool, listingRepo, moderation.NewRepository(pool), writer).WithLogger(logger.Named("moderation")),
		vendorService:     vendors.NewService(vendorRepo),
		vendors:           vendorRepo,
		notifications:     hub,
		logger:            logger.Named("http"),
	}

	relay := outbox.NewRelay(outbox.NewPGStore(pool), notify.NewOutboxPublisher(hub), outbox.RelayConfig{
		PollInterval: cfg.Outbox.PollInterval.Duration,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, logger.Named("outbox"))

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           server.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Duration,
		IdleTimeout:       cfg.Server.IdleTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("api stopped", zap.Error(err))
	return err
}
