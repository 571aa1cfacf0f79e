package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/endoflow/endoflow/internal/config"
	"github.com/endoflow/endoflow/internal/domain/toothchart"
	"github.com/endoflow/endoflow/internal/platform/auth"
	"github.com/endoflow/endoflow/internal/platform/db"
	"github.com/endoflow/endoflow/internal/platform/events"
	"github.com/endoflow/endoflow/internal/platform/middleware"
	"github.com/endoflow/endoflow/internal/platform/validate"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "endoflow-server",
		Short:        "Dental tooth chart API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(maintenanceCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the appointment event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig is shared by every subcommand that touches the database.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, newLogger(os.Getenv("ENV")), err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// clinicScope adapts db.WithClinic to the ScopeFunc shape used by the
// consumer and the job worker.
func clinicScope(pool *pgxpool.Pool) func(ctx context.Context, clinicID string, fn func(ctx context.Context) error) error {
	return func(ctx context.Context, clinicID string, fn func(ctx context.Context) error) error {
		return db.WithClinic(ctx, pool, clinicID, fn)
	}
}

func newService(pool *pgxpool.Pool, logger zerolog.Logger) *toothchart.Service {
	return toothchart.NewService(toothchart.NewStorePG(pool), logger, nil)
}

// newRouter builds the echo instance. pool may be nil in tests that only
// exercise routes which never reach the database.
func newRouter(cfg *config.Config, pool *pgxpool.Pool, svc *toothchart.Service, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Clinic-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, pool))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger).Middleware())
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(cfg.DefaultClinic))
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.Audit(logger, nil))
	if pool != nil {
		apiV1.Use(db.ClinicMiddleware(pool, cfg.DefaultClinic))
	}

	toothchart.NewHandler(svc).RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc := newService(pool, logger)
	e := newRouter(cfg, pool, svc, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if cfg.EventsEnabled() {
		consumer := events.NewConsumer(events.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaAppointmentTopic,
			GroupID:       cfg.KafkaGroupID,
			DefaultClinic: cfg.DefaultClinic,
		}, svc.HandleAppointmentEvent, clinicScope(pool), logger)
		g.Go(func() error { return consumer.Run(gctx) })
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaAppointmentTopic).Msg("appointment consumer started")
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
