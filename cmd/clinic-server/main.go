package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oncoclinic/infusion/internal/config"
	"github.com/oncoclinic/infusion/internal/domain/appointment"
	"github.com/oncoclinic/infusion/internal/domain/capacity"
	"github.com/oncoclinic/infusion/internal/domain/dosing"
	"github.com/oncoclinic/infusion/internal/domain/duration"
	"github.com/oncoclinic/infusion/internal/domain/patient"
	"github.com/oncoclinic/infusion/internal/domain/prescription"
	"github.com/oncoclinic/infusion/internal/domain/protocol"
	"github.com/oncoclinic/infusion/internal/platform/auth"
	"github.com/oncoclinic/infusion/internal/platform/db"
	"github.com/oncoclinic/infusion/internal/platform/metrics"
	"github.com/oncoclinic/infusion/internal/platform/middleware"
	"github.com/oncoclinic/infusion/internal/platform/validation"
	"github.com/oncoclinic/infusion/internal/platform/websocket"
	"github.com/oncoclinic/infusion/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Oncology infusion clinic API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(capacityCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			writeMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func writeMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func capacityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Inspect the daily capacity configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective daily limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			capCfg, err := cfg.Capacity()
			if err != nil {
				return err
			}
			writeCapacity(cmd.OutOrStdout(), capCfg)
			return nil
		},
	})
	return cmd
}

func writeCapacity(w io.Writer, c capacity.Config) {
	fmt.Fprintf(w, "hours:         %s-%s\n", c.OpensAt, c.ClosesAt)
	days := make([]string, 0, len(c.Weekdays))
	sorted := append([]time.Weekday(nil), c.Weekdays...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, d := range sorted {
		days = append(days, d.String()[:3])
	}
	fmt.Fprintf(w, "weekdays:      %v\n", days)
	fmt.Fprintf(w, "consultations: %d\n", c.Consultations)
	fmt.Fprintf(w, "procedures:    %d\n", c.Procedures)
	for _, b := range []duration.Bucket{duration.Rapid, duration.Medium, duration.Long, duration.ExtraLong} {
		fmt.Fprintf(w, "infusion %-12s %d\n", b.Label()+":", c.Infusion[b])
	}
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		TimeZone: cfg.ClinicTimezone,
	}
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	capCfg, err := cfg.Capacity()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid capacity config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(reg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	schema := validation.New()
	e.Validator = schema

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.StatsFromPool(pool)))
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))
	}

	verify := auth.JWTMiddleware(jwtConfig(cfg))
	authn := verify
	if cfg.IsDev() {
		var devVerify echo.MiddlewareFunc
		if cfg.AuthSigningKey != "" {
			devVerify = verify
		}
		authn = auth.DevAuthMiddleware(devVerify)
		logger.Warn().Msg("development auth enabled: requests without a token run as " + auth.DevUserID)
	}

	apiV1 := e.Group("/api/v1", authn)
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	hub := websocket.NewHub(logger)
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins...).RegisterRoutes(e.Group("", authn))

	tx := db.NewPoolTx(pool)

	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	protocolSvc := protocol.NewService(protocol.NewRepoPG(pool), schema)
	protocol.NewHandler(protocolSvc).RegisterRoutes(apiV1)

	dosing.NewHandler().RegisterRoutes(apiV1)

	rxSvc := prescription.NewService(
		prescription.NewRepoPG(pool),
		protocolSvc,
		patientSvc,
		prescription.NewValidator(schema),
		tx,
		m,
		logger.With().Str("component", "prescription").Logger(),
	)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)

	apptSvc := appointment.NewService(appointment.NewRepoPG(pool), rxSvc, appointment.Options{
		Capacity: capCfg,
		Location: cfg.Location(),
		Schema:   schema,
		Tx:       tx,
		Events:   hub,
		Metrics:  m,
		Logger:   logger.With().Str("component", "agenda").Logger(),
	})
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", cfg.ClinicTimezone).Msg("starting server")
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
