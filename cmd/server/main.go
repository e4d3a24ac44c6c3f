// Command server runs the medication adherence backend: the REST API, the
// pillbox device bridge, and the background jobs that sweep overdue doses
// and watch device health.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pildhora/go-adherence-backend/internal/config"
	"github.com/pildhora/go-adherence-backend/internal/device"
	httpapi "github.com/pildhora/go-adherence-backend/internal/http"
	"github.com/pildhora/go-adherence-backend/internal/observability"
	"github.com/pildhora/go-adherence-backend/internal/repo"
	"github.com/pildhora/go-adherence-backend/internal/scheduler"
	"github.com/pildhora/go-adherence-backend/internal/sysutil"
)

// version is stamped into traces and the startup log line.
const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate database failed")
	}

	svcs := httpapi.NewServices(db, cfg, logger)

	// The simulated pillbox stands in for the BLE transport. Lid openings
	// flow through the bridge into the intake ledger.
	transport := device.NewSimTransport(cfg.Device.Compartments, logger)
	bridge := device.NewBridge(svcs.Ledger, cfg.Device.PatientID, cfg.Device.AcceptWindow, logger)
	detach := bridge.Attach(ctx, transport)
	defer detach()

	sched, err := scheduler.Start(svcs.Ledger, svcs.Notify, transport, scheduler.Options{
		SweepInterval:  cfg.SweepInterval,
		AcceptWindow:   cfg.Device.AcceptWindow,
		HealthInterval: cfg.Device.HealthInterval,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, svcs, transport, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sched.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("scheduler shutdown")
	}
	transport.Disconnect()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	if shutdownOTel != nil {
		if err := shutdownOTel(shutCtx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info().Msg("stopped")
}
