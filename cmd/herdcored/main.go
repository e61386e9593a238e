// Command herdcored runs the telemetry ingestion server: the collar and
// companion gateways, read-side queries, and the Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"herdcore/internal/adapters/ingest"
	"herdcore/internal/archive"
	"herdcore/internal/config"
	"herdcore/internal/core"
	"herdcore/internal/infra/metrics/prom"
	"herdcore/pkg/domain"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		logger.Fatal().Err(err).Str("time_zone", cfg.TimeZone).Msg("invalid time zone")
	}

	store, err := core.OpenPersistentStore(core.StorageConfig{
		Driver:      core.StorageDriver(cfg.StorageDriver),
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, loc)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to open storage")
	}

	recorder, err := prom.NewRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	options := []core.Option{
		core.WithMetricsRecorder(core.TeeMetrics(recorder, core.NewVarsRecorder("herdcore_service"))),
	}
	if cfg.Debug || cfg.Verbose {
		options = append(options, core.WithTracer(core.NewLogTracer(logger)))
	}
	service := core.NewService(store, loc, options...)

	ctx := context.Background()
	for _, seed := range cfg.SeedUsers {
		if _, err := service.RegisterUser(ctx, domain.User{
			Username:    seed.Username,
			DisplayName: seed.DisplayName,
			Active:      true,
		}); err != nil {
			logger.Warn().Err(err).Str("username", seed.Username).Msg("seed user not created")
		}
	}

	objects, err := archive.Open(ctx, archive.Settings{
		Driver: archive.Driver(cfg.ArchiveDriver),
		FSRoot: cfg.ArchiveRoot,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.ArchiveDriver).Msg("failed to open archive store")
	}
	archiver := archive.NewArchiver(objects, store)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", ingest.NewHandler(service, cfg.Tokens, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		logger.Info().Msg("shutting down")

		// Archive yesterday's ledger on the way out so a redeploy never
		// leaves a finished day unarchived.
		yesterday := domain.DateOf(time.Now().In(loc).AddDate(0, 0, -1))
		archiveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, created, err := archiver.ArchiveDay(archiveCtx, yesterday); err != nil {
			logger.Warn().Err(err).Stringer("date", yesterday).Msg("ledger archive failed")
		} else if created {
			logger.Info().Stringer("date", yesterday).Msg("ledger archived")
		}
		cancel()

		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(stopCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("listen", cfg.Listen).Str("storage", cfg.StorageDriver).Msg("herdcored listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
