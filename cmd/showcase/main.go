package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/helioviz/solar-layer-engine/internal/adapter/http"
	kafkaadapter "github.com/helioviz/solar-layer-engine/internal/adapter/kafka"
	"github.com/helioviz/solar-layer-engine/internal/adapter/pngsurface"
	"github.com/helioviz/solar-layer-engine/internal/adapter/solarapi"
	"github.com/helioviz/solar-layer-engine/internal/config"
	"github.com/helioviz/solar-layer-engine/internal/layers"
	"github.com/helioviz/solar-layer-engine/internal/observability"
	"github.com/helioviz/solar-layer-engine/internal/showcase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	client := solarapi.NewClient(cfg.SolarAPIKey, cfg.SolarBaseURL, cfg.SolarTimeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundle, err := client.GetDataLayers(ctx, cfg.BuildingLat, cfg.BuildingLng, cfg.RadiusMeters)
	if err != nil {
		logger.Error("failed to resolve data layers", "error", err)
		os.Exit(1)
	}

	loader := layers.NewLoader(client, logger, metrics)
	cache := layers.NewCache(cfg.CacheCapacity)
	preloader := layers.NewPreloader(loader, cache, bundle.RasterURLs, cfg.DaylightOnly, logger, metrics)

	surface, err := pngsurface.New(cfg.OutputDir, logger)
	if err != nil {
		logger.Error("failed to create output surface", "error", err)
		os.Exit(1)
	}

	observers := showcase.Observers{&logObserver{logger: logger}}
	if cfg.KafkaEnabled {
		events := kafkaadapter.NewEventWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := events.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		observers = append(observers, events)
		logger.Info("kafka event publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka event publishing disabled")
	}

	orch := showcase.New(preloader, surface, observers,
		showcase.WithLogger(logger),
		showcase.WithMetrics(metrics),
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, loader, client, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	orch.Start(ctx)

	select {
	case <-orch.Done():
		logger.Info("showcase finished", "status", orch.Status().String())
	case <-ctx.Done():
		orch.Abort()
		<-orch.Done()
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// logObserver narrates the session into the structured log.
type logObserver struct {
	logger *slog.Logger
}

func (o *logObserver) StepChanged(index int, step showcase.Step) {
	o.logger.Info("showcase step",
		"step", index,
		"layer", step.Layer,
		"day_of_year", step.DayOfYear,
		"duration", step.Duration,
	)
}

func (o *logObserver) ProgressUpdated(_, _ float64) {}

func (o *logObserver) Completed() {
	o.logger.Info("showcase run complete")
}
