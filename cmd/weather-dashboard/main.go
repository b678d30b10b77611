package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-dashboard/internal/api/http"
	"github.com/i474232898/weather-dashboard/internal/config"
	"github.com/i474232898/weather-dashboard/internal/frames"
	"github.com/i474232898/weather-dashboard/internal/logger"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/weather"
	"github.com/i474232898/weather-dashboard/internal/weather/providers"
)

func main() {
	configPath := flag.String("config", os.Getenv("DASHBOARD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := logger.Init("info", "json"); err != nil {
		panic(err)
	}

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config: %v", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logger.Fatal("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTP.Timeout,
	}

	// Durable frame cache backend.
	backend, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path())
	if err != nil {
		logger.Fatal("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer backend.Close()

	alertStore := store.NewAlertMemoryStore(cfg.Alerts.MaxHistory, cfg.Alerts.MaxAge)

	// Providers with resilience (backoff + circuit breaker).
	openMeteo := providers.NewOpenMeteoProvider(httpClient, cfg.Feeds.ForecastURL, cfg.Feeds.AirQualityURL, cfg.Feeds.ForecastDays)
	sources := weather.Sources{
		Frames:     providers.NewRainViewerProvider(httpClient, cfg.Feeds.FramesURL),
		Alerts:     providers.NewNWSProvider(httpClient, cfg.Feeds.AlertsURL, cfg.HTTP.UserAgent),
		Models:     openMeteo,
		AirQuality: openMeteo,
	}

	service := weather.NewService(weather.Config{
		PrimaryModel:     cfg.Models.Primary,
		SecondaryModel:   cfg.Models.Secondary,
		FramesInterval:   cfg.Frames.PollInterval,
		AlertsInterval:   cfg.Alerts.PollInterval,
		FetchTimeout:     cfg.FetchTimeout,
		FrameMaxAge:      cfg.Frames.MaxAge,
		TileTemplate:     cfg.Feeds.TileTemplate,
		TileHost:         cfg.Feeds.TileHost,
		RadarTiles:       frames.DefaultTileOptions,
		SatelliteTiles:   frames.TileOptions{Size: 256, Color: 0, Options: "0_0"},
		PlaybackInterval: cfg.Playback.Interval,
		PlaybackGated:    cfg.Playback.Gated,
	}, sources, backend, alertStore)

	if err := service.Start(); err != nil {
		logger.Fatal("failed to start dashboard service: %v", err)
	}
	defer service.Stop()

	if cfg.Location.Set() {
		loc := cfg.Location.Location()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
		if _, err := service.SetLocation(ctx, loc); err != nil {
			logger.Warn("initial location %s not loaded: %v", loc.Key(), err)
		}
		cancel()
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-dashboard",
			"pollers": service.Stats(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Error("fiber server stopped: %v", err)
		}
	}()
	logger.Info("listening on :%s", cfg.Server.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown: %v", err)
	}
}
