package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"templog-server/internal/config"
	"templog-server/internal/console"
	"templog-server/internal/db"
	"templog-server/internal/httpapi"
	"templog-server/internal/migrate"
	"templog-server/internal/modules/templog"
	"templog-server/internal/modules/templog/location"
	"templog-server/internal/modules/templog/repository"
	"templog-server/internal/modules/templog/service"
	"templog-server/internal/modules/templog/views"
	"templog-server/internal/mqtt"
)

const shutdownTimeout = 10 * time.Second

// IO carries the operator console streams. A nil Stdin disables the console.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
}

// Run serves TempLog on port until ctx ends or the operator types stop, then
// shuts down in order: HTTP server, MQTT publisher, store.
func Run(ctx context.Context, cfg config.Config, port string, stdio IO, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if stdio.Stdout == nil {
		stdio.Stdout = io.Discard
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.Addr(port),
		"staticDir", cfg.StaticDir,
		"dbDriver", cfg.DBDriver,
		"sqlitePath", cfg.SQLitePath,
		"dbMaxOpenConns", cfg.DBMaxOpenConns,
		"locationProvider", cfg.LocationProvider,
		"redisAddr", cfg.RedisAddr,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	lazy := repository.NewLazyRepository(connectStore(cfg, logger), logger)
	var store repository.TemperatureRepository = lazy
	if cfg.RedisAddr != "" {
		client, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable (continuing without cache)", "error", err)
		} else {
			store = repository.NewCachedRepository(lazy, client, cfg.CacheTTL, logger)
		}
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close", "error", err)
		}
	}()

	locator, err := newLocator(cfg, logger)
	if err != nil {
		return err
	}

	var publisher service.RecordPublisher
	var mqttPublisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		mqttPublisher = mqtt.NewPublisher(cfg, logger)
		// Use a short timeout for the initial connect so a missing broker does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := mqttPublisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without record events)", "error", err)
		}
		publisher = mqttPublisher
	}

	svc := service.NewService(store, locator, publisher, logger)
	mux := httpapi.NewMux(store, cfg.StaticDir)
	templog.RegisterFeature(mux, svc, logger)

	srv := httpapi.NewServer(cfg.Addr(port), mux, logger)
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		fmt.Fprintf(stdio.Stdout, "To access server: http://localhost:%d\n", tcp.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	// Establish the store connection in the background so the first request
	// does not pay for it.
	go func() {
		if err := store.Ping(ctx); err != nil {
			logger.Warn("store not ready", "error", err)
		}
	}()

	consoleCtx, cancelConsole := context.WithCancel(ctx)
	defer cancelConsole()
	stopCh := make(chan struct{})
	if stdio.Stdin != nil {
		go func() {
			if !console.Run(consoleCtx, stdio.Stdin, stdio.Stdout, func() { close(stopCh) }) {
				logger.Debug("console closed")
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("signal received")
	case <-stopCh:
		logger.Info("stop command received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("http shutting down")
	shutdownErr := srv.Shutdown(shutdownCtx)

	if mqttPublisher != nil {
		logger.Info("mqtt disconnecting")
		mqttPublisher.Disconnect()
	}

	if shutdownErr != nil {
		return shutdownErr
	}
	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// connectStore opens the database, applies migrations and builds the SQL
// repository. It runs once, on first use of the store.
func connectStore(cfg config.Config, logger *slog.Logger) repository.ConnectFunc {
	return func(ctx context.Context) (repository.TemperatureRepository, error) {
		if cfg.DBConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.DBConnectTimeout)
			defer cancel()
		}

		dbConn, err := db.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := migrate.Run(ctx, dbConn, cfg.DBDriver); err != nil {
			_ = db.Close(dbConn)
			return nil, err
		}
		repo, err := repository.NewRepository(dbConn, cfg.DBDriver)
		if err != nil {
			_ = db.Close(dbConn)
			return nil, err
		}
		return repo, nil
	}
}

func newLocator(cfg config.Config, logger *slog.Logger) (location.Provider, error) {
	switch cfg.LocationProvider {
	case config.LocationProviderStatic:
		return location.NewStaticProvider(cfg.LocationLat, cfg.LocationLong)
	case config.LocationProviderIPAPI:
		return location.NewIPAPIProvider(location.IPAPIConfig{
			URL:           cfg.LocationURL,
			Timeout:       cfg.LocationTimeout,
			RatePerMinute: cfg.LocationRatePerMinute,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported location provider %q", cfg.LocationProvider)
	}
}
