// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stone-hmi-service/internal/config"
	"stone-hmi-service/internal/discovery"
	serialscan "stone-hmi-service/internal/discovery/serial"
	"stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/handler"
	"stone-hmi-service/internal/metrics"
	"stone-hmi-service/internal/protocol"
	"stone-hmi-service/internal/routes"
	"stone-hmi-service/internal/service"
	"stone-hmi-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	metricsReg     *prometheus.Registry
	displayMetrics *metrics.DisplayMetrics

	driverRegistry *driver.Registry
	scanners       *discovery.ScannerManager
	eventBus       *handler.EventBus
	displayService *service.DisplayService
	eventStream    *handler.WebSocketHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// @title Stone HMI Service API
// @version 1.0.0
// @description Drives a Stone HMI display over serial, USB or a TCP serial bridge

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "stone-hmi-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.initializeMetrics()
	app.initializeDriverRegistry()
	app.initializeDiscovery()

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initializeServer()

	return app, nil
}

func (app *Application) initializeMetrics() {
	if !app.config.Metrics.Enabled {
		return
	}
	app.metricsReg = metrics.NewRegistry()
	app.displayMetrics = metrics.NewDisplayMetrics(app.metricsReg, app.config.Metrics.Namespace)

	app.logger.Info("Metrics initialized", zap.String("path", app.config.Metrics.Path))
}

// initializeDriverRegistry sets up the display model registry
func (app *Application) initializeDriverRegistry() {
	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_models", len(app.driverRegistry.ListModels())),
	)
}

func (app *Application) initializeDiscovery() {
	display := app.config.Display
	scanCfg := serialscan.DefaultConfig()
	scanCfg.HeaderHigh, scanCfg.HeaderLow = app.driverRegistry.ResolveHeader(display.Model, display.HeaderHigh, display.HeaderLow)

	app.scanners = discovery.NewScannerManager(app.logger)
	app.scanners.RegisterScanner(serialscan.NewScanner(app.logger, scanCfg))
}

// initializeServices creates the event bus and the display service
func (app *Application) initializeServices() error {
	connCfg := app.config.Connection
	if err := protocol.ValidateConfig(connCfg); err != nil {
		if app.config.Display.ConnectOnStart {
			return fmt.Errorf("invalid connection config: %w", err)
		}
		app.logger.Warn("Connection config is incomplete; connect will fail until it is fixed", zap.Error(err))
	}

	app.eventBus = handler.NewEventBus(app.logger)

	var observer service.LinkObserver
	if app.displayMetrics != nil {
		observer = app.displayMetrics
	}

	app.displayService = service.NewDisplayService(
		app.config,
		app.driverRegistry,
		func() (protocol.Connection, error) {
			return protocol.CreateConnection(connCfg, app.logger)
		},
		observer,
		handler.NewDisplayEventHandler(app.eventBus, app.logger),
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.displayService,
		app.driverRegistry,
		app.scanners,
		app.eventBus,
		app.metricsReg,
		app.displayMetrics,
	)
	router := routerManager.SetupRouter()
	app.eventStream = routerManager.EventStream()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// startBackgroundServices starts the event pipeline, the display link and
// its pollers
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.goBackground(func() { app.eventBus.Start() })
	app.goBackground(func() { app.eventStream.Run(ctx) })

	if app.config.Display.ConnectOnStart {
		connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
		if err := app.displayService.Connect(connectCtx); err != nil {
			app.logger.Error("Failed to connect display on start; use the connect endpoint to retry", zap.Error(err))
		}
		cancelConnect()
	}

	app.goBackground(func() { app.displayService.StartEventPolling(ctx) })
	app.goBackground(func() {
		app.displayService.StartHealthMonitoring(ctx, app.config.Display.HealthCheckInterval)
	})

	app.logger.Info("Background services started")
}

func (app *Application) goBackground(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "stone-hmi-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Pollers first, so nothing touches the link while it closes
	app.cancel()
	app.eventBus.Stop()
	app.wg.Wait()

	if err := app.displayService.Disconnect(ctx, "service shutdown"); err != nil {
		app.logger.Error("Display disconnect error", zap.Error(err))
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server and blocks until shutdown
func (app *Application) Start() error {
	app.startBackgroundServices()

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.waitForShutdown()

	return nil
}
