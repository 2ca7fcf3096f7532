package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/pairing"
	"github.com/Relicjamin-jv/wolf/internal/core/runners"
	"github.com/Relicjamin-jv/wolf/internal/core/sessions"
	"github.com/Relicjamin-jv/wolf/internal/core/state"
	httphandlers "github.com/Relicjamin-jv/wolf/internal/handlers/http"
	hostexec "github.com/Relicjamin-jv/wolf/internal/infrastructure/exec"
	"github.com/Relicjamin-jv/wolf/internal/infrastructure/middleware"
	"github.com/Relicjamin-jv/wolf/internal/infrastructure/monitoring"
	"github.com/Relicjamin-jv/wolf/pkg/config"
	"github.com/Relicjamin-jv/wolf/pkg/crypto"
	"github.com/Relicjamin-jv/wolf/pkg/logger"
	"github.com/Relicjamin-jv/wolf/pkg/tracing"

	"crypto/rsa"
	"crypto/x509"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/wolf.yaml",
		"./configs/wolf.yaml",
		"/etc/wolf/wolf.yaml",
		"wolf.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	requestLog := logger.NewContextLogger(zapLogger)

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "wolf",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Host certificate pair used for pairing
	hostCert, hostKey, err := loadOrCreateHostCert(cfg, log)
	if err != nil {
		log.Fatalw("failed to set up host certificate", "error", err)
	}

	// Monitoring
	collector := monitoring.NewPrometheusCollector()

	// Event bus: the only communication path between subsystems
	bus := events.NewBus(log, events.WithPublishHook(func(eventType events.EventType) {
		collector.RecordEventPublished(string(eventType))
	}))

	// Runner factory with the host exec layer
	executor := hostexec.NewProcessExecutor(log)
	dockerClient := hostexec.NewDockerClient(cfg.Paths.DockerSocket, log)
	factory := runners.NewFactory(executor, dockerClient, log)

	// Durable apps/paired-clients state
	stateCfg, err := state.LoadOrDefault(cfg.Paths.StateConfig, bus, factory, log)
	if err != nil {
		log.Fatalw("failed to load state config", "error", err)
	}
	log.Infow("state loaded",
		"hostname", stateCfg.Hostname,
		"apps", len(stateCfg.Apps()),
		"paired_clients", len(stateCfg.PairedClients()),
	)

	collector.SetPairedClients(len(stateCfg.PairedClients()))

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCertificateCheck(cfg.Paths.Certificate, cfg.Paths.PrivateKey, 30*time.Second, 2*time.Second)
	if cfg.Paths.StateConfig != "" {
		healthChecker.AddFileCheck("state_config", cfg.Paths.StateConfig, 30*time.Second, 2*time.Second)
	}

	checksCtx, stopChecks := context.WithCancel(context.Background())
	defer stopChecks()
	healthChecker.StartBackgroundChecks(checksCtx)

	// Session manager
	manager := sessions.NewManager(bus, log, collector)

	// Pairing
	pending := pairing.NewPendingList()

	// HTTP handlers
	pairHandler := httphandlers.NewPairHandler(stateCfg, pending, bus, hostCert, hostKey, collector, log)
	sessionHandler := httphandlers.NewSessionHandler(stateCfg, manager, bus, cfg, log)
	eventsHandler := httphandlers.NewEventsHandler(bus, log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestLoggerMiddleware(requestLog))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	// Client-facing pairing endpoint (public)
	pairHandler.SetupRoutes(router)

	// Admin API
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	pairHandler.SetupAdminRoutes(api)
	sessionHandler.SetupRoutes(api)
	eventsHandler.SetupRoutes(api)

	if cfg.Auth.JWTSecret != "" {
		token, err := middleware.GenerateAdminToken(cfg.Auth.JWTSecret, "startup", cfg.Auth.AccessTokenTTL)
		if err != nil {
			log.Fatalw("failed to issue admin token", "error", err)
		}
		log.Infow("admin api token issued", "token", token)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"sessions":  len(manager.List()),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if !healthChecker.IsReady(ctx) {
			c.JSON(503, gin.H{
				"status":    "not_ready",
				"timestamp": time.Now(),
			})
			return
		}
		c.JSON(200, gin.H{
			"status":    "ready",
			"timestamp": time.Now(),
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.API.Address,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Wolf host on %s", cfg.API.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down Wolf host...")

	// Stop every active session; teardown runs through the bus like any
	// other stop.
	for _, session := range manager.List() {
		bus.Publish(&events.StopStreamEvent{SessionID: session.SessionID})
	}

	eventsHandler.Close()
	manager.Close()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("Wolf host stopped")
}

// loadOrCreateHostCert loads the host certificate pair, generating and
// persisting a fresh self-signed one on first run.
func loadOrCreateHostCert(cfg *config.Config, log *zap.SugaredLogger) (*x509.Certificate, *rsa.PrivateKey, error) {
	if crypto.CertExists(cfg.Paths.PrivateKey, cfg.Paths.Certificate) {
		cert, err := crypto.CertFromFile(cfg.Paths.Certificate)
		if err != nil {
			return nil, nil, err
		}
		key, err := crypto.KeyFromFile(cfg.Paths.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		return cert, key, nil
	}

	log.Infow("generating host certificate",
		"certificate", cfg.Paths.Certificate,
		"private_key", cfg.Paths.PrivateKey,
	)
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	cert, err := crypto.GenerateX509(key)
	if err != nil {
		return nil, nil, err
	}
	if err := crypto.WriteToDisk(key, cfg.Paths.PrivateKey, cert, cfg.Paths.Certificate); err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}
