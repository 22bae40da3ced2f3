package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/gateway"
	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/pii"
	"github.com/veilhq/veil/internal/policy"
	"github.com/veilhq/veil/internal/vault"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("Veil %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Veil",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Privacy policy with durable local state
	policyStore := policy.NewFileStore(cfg.Privacy.PolicyFile)
	pol := policy.NewContext(policyStore, log.WithComponent("policy"))
	if _, err := os.Stat(cfg.Privacy.PolicyFile); os.IsNotExist(err) {
		// Fresh install, apply the configured default level
		if err := pol.SetLevel(pii.Level(cfg.Privacy.DefaultLevel)); err != nil {
			log.Warn("Failed to apply default privacy level", zap.Error(err))
		}
	}

	// Audit trail
	var auditStore audit.Store
	if cfg.Audit.Enabled {
		if cfg.Audit.DatabaseURL != "" {
			auditStore, err = audit.NewPostgresStore(&cfg.Audit, log.WithComponent("audit").Logger)
			if err != nil {
				log.Fatal("Failed to initialize audit store", zap.Error(err))
			}
		} else {
			auditStore = audit.NewMemoryStore(&cfg.Audit)
			log.Info("Audit trail using in-memory store")
		}
		defer auditStore.Close()
	}

	// Token vault
	var tokenVault *vault.RedisVault
	var resolver gateway.TokenResolver
	if cfg.Vault.Enabled {
		tokenVault, err = vault.NewRedisVault(&cfg.Vault, log.WithComponent("vault").Logger)
		if err != nil {
			log.Fatal("Failed to initialize token vault", zap.Error(err))
		}
		defer tokenVault.Close()
		resolver = tokenVault
	}

	// Create gateway server
	server, err := gateway.New(cfg, log, pol, auditStore, resolver)
	if err != nil {
		log.Fatal("Failed to create gateway server", zap.Error(err))
	}
	if tokenVault != nil {
		server.Engine().SetTokenStore(tokenVault)
	}

	// Reload log level on config changes
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		if err := log.SetLevel(newCfg.Logging.Level); err != nil {
			log.Warn("Failed to apply new log level", zap.Error(err))
			return
		}
		log.Info("Log level updated", zap.String("level", newCfg.Logging.Level))
	}); err != nil {
		log.Warn("Failed to watch configuration", zap.Error(err))
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
