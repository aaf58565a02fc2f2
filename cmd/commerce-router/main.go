package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/aggregator"
	"github.com/mealcart/commerce-router/internal/config"
	"github.com/mealcart/commerce-router/internal/kafka"
	"github.com/mealcart/commerce-router/internal/metrics"
	"github.com/mealcart/commerce-router/internal/providers/doordash"
	"github.com/mealcart/commerce-router/internal/providers/instacart"
	"github.com/mealcart/commerce-router/internal/providers/mock"
	"github.com/mealcart/commerce-router/internal/reliability"
	"github.com/mealcart/commerce-router/internal/routing"
	"github.com/mealcart/commerce-router/internal/server"
	"github.com/mealcart/commerce-router/internal/types"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	router   *routing.Router
	server   *server.Server
	consumer *kafka.Consumer
	db       *sql.DB
	logger   *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	agg := aggregator.NewAggregator(logger)
	agg.SetDefaultTimeout(cfg.Router.ProviderTimeout)
	if err := registerProviders(agg, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	app := &Application{config: cfg, logger: logger}

	store, err := app.buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics store: %w", err)
	}

	learner := reliability.NewLearner(logger)
	app.router = routing.NewRouter(agg, learner, store, cfg.Router.TokenTTL, logger)

	if cfg.Router.WarmReliability {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		app.router.WarmFromStore(ctx, agg.ListProviders())
		cancel()
	}

	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic,
			func(ctx context.Context, outcome types.OrderOutcome) error {
				return app.router.RecordOutcome(ctx, outcome)
			}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create outcome consumer: %w", err)
		}
		app.consumer = consumer
	}

	serverInstance, err := server.NewServer(app.router, cfg.ToServerConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	app.server = serverInstance

	return app, nil
}

// buildStore selects the metrics store backend from configuration.
func (app *Application) buildStore(cfg *config.Config) (metrics.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		store := metrics.NewPGStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		app.db = db
		app.logger.Info("Using postgres metrics store")
		return store, nil
	case "redis":
		store := metrics.NewRedisStore(&redis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		app.logger.WithField("addr", cfg.Storage.RedisAddr).Info("Using redis metrics store")
		return store, nil
	default:
		app.logger.Info("Using in-memory metrics store")
		return metrics.NewMemoryStore(), nil
	}
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting commerce router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	if app.consumer != nil {
		go func() {
			if err := app.consumer.Start(ctx); err != nil {
				app.logger.WithError(err).Error("Outcome consumer stopped")
			}
		}()
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	if app.consumer != nil {
		if err := app.consumer.Close(); err != nil {
			app.logger.WithError(err).Error("Consumer shutdown error")
		}
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.WithError(err).Error("Database close error")
		}
	}

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// registerProviders registers all configured providers with the aggregator
func registerProviders(agg *aggregator.Aggregator, cfg *config.Config, logger *logrus.Logger) error {
	providersRegistered := 0

	if cfg.Providers.Instacart != nil {
		provider := instacart.NewInstacartProvider(cfg.Providers.Instacart, logger)
		agg.RegisterProvider(aggregator.ProviderEntry{
			Provider:     provider,
			Timeout:      cfg.Providers.Instacart.Timeout,
			MockFallback: cfg.Providers.Instacart.MockFallback,
		})
		logger.WithField("provider", "instacart").Info("Instacart provider registered")
		providersRegistered++
	}

	if cfg.Providers.DoorDash != nil {
		provider := doordash.NewDoorDashProvider(cfg.Providers.DoorDash, logger)
		agg.RegisterProvider(aggregator.ProviderEntry{
			Provider:     provider,
			Timeout:      cfg.Providers.DoorDash.Timeout,
			MockFallback: cfg.Providers.DoorDash.MockFallback,
		})
		logger.WithField("provider", "doordash").Info("DoorDash provider registered")
		providersRegistered++
	}

	if cfg.Providers.Mock != nil && cfg.Providers.Mock.Enabled {
		provider := mock.NewMockProvider(cfg.Providers.Mock.Name)
		provider.Latency = cfg.Providers.Mock.Latency
		if cfg.Providers.Mock.CommissionRate > 0 {
			provider.CommissionRate = cfg.Providers.Mock.CommissionRate
		}
		agg.RegisterProvider(aggregator.ProviderEntry{Provider: provider})
		logger.WithField("provider", provider.GetProviderName()).Info("Mock provider registered")
		providersRegistered++
	}

	if providersRegistered == 0 {
		return fmt.Errorf("no providers were registered - check your configuration and API keys")
	}

	logger.WithField("count", providersRegistered).Info("Provider registration completed")
	return nil
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  INSTACART_API_KEY                Instacart API key\n")
	fmt.Fprintf(os.Stderr, "  DOORDASH_API_KEY                 DoorDash Drive API key\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_PORT             Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_LOG_LEVEL        Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_LOG_FORMAT       Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_DEFAULT_PRESET   Default weight preset\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_POSTGRES_DSN     Postgres DSN for the metrics store\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_REDIS_ADDR       Redis address for the metrics store\n")
	fmt.Fprintf(os.Stderr, "  COMMERCE_ROUTER_KAFKA_BROKERS    Comma-separated Kafka brokers\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  INSTACART_API_KEY=ic-xxx DOORDASH_API_KEY=dd-xxx %s\n", os.Args[0])
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("Commerce Router v1.0.0\n")
		os.Exit(0)
	}

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
