// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"talento-local/internal/api"
	"talento-local/internal/api/middleware"
	"talento-local/internal/assignment"
	"talento-local/internal/common/auth"
	awsclient "talento-local/internal/common/aws"
	"talento-local/internal/common/camunda"
	"talento-local/internal/common/config"
	"talento-local/internal/common/database"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/observability"
	"talento-local/internal/notification"
	"talento-local/internal/search"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": "api"})

	zapLog.Info("Starting talento-local API...", zap.String("environment", cfg.App.Environment))

	obs := observability.New("talento-local-api")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.Connect(ctx, func() (*database.PostgresClient, error) {
			return database.NewPostgres(cfg.Database.Postgres)
		})
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pg.DB); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Schema applied")
	}

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.Connect(ctx, func() (*database.RedisClient, error) {
			return database.NewRedis(cfg.Database.Redis)
		})
		return err
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()

	checks := map[string]func(context.Context) error{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}

	// --- Search (optional) ---
	var jobIndex *search.JobIndex
	if cfg.Search.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}

		jobIndex = search.NewJobIndex(es.Client, cfg.Search.Index, log)
		if err := jobIndex.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("search index setup failed", zap.Error(err))
		}
		checks["elasticsearch"] = es.Ping
	}

	// --- Notifications ---
	sender, closeSender, err := newSender(ctx, cfg, log, zapLog)
	if err != nil {
		zapLog.Fatal("notification transport setup failed", zap.Error(err))
	}
	defer closeSender()
	dispatcher := notification.NewDispatcher(sender, config.GetDuration(cfg.Assignment.NotifyTimeout), log)

	// --- Assignment service ---
	store := assignment.NewPostgresStore(pg.DB,
		config.GetDuration(cfg.Assignment.LockTimeout),
		config.GetDuration(cfg.Assignment.StatementTimeout),
	)
	opts := []assignment.Option{assignment.WithRecorder(obs)}
	var searcher api.Searcher
	if jobIndex != nil {
		opts = append(opts, assignment.WithIndexer(jobIndex))
		searcher = jobIndex
	}
	service := assignment.NewService(store, dispatcher, log, opts...)

	// --- Auth ---
	keycloak := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
		config.GetDuration(cfg.Auth.Keycloak.Timeout),
	)
	verifier := auth.NewCachedVerifier(keycloak, rdb.Client, time.Duration(cfg.Auth.CacheTTL)*time.Second, log)

	// --- HTTP server ---
	handler := api.NewRouter(api.NewHandler(service, searcher, log), api.RouterOptions{
		Verifier:           verifier,
		Limiter:            middleware.NewRedisLimiter(rdb.Client, log),
		ApplyPerMinute:     cfg.RateLimit.ApplyPerMinute,
		RequestTimeout:     config.GetDuration(cfg.HTTP.RequestTimeout),
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Checks:             checks,
	}, log)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("API listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	zapLog.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API shutdown incomplete", zap.Error(err))
	}
	zapLog.Info("API stopped gracefully")
}

// newSender builds the configured notification transport.
func newSender(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (notification.Sender, func(), error) {
	switch cfg.Notifications.Transport {
	case config.TransportZeebe:
		var client *camunda.Client
		err := retryWithBackoff(func() error {
			var err error
			client, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			return nil, nil, err
		}
		return notification.NewZeebeSender(client, cfg.Notifications.ProcessID), func() { _ = client.Close() }, nil

	case config.TransportSNS:
		client, err := awsclient.NewSNSClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.AWS.TopicARN)
		if err != nil {
			return nil, nil, err
		}
		return notification.NewSNSSender(client), func() {}, nil

	case config.TransportLog:
		return notification.NewLogSender(log), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown notification transport %q", cfg.Notifications.Transport)
}
