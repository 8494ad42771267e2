package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labovik/internal/api"
	"labovik/internal/catalog"
	"labovik/internal/config"
	"labovik/internal/database"
	"labovik/internal/domain"
	"labovik/internal/events"
	"labovik/internal/ledger"
	"labovik/internal/lifecycle"
	"labovik/internal/logging"
	"labovik/internal/metrics"
	"labovik/internal/models"
	"labovik/internal/repository"
	"labovik/internal/schedule"
	"labovik/internal/service"
	"labovik/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()
	logger.Info().Str("db_path", cfg.Database.Path).Msg("database initialized")

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	snapshots := initSnapshots(redisClient, &logger)

	clock := domain.RealClock{}
	led := ledger.New(clock, &logger)
	if err := warmLedger(cfg, db, led); err != nil {
		logger.Error().Err(err).Msg("warm ledger")
		return err
	}

	bus := events.NewEventBus()
	persist := worker.NewPersistWorker(db, snapshots, worker.RetryPolicy{}, &logger)

	svc := service.New(service.Deps{
		Index:   schedule.New(cfg.Policy.LockWait()),
		Machine: lifecycle.New(),
		Ledger:  led,
		Catalog: catalog.New(cfg.Resources),
		Clock:   clock,
		Events:  bus,
		Queue:   persist,
		Policy:  cfg.Policy,
		Logger:  &logger,
	})

	if err := warmEngine(db, svc, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	go persist.Run(workerCtx)

	sweeper := worker.NewSweeper(svc, cfg.Policy.SweepInterval(), &logger)
	go sweeper.Run(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, &logger)
	err = startServer(ctx, httpServer, cfg, &logger)

	// Воркер добивает очередь после остановки HTTP
	stopWorkers()
	persist.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSnapshots(redisClient *redis.Client, logger *zerolog.Logger) domain.SnapshotRepository {
	memory := repository.NewMemorySnapshotRepository()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisSnapshotRepository(redisClient, models.DefaultRedisTTL*time.Second)
	return repository.NewFailoverSnapshotRepository(primary, memory, logger)
}

// warmLedger seeds configured accounts, overlays persisted balances and
// replays the transaction log into the idempotency index.
func warmLedger(cfg *config.Config, db *database.DB, led *ledger.Ledger) error {
	ctx := context.Background()

	for _, seed := range cfg.Budgets {
		start, err := time.Parse("2006-01-02", seed.PeriodStart)
		if err != nil {
			return fmt.Errorf("budget %s: invalid period_start: %v", seed.Key(), err)
		}
		end, err := time.Parse("2006-01-02", seed.PeriodEnd)
		if err != nil {
			return fmt.Errorf("budget %s: invalid period_end: %v", seed.Key(), err)
		}
		led.Seed(models.BudgetAccount{
			Key:         seed.Key(),
			Allocated:   seed.Allocated,
			PeriodStart: start,
			PeriodEnd:   end,
		})
	}

	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	for _, acc := range accounts {
		led.Seed(acc)
		txs, err := db.ListTransactions(ctx, acc.Key)
		if err != nil {
			return fmt.Errorf("load transactions for %s: %w", acc.Key, err)
		}
		for _, tx := range txs {
			if err := led.Restore(tx); err != nil {
				return fmt.Errorf("restore transaction %s: %w", tx.ID, err)
			}
		}
	}
	return nil
}

func warmEngine(db *database.DB, svc *service.Service, logger *zerolog.Logger) error {
	ctx := context.Background()
	bookings, err := db.ListBookings(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load bookings")
		return err
	}
	if err := svc.Restore(ctx, bookings); err != nil {
		logger.Error().Err(err).Msg("restore bookings")
		return err
	}
	logger.Info().Int("bookings", len(bookings)).Msg("engine warmed up")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
