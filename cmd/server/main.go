package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredislib "github.com/redis/go-redis/v9"
	"github.com/sheikh-saqib/account-ledger-engine/internal/accounts"
	"github.com/sheikh-saqib/account-ledger-engine/internal/config"
	"github.com/sheikh-saqib/account-ledger-engine/internal/events/kafka"
	"github.com/sheikh-saqib/account-ledger-engine/internal/httpapi"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/ledger"
	"github.com/sheikh-saqib/account-ledger-engine/internal/locks"
	"github.com/sheikh-saqib/account-ledger-engine/internal/logging"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/sheikh-saqib/account-ledger-engine/internal/notify"
	"github.com/sheikh-saqib/account-ledger-engine/internal/storage/memory"
	"github.com/sheikh-saqib/account-ledger-engine/internal/storage/postgres"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}
	}()

	seed, err := loadSeed(cfg)
	if err != nil {
		return err
	}

	store, resolver, closeStore, err := openStorage(ctx, cfg, seed)
	if err != nil {
		return err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	locker, closeLocks, err := openLocks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closeLocks != nil {
		closers = append(closers, closeLocks)
	}

	logSink := notify.NewLogSink(logger.Named("sink"), cfg.Ledger.Currency)

	var audit interfaces.AuditSink = logSink
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, publisher.Close)
		audit = kafka.NewAuditSink(publisher)
		logger.Info("audit stream enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var notifier interfaces.NotificationSink = logSink
	if cfg.RabbitMQ.URL != "" {
		queue, closeQueue, err := notify.DialEmailQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.Ledger.Currency, logger.Named("email"))
		if err != nil {
			return err
		}
		closers = append(closers, closeQueue)
		notifier = queue
		logger.Info("e-mail notifications enabled", zap.String("queue", cfg.RabbitMQ.Queue))
	}

	maxAmount, err := cfg.MaxAmount()
	if err != nil {
		return err
	}
	engine := ledger.NewLedger(store, locker, resolver,
		ledger.WithConfig(ledger.Config{MaxAmount: maxAmount, SideEffectTimeout: cfg.Ledger.SideEffectTimeout}),
		ledger.WithAuditSink(audit),
		ledger.WithNotificationSink(notifier),
		ledger.WithLogger(logger),
	)
	// Runs before the sinks are closed: no new side effects start once draining, and
	// the in-flight ones get one side-effect timeout to finish.
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Ledger.SideEffectTimeout)
		defer cancel()
		if err := engine.Drain(drainCtx); err != nil {
			logger.Warn("side effects still running at exit", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewHandler(engine, logger.Named("http")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting ledger server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("locks", cfg.Locks.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadSeed(cfg *config.Config) ([]models.Account, error) {
	if cfg.Storage.AccountsFile == "" {
		return nil, nil
	}
	return accounts.LoadFile(cfg.Storage.AccountsFile)
}

func openStorage(ctx context.Context, cfg *config.Config, seed []models.Account) (interfaces.LedgerStore, interfaces.AccountResolver, func() error, error) {
	if cfg.Storage.Driver == "memory" {
		return memory.NewStore(), accounts.NewDirectory(seed...), nil, nil
	}

	open := postgres.OpenPostgres
	if cfg.Storage.Driver == "sqlite" {
		open = postgres.OpenSQLite
	}
	db, err := open(ctx, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, nil, err
	}

	resolver := postgres.NewAccounts(db)
	for _, a := range seed {
		if err := resolver.Upsert(ctx, a); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("seed account %s: %w", a.ID, err)
		}
	}
	return postgres.NewStore(db), resolver, db.Close, nil
}

func openLocks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interfaces.LockCoordinator, func() error, error) {
	if cfg.Locks.Backend == "local" {
		return locks.NewLocal(cfg.Ledger.LockTimeout, logger), nil, nil
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Locks.RedisAddr,
		Password: cfg.Locks.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	opts := locks.DefaultRedisOptions()
	opts.Timeout = cfg.Ledger.LockTimeout
	opts.Expiry = cfg.Locks.Expiry
	return locks.NewRedis(client, opts, logger), client.Close, nil
}
