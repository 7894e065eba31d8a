// Command coinharbor runs the exchange backend: the log consumers that
// rebuild read-side state, the wallet reconciliation workers and the REST
// and websocket API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/coinharbor/coinharbor/api"
	"github.com/coinharbor/coinharbor/internal/config"
	"github.com/coinharbor/coinharbor/internal/feed"
	"github.com/coinharbor/coinharbor/internal/marketdata"
	"github.com/coinharbor/coinharbor/internal/matching"
	"github.com/coinharbor/coinharbor/internal/streaming"
	"github.com/coinharbor/coinharbor/internal/wallet"
	"github.com/coinharbor/coinharbor/internal/wallet/blockchain"
	"github.com/coinharbor/coinharbor/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil && err != context.Canceled {
		log.Fatal("exited with error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := initTracer()
	if err != nil {
		return err
	}
	defer shutdownTracer()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	if err := streaming.EnsureTopics(cfg.Kafka, log); err != nil {
		return err
	}

	producer := matching.NewCommandProducer(cfg.Kafka, log)
	defer producer.Close()

	var candleStore marketdata.CandleStore = marketdata.NewCandleRepository(db, log)
	if rdb != nil {
		candleStore = marketdata.NewCachedCandleStore(candleStore, rdb, log)
	}

	var walletSvc *wallet.Service
	var workers *wallet.Workers
	if cfg.Wallet.Enabled {
		chains, err := blockchain.NewRegistry(ctx, cfg.Wallet, log)
		if err != nil {
			return err
		}
		walletSvc = wallet.NewService(wallet.NewRepository(db, log), chains, producer, log)
		workers = wallet.NewWorkers(walletSvc, cfg.Wallet.ScanInterval, log)
		workers.Start(ctx)
		defer workers.Stop()
	}

	sessions := feed.NewSessionManager(log)
	server := api.NewServer(log, cfg.JWT.Secret, candleStore, walletSvc,
		feed.NewHandler(sessions, log))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loop := streaming.NewLoop("candle-maker",
			streaming.NewReader(cfg.Kafka, cfg.Kafka.OrderBookLogTopic, "candle-maker", log),
			marketdata.NewCandleMaker(candleStore, log),
			cfg.Kafka.PollTimeout, cfg.Kafka.CommitThreshold, log)
		return loop.Run(gctx)
	})

	g.Go(func() error {
		loop := streaming.NewLoop("feed",
			streaming.NewReader(cfg.Kafka, cfg.Kafka.OrderBookLogTopic, "feed", log),
			feed.NewConsumer(sessions, log),
			cfg.Kafka.PollTimeout, cfg.Kafka.CommitThreshold, log)
		return loop.Run(gctx)
	})

	g.Go(func() error {
		return server.Start(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})

	return g.Wait()
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if err := db.AutoMigrate(
		&marketdata.Candle{},
		&wallet.WalletAddress{},
		&wallet.Deposit{},
		&wallet.Withdrawal{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

func initTracer() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
