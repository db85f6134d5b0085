package main

import (
	"context"
	"flag"
	"os"

	"github.com/asaskevich/EventBus"
	"github.com/avelinek/txscope/internal/config"
	"github.com/avelinek/txscope/pkg/driver"
	"github.com/avelinek/txscope/pkg/driver/pgxconn"
	"github.com/avelinek/txscope/pkg/txscope"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const lifecycleTopic = "txscope:lifecycle"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	settings, err := cfg.TxscopeSettings()
	if err != nil {
		logger.Fatal("Failed to resolve settings", zap.Error(err))
	}

	ctx := context.Background()
	url := cfg.Database.URL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close(ctx)

	bus := EventBus.New()
	if err := bus.Subscribe(lifecycleTopic, func(event txscope.Event) {
		logger.Info("Scope lifecycle event",
			zap.String("type", string(event.Type)),
			zap.String("database", event.Database),
			zap.Int("depth", event.Depth),
		)
	}); err != nil {
		logger.Fatal("Failed to subscribe to lifecycle events", zap.Error(err))
	}

	manager := txscope.NewManager(
		map[string]driver.Conn{cfg.Database.Name: pgxconn.New(conn, logger)},
		txscope.StaticSettings(settings),
		txscope.NewBusNotifier(bus, lifecycleTopic, logger),
		logger,
	)

	scope := manager.On(cfg.Database.Name)
	err = scope.Transaction(ctx, func(ctx context.Context) error {
		if err := scope.RunAfterCommit(func() error {
			logger.Info("After-commit callback fired")
			return nil
		}); err != nil {
			return err
		}
		return scope.Savepoint(ctx, func(ctx context.Context) error {
			logger.Info("Inside savepoint",
				zap.Bool("in_transaction", manager.InTransaction(cfg.Database.Name)),
			)
			return nil
		})
	})
	if err != nil {
		logger.Fatal("Transaction failed", zap.Error(err))
	}
	logger.Info("Demo transaction committed",
		zap.Strings("open_transactions", manager.ConnsWithOpenTransactions()),
	)
}
