package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agrichain/agrichain-backend/api/routes"
	"github.com/agrichain/agrichain-backend/internal/listings"
	"github.com/agrichain/agrichain-backend/internal/orders"
	"github.com/agrichain/agrichain-backend/internal/settlement"
	"github.com/agrichain/agrichain-backend/internal/storage"
	"github.com/agrichain/agrichain-backend/internal/wallet"
	"github.com/agrichain/agrichain-backend/pkg/config"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"github.com/agrichain/agrichain-backend/pkg/metrics"
	"github.com/agrichain/agrichain-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	fileStore, err := storage.NewFileStore(cfg.Fallback.Dir, storage.DefaultKeyFields())
	if err != nil {
		logg.Error(context.Background(), "failed to open fallback store", err)
		os.Exit(1)
	}

	// A broken primary store is not fatal: the adapter keeps the service on
	// the file fallback until the document store comes back.
	var primary storage.Store
	if cfg.Firestore.Disabled {
		logg.Info(context.Background(), "primary document store disabled; running on file fallback only")
	} else {
		firestoreStore, err := storage.NewFirestore(context.Background(), cfg.Firestore)
		if err != nil {
			logg.Error(context.Background(), "failed to connect primary document store; continuing on fallback", err)
		} else {
			primary = firestoreStore
			defer func() {
				if err := firestoreStore.Close(); err != nil {
					logg.Error(context.Background(), "error closing document store", err)
				}
			}()
		}
	}

	adapter, err := storage.NewAdapter(primary, fileStore, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build persistence adapter", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(context.Background(), cfg.Redis)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured; confirmation attempts are not rate limited")
	}

	repo, err := orders.NewRepo(adapter)
	if err != nil {
		logg.Error(context.Background(), "failed to create order repo", err)
		os.Exit(1)
	}
	listingSvc, err := listings.NewService(adapter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create listings service", err)
		os.Exit(1)
	}
	orderSvc, err := orders.NewService(repo, listingSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	walletSvc, err := wallet.NewService(adapter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	settlementSvc, err := settlement.NewService(repo, walletSvc, cfg.OTP, settlementMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Redis:       redisClient,
			Orders:      orderSvc,
			Settlements: settlementSvc,
			Wallets:     walletSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
