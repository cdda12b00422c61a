package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invest-platform/internal/admin"
	"invest-platform/internal/auth"
	"invest-platform/internal/commission"
	"invest-platform/internal/config"
	"invest-platform/internal/db"
	"invest-platform/internal/events"
	"invest-platform/internal/health"
	"invest-platform/internal/httpserver"
	"invest-platform/internal/ledger"
	"invest-platform/internal/logging"
	"invest-platform/internal/marketdata"
	"invest-platform/internal/orders"
	"invest-platform/internal/positions"
	"invest-platform/internal/products"
	"invest-platform/internal/settlement"
	"invest-platform/internal/users"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Mode)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	loc, err := time.LoadLocation(cfg.SettlementTZ)
	if err != nil {
		logger.Fatal("invalid settlement timezone", zap.String("tz", cfg.SettlementTZ), zap.Error(err))
	}
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Fatal("snowflake node init failed", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis connect failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
	}

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("kafka publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		publisher = events.NewDisabledPublisher()
	}
	defer publisher.Close()

	bus := marketdata.NewBus()
	cache := marketdata.NewCache(rdb)
	candleStore := marketdata.NewCandleStore(pool)
	marketSvc := marketdata.NewService(pool, candleStore, cache, bus, publisher, logger)

	userStore := users.NewStore(pool)
	productStore := products.NewStore(pool)
	positionStore := positions.NewStore(pool)
	ledgerSvc := ledger.NewService(pool, publisher, logger)
	commissionEngine := commission.NewEngine(pool, userStore, ledgerSvc, logger)
	orderStore := orders.NewStore(pool)
	orderSvc := orders.NewService(pool, orderStore, positionStore, productStore, ledgerSvc, commissionEngine, publisher, node, logger)
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	job := settlement.NewJob(pool, productStore, positionStore, candleStore, cache, orderSvc, commissionEngine, publisher, logger, cfg.SettlementHour, loc)
	job.Start()
	defer job.Stop()

	adminLogs := admin.NewLogStore(pool, logger)
	adminHandler := admin.NewHandler(pool, userStore, ledgerSvc, marketSvc, job, adminLogs, logger,
		[]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AdminJWTTTL)

	router := httpserver.NewRouter(httpserver.Deps{
		AuthSvc:           authSvc,
		AuthHandler:       auth.NewHandler(authSvc, userStore),
		UserHandler:       users.NewHandler(userStore),
		ProductHandler:    products.NewHandler(productStore, candleStore, cache),
		OrderHandler:      orders.NewHandler(orderSvc, positionStore),
		WalletHandler:     ledger.NewHandler(ledgerSvc),
		CommissionHandler: commission.NewHandler(commissionEngine),
		AdminHandler:      adminHandler,
		HealthHandler:     health.NewHandler(pool, time.Now(), cfg.HTTPAddr, cfg.Mode),
		TickerWS:          marketdata.NewTickerWSHandler(bus, cfg.WebSocketOrigin),
		AdminJWTSecret:    []byte(cfg.JWTSecret),
		JWTIssuer:         cfg.JWTIssuer,
		Logger:            logger,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr),
		zap.Int("settlement_hour", cfg.SettlementHour), zap.String("settlement_tz", cfg.SettlementTZ))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
