// storegate onboards Shopify storefronts into a multi-tenant PostgreSQL
// application.
//
// It reads configuration from db.json (override with STOREGATE_CONFIG),
// connects to PostgreSQL, bootstraps the shop registry, and serves the
// installation, authorization, tenant data, and schema-management APIs.
//
// Usage:
//
//	./storegate                # reads ./db.json, starts server
//	docker compose up -d       # runs via Docker with mounted config
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ultimate-pixel/storegate/internal/config"
	"github.com/ultimate-pixel/storegate/internal/database"
	"github.com/ultimate-pixel/storegate/internal/ddl"
	"github.com/ultimate-pixel/storegate/internal/install"
	"github.com/ultimate-pixel/storegate/internal/metrics"
	"github.com/ultimate-pixel/storegate/internal/provider"
	"github.com/ultimate-pixel/storegate/internal/provision"
	"github.com/ultimate-pixel/storegate/internal/server"
	"github.com/ultimate-pixel/storegate/internal/shop"
	"github.com/ultimate-pixel/storegate/internal/tenancy"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("storegate starting")

	configPath := os.Getenv("STOREGATE_CONFIG")
	if configPath == "" {
		configPath = "db.json"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger.Info("config loaded",
		zap.String("listen", cfg.ListenAddr),
		zap.String("db", cfg.DBConn+"/"+cfg.DBName))

	// Root context cancelled on SIGINT or SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	// Connect to PostgreSQL and bootstrap the shop registry.
	db, err := database.Open(ctx, cfg.ConnString())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database connected, registry bootstrapped")

	m := metrics.New(prometheus.DefaultRegisterer)

	builder := ddl.NewBuilder(db.Pool, logger)
	engine := provision.NewEngine(builder, db.Pool, logger, m)

	router := tenancy.NewRouter(
		tenancy.PoolOpener(cfg.ConnString(), cfg.MaxTenantConns),
		cfg.ConnectTimeout(), logger, m)
	defer router.Close()

	shopInfo := tenancy.NewShopInfoStore(router)
	shops := shop.NewStore(db)

	providerClient := provider.NewClient(
		cfg.ShopifyClientID, cfg.ShopifyClientSecret, cfg.ClientURL+"/authorize")

	installs := install.NewService(shops, engine, providerClient, shopInfo,
		cfg.ShopifyClientSecret, cfg.FrontendURL, logger, m)

	// Start the HTTP server (blocks until the context is cancelled).
	srv := server.New(cfg, installs, engine, shopInfo, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("storegate stopped")
}
