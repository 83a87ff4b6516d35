// Package main runs the launch engine API server: pool allocation, launch
// and sell orchestration, worker outcome callbacks, and ledger reporting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-launch-engine/internal/custody"
	"solana-launch-engine/internal/distribution"
	"solana-launch-engine/internal/ledger"
	"solana-launch-engine/internal/observability"
	"solana-launch-engine/internal/orchestrator"
	"solana-launch-engine/internal/pool"
	"solana-launch-engine/internal/pricefeed"
	"solana-launch-engine/internal/queue"
	"solana-launch-engine/internal/solana"
	"solana-launch-engine/internal/storage"
	chstore "solana-launch-engine/internal/storage/clickhouse"
	"solana-launch-engine/internal/storage/memory"
	"solana-launch-engine/internal/storage/migrations"
	pgstore "solana-launch-engine/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	poolAddressStore       storage.PoolAddressStore
	tokenStore             storage.TokenStore
	walletStore            storage.WalletStore
	transactionRecordStore storage.TransactionRecordStore
	retryDataStore         storage.RetryDataStore
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the execution queue")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint for signature confirmations")
	priceEndpoint := flag.String("price-endpoint", os.Getenv("PRICE_API_ENDPOINT"), "Price API base URL")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and queue instead of external services")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	masterSecret := os.Getenv("CUSTODY_MASTER_SECRET")
	if masterSecret == "" {
		logger.Fatal("CUSTODY_MASTER_SECRET is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "" || *redisAddr == "") {
		logger.Fatal("--postgres-dsn, --clickhouse-dsn and --redis-addr are required (use --use-memory for local runs)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, q, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *redisAddr, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	custodySvc, err := custody.NewService(masterSecret)
	if err != nil {
		logger.Fatalf("Failed to initialize custody: %v", err)
	}

	var (
		balance  orchestrator.BalanceChecker
		receipts orchestrator.ReceiptReader
	)
	if *rpcEndpoint != "" {
		rpc := solana.NewHTTPClient(*rpcEndpoint)
		balance = rpc
		receipts = rpc
	}

	var confirmer orchestrator.ConfirmationWaiter
	if *wsEndpoint != "" {
		watcher, err := solana.NewConfirmationWatcher(ctx, *wsEndpoint, nil, logger)
		if err != nil {
			logger.Fatalf("Failed to connect confirmation watcher: %v", err)
		}
		defer watcher.Close()
		confirmer = watcher
	}

	var price ledger.PriceSource
	if *priceEndpoint != "" {
		price = pricefeed.NewClient(*priceEndpoint, logger)
	}

	allocator := pool.NewAllocator(stores.poolAddressStore, logger)
	led := ledger.New(stores.transactionRecordStore, price)

	orch := orchestrator.New(orchestrator.Deps{
		Tokens:    stores.tokenStore,
		Wallets:   stores.walletStore,
		RetryData: stores.retryDataStore,
		Allocator: allocator,
		Custody:   custodySvc,
		Generator: distribution.NewGenerator(distribution.DefaultConfig()),
		Queue:     q,
		Ledger:    led,
		Balance:   balance,
		Receipts:  receipts,
		Confirmer: confirmer,
		Logger:    logger,
	})

	api := &apiServer{
		orch:      orch,
		ledger:    led,
		allocator: allocator,
		logger:    logger,
	}

	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      api.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go refreshPoolGauges(ctx, allocator, logger)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the stores and the execution queue, running
// migrations for the external backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN, redisAddr string, useMemory bool) (*allStores, queue.Queue, func(), error) {
	if useMemory {
		stores := &allStores{
			poolAddressStore:       memory.NewPoolAddressStore(),
			tokenStore:             memory.NewTokenStore(),
			walletStore:            memory.NewWalletStore(),
			transactionRecordStore: memory.NewTransactionRecordStore(),
			retryDataStore:         memory.NewRetryDataStore(),
		}
		return stores, queue.NewMemoryQueue(), func() {}, nil
	}

	pgPool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
		pgPool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pgPool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		chConn.Close()
		pgPool.Close()
		return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	stores := &allStores{
		poolAddressStore: pgstore.NewPoolAddressStore(pgPool),
		tokenStore:       pgstore.NewTokenStore(pgPool),
		walletStore:      pgstore.NewWalletStore(pgPool),
		retryDataStore:   pgstore.NewRetryDataStore(pgPool),

		// ClickHouse holds the append-only ledger
		transactionRecordStore: chstore.NewTransactionRecordStore(chConn),
	}

	cleanup := func() {
		redisClient.Close()
		chConn.Close()
		pgPool.Close()
	}

	return stores, queue.NewRedisQueue(redisClient), cleanup, nil
}

// refreshPoolGauges keeps the pool occupancy metrics current.
func refreshPoolGauges(ctx context.Context, allocator *pool.Allocator, logger *log.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := allocator.Stats(ctx)
			if err != nil {
				logger.Printf("pool stats refresh: %v", err)
				continue
			}
			observability.UpdatePoolStats(stats.Total, stats.Used)
		}
	}
}

// envOr returns the environment variable value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
