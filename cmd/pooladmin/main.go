// Package main provides the address pool administration CLI: provisioning
// fresh keypairs into the pool, inspecting occupancy, and reconciling
// individual addresses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"solana-launch-engine/internal/custody"
	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/pool"
	"solana-launch-engine/internal/solana"
	"solana-launch-engine/internal/storage/migrations"
	pgstore "solana-launch-engine/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	provision := flag.Int("provision", 0, "Generate N keypairs and add them to the pool")
	stats := flag.Bool("stats", false, "Print pool occupancy")
	release := flag.String("release", "", "Release the address back to the pool")
	markUsed := flag.String("mark-used", "", "Force-mark the address as used")
	by := flag.String("by", "admin", "Requester recorded with -mark-used")

	flag.Parse()

	logger := log.New(os.Stderr, "[pooladmin] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgPool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pgPool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
		logger.Fatalf("postgres migrations: %v", err)
	}

	store := pgstore.NewPoolAddressStore(pgPool)
	allocator := pool.NewAllocator(store, logger)

	switch {
	case *provision > 0:
		masterSecret := os.Getenv("CUSTODY_MASTER_SECRET")
		if masterSecret == "" {
			logger.Fatal("CUSTODY_MASTER_SECRET is required for -provision")
		}
		custodySvc, err := custody.NewService(masterSecret)
		if err != nil {
			logger.Fatalf("initialize custody: %v", err)
		}
		if err := provisionAddresses(ctx, store, custodySvc, *provision); err != nil {
			logger.Fatalf("provision: %v", err)
		}

	case *stats:
		s, err := allocator.Stats(ctx)
		if err != nil {
			logger.Fatalf("stats: %v", err)
		}
		fmt.Printf("total:     %d\nused:      %d\navailable: %d\nusage:     %.1f%%\n",
			s.Total, s.Used, s.Available, s.UsagePercentage)

	case *release != "":
		if err := allocator.Release(ctx, *release); err != nil {
			logger.Fatalf("release: %v", err)
		}
		fmt.Printf("released %s\n", *release)

	case *markUsed != "":
		if err := allocator.MarkUsed(ctx, *markUsed, *by); err != nil {
			logger.Fatalf("mark used: %v", err)
		}
		fmt.Printf("marked %s used by %s\n", *markUsed, *by)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// provisionAddresses generates keypairs, validates them, encrypts the
// secrets, and inserts them into the pool.
func provisionAddresses(ctx context.Context, store *pgstore.PoolAddressStore, custodySvc *custody.Service, count int) error {
	for i := 0; i < count; i++ {
		kp, err := solana.GenerateKeypair()
		if err != nil {
			return fmt.Errorf("generate keypair: %w", err)
		}
		if err := pool.ValidateAddress(kp.PublicKey); err != nil {
			return fmt.Errorf("validate generated address: %w", err)
		}
		encrypted, err := custodySvc.Encrypt(kp.SecretKey)
		if err != nil {
			return fmt.Errorf("encrypt secret: %w", err)
		}
		if err := store.Insert(ctx, &domain.PoolAddress{
			PublicKey:         kp.PublicKey,
			SecretKeyMaterial: encrypted,
			CreatedAt:         time.Now().UnixMilli(),
		}); err != nil {
			return fmt.Errorf("insert %s: %w", kp.PublicKey, err)
		}
		fmt.Printf("provisioned %s\n", kp.PublicKey)
	}
	return nil
}
