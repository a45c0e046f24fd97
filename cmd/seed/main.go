package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/orderrelay/internal/auth"
	"github.com/kiwari-pos/orderrelay/internal/config"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/enum"
)

func main() {
	// CLI flags
	branchName := flag.String("branch", "", "Branch name")
	tableName := flag.String("table", "", "Dining table name")
	secret := flag.String("secret", "", "Device secret shared by the seeded tablet and relay")
	flag.Parse()

	// Fall back to environment variables, then defaults
	if *branchName == "" {
		*branchName = envOr("SEED_BRANCH", "Kiwari Grill")
	}
	if *tableName == "" {
		*tableName = envOr("SEED_TABLE", "T1")
	}
	if *secret == "" {
		*secret = os.Getenv("SEED_DEVICE_SECRET")
	}
	if *secret == "" {
		*secret = "device-secret"
		log.Println("WARNING: Using default device secret. Change immediately in production!")
	}

	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	hash, err := auth.HashSecret(*secret)
	if err != nil {
		log.Fatalf("Failed to hash secret: %v", err)
	}

	// Seed in a transaction: branch, table and both devices or nothing
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := database.New(tx)

	branch, err := q.CreateBranch(ctx, *branchName)
	if err != nil {
		log.Fatalf("Failed to seed branch: %v", err)
	}
	table, err := q.CreateDiningTable(ctx, database.CreateDiningTableParams{BranchID: branch.ID, Name: *tableName})
	if err != nil {
		log.Fatalf("Failed to seed table: %v", err)
	}

	tablet, err := seedDevice(ctx, q, database.CreateDeviceParams{
		BranchID:   branch.ID,
		TableID:    pgtype.Int8{Int64: table.ID, Valid: true},
		Kind:       enum.DeviceKindTablet,
		Name:       "Tablet " + *tableName,
		SecretHash: hash,
	})
	if err != nil {
		log.Fatalf("Failed to seed tablet: %v", err)
	}
	relay, err := seedDevice(ctx, q, database.CreateDeviceParams{
		BranchID:   branch.ID,
		Kind:       enum.DeviceKindRelay,
		Name:       "Kitchen relay",
		SecretHash: hash,
	})
	if err != nil {
		log.Fatalf("Failed to seed relay: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	adminToken, err := auth.GenerateToken(cfg.JWTSecret, auth.Principal{BranchID: branch.ID, Role: enum.RoleAdmin}, cfg.DeviceTokenTTL)
	if err != nil {
		log.Fatalf("Failed to sign admin token: %v", err)
	}

	log.Println("Seed completed successfully")
	log.Printf("Branch ID: %d", branch.ID)
	log.Printf("Table ID: %d", table.ID)
	log.Printf("Tablet: id=%d uuid=%s", tablet.ID, tablet.UUID)
	log.Printf("Relay: id=%d uuid=%s", relay.ID, relay.UUID)
	fmt.Println(adminToken)
}

// seedDevice creates a device with a fresh uuid.
func seedDevice(ctx context.Context, q *database.Queries, arg database.CreateDeviceParams) (database.Device, error) {
	arg.UUID = uuid.New()
	dev, err := q.CreateDevice(ctx, arg)
	if err != nil {
		return database.Device{}, fmt.Errorf("insert device %q: %w", arg.Name, err)
	}
	return dev, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
