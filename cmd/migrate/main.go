package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/kiwari-pos/orderrelay/internal/config"
	"github.com/kiwari-pos/orderrelay/internal/database"
)

func main() {
	steps := flag.Int("steps", 0, "Roll back this many migrations with -down (0 = all)")
	down := flag.Bool("down", false, "Roll back instead of applying")
	flag.Parse()

	cfg := config.Load()

	m, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open migrator: %v", err)
	}
	defer m.Close()

	switch {
	case *down && *steps > 0:
		err = m.Steps(-*steps)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatalf("Failed to read version: %v", err)
	}
	log.Printf("Schema version %d (dirty=%t)", version, dirty)
}
