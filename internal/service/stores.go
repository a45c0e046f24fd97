package service

import "github.com/kiwari-pos/orderrelay/internal/database"

var (
	_ OrderStore      = (*database.Queries)(nil)
	_ RefillStore     = (*database.Queries)(nil)
	_ StatusStore     = (*database.Queries)(nil)
	_ PrintEventStore = (*database.Queries)(nil)
	_ DeviceStore     = (*database.Queries)(nil)
	_ ReaperStore     = (*database.Queries)(nil)
)

// Store factories over the generated queries.
func OrderStoreFrom(db database.DBTX) OrderStore { return database.New(db) }
func RefillStoreFrom(db database.DBTX) RefillStore { return database.New(db) }
func StatusStoreFrom(db database.DBTX) StatusStore { return database.New(db) }
func PrintEventStoreFrom(db database.DBTX) PrintEventStore { return database.New(db) }
func DeviceStoreFrom(db database.DBTX) DeviceStore { return database.New(db) }
