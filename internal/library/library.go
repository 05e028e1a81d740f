// Package library is the relational index of ingested auctions. Rows are
// insert-if-absent: the first ingestion of an auction_id wins and later
// ingestions never modify it.
package library

import (
	"context"
	"fmt"

	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// Index is a relational store of auction identities.
type Index interface {
	// Migrate creates the auctions, features and events tables if absent.
	Migrate(ctx context.Context) error

	// InsertAuctions inserts every record whose auction_id is not yet
	// present, in one transaction, and returns how many rows were added.
	InsertAuctions(ctx context.Context, records []tables.CanonicalRecord) (int, error)

	// CountAuctions returns the number of indexed auctions.
	CountAuctions(ctx context.Context) (int, error)

	// Close releases any resources.
	Close() error
}

// Config selects and locates the backend.
type Config struct {
	Driver        string // "sqlite" | "postgres"
	StoreLocation string // sqlite file path
	PostgresDSN   string
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg Config) (Index, error) {
	var (
		idx Index
		err error
	)

	switch cfg.Driver {
	case "sqlite", "":
		if cfg.StoreLocation == "" {
			return nil, fmt.Errorf("store location required for sqlite backend")
		}
		idx, err = NewSQLite(cfg.StoreLocation)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN required for postgres backend")
		}
		idx, err = NewPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown library driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := idx.Migrate(ctx); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}
