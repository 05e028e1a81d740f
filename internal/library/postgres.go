package library

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

//go:embed schema_postgres.sql
var postgresSchema string

const postgresInsertAuction = `
INSERT INTO auctions
  (auction_id, auction_date, cusip, tenor, security_type, reopening, raw_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (auction_id) DO NOTHING`

// Pool is the subset of *pgxpool.Pool the index uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresIndex implements Index using PostgreSQL.
type PostgresIndex struct {
	pool Pool
}

// NewPostgres connects a pool to dsn.
func NewPostgres(ctx context.Context, dsn string) (*PostgresIndex, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Component("library").Info("connected to PostgreSQL index")
	return NewPostgresWithPool(pool), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

func (p *PostgresIndex) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (p *PostgresIndex) InsertAuctions(ctx context.Context, records []tables.CanonicalRecord) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, r := range records {
		tag, err := tx.Exec(ctx, postgresInsertAuction,
			r.AuctionID, r.AuctionDate, r.CUSIP, r.Tenor, r.SecurityType, r.Reopening, r.RawRecordHash)
		if err != nil {
			return 0, fmt.Errorf("postgres: insert %s: %w", r.AuctionID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return inserted, nil
}

func (p *PostgresIndex) CountAuctions(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM auctions").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count auctions: %w", err)
	}
	return n, nil
}

func (p *PostgresIndex) Close() error {
	p.pool.Close()
	return nil
}
