package library

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/withObsrvr/auction-ledger/internal/tables"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const sqliteInsertAuction = `
INSERT OR IGNORE INTO auctions
  (auction_id, auction_date, cusip, tenor, security_type, reopening, raw_hash)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// SQLiteIndex implements Index using modernc.org/sqlite.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at path and configures WAL mode. The
// parent directory is created if needed.
func NewSQLite(path string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) InsertAuctions(ctx context.Context, records []tables.CanonicalRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertAuction)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.AuctionID, r.AuctionDate, r.CUSIP, r.Tenor, r.SecurityType, r.Reopening, r.RawRecordHash)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert %s: %w", r.AuctionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteIndex) CountAuctions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM auctions").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count auctions: %w", err)
	}
	return n, nil
}

// RawHash returns the stored raw hash of an auction, for inspection.
func (s *SQLiteIndex) RawHash(ctx context.Context, auctionID string) (string, error) {
	var h string
	err := s.db.QueryRowContext(ctx, "SELECT raw_hash FROM auctions WHERE auction_id = ?", auctionID).Scan(&h)
	if err != nil {
		return "", fmt.Errorf("sqlite: raw hash %s: %w", auctionID, err)
	}
	return h, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
