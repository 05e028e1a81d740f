package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/auction-ledger/internal/tables"
)

func record(date, cusip, hash string) tables.CanonicalRecord {
	return tables.CanonicalRecord{
		AuctionID:     date + "_" + cusip,
		AuctionDate:   date,
		CUSIP:         cusip,
		Tenor:         "13-Week",
		SecurityType:  "Bill",
		RawRecordHash: hash,
	}
}

func openSQLite(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := Open(context.Background(), Config{
		Driver:        "sqlite",
		StoreLocation: filepath.Join(t.TempDir(), "library", "event_library.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx.(*SQLiteIndex)
}

func TestSQLite_InsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := openSQLite(t)

	batch := []tables.CanonicalRecord{
		record("2024-01-02", "912797GB7", "h1"),
		record("2024-01-04", "912797GC5", "h2"),
	}

	n, err := idx.InsertAuctions(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = idx.InsertAuctions(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := idx.CountAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_FirstInsertWins(t *testing.T) {
	ctx := context.Background()
	idx := openSQLite(t)

	n, err := idx.InsertAuctions(ctx, []tables.CanonicalRecord{
		record("2024-01-02", "912797GB7", "first"),
		record("2024-01-02", "912797GB7", "second"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = idx.InsertAuctions(ctx, []tables.CanonicalRecord{record("2024-01-02", "912797GB7", "third")})
	require.NoError(t, err)

	h, err := idx.RawHash(ctx, "2024-01-02_912797GB7")
	require.NoError(t, err)
	assert.Equal(t, "first", h)
}

func TestSQLite_MigrateTwice(t *testing.T) {
	idx := openSQLite(t)
	require.NoError(t, idx.Migrate(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
}

func TestPostgres_Migrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auctions").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	idx := NewPostgresWithPool(mock)
	require.NoError(t, idx.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertAuctions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := record("2024-01-02", "912797GB7", "h1")
	b := record("2024-01-04", "912797GC5", "h2")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO auctions").
		WithArgs(a.AuctionID, a.AuctionDate, a.CUSIP, a.Tenor, a.SecurityType, a.Reopening, a.RawRecordHash).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO auctions").
		WithArgs(b.AuctionID, b.AuctionDate, b.CUSIP, b.Tenor, b.SecurityType, b.Reopening, b.RawRecordHash).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	idx := NewPostgresWithPool(mock)
	n, err := idx.InsertAuctions(context.Background(), []tables.CanonicalRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "conflicting row is not counted")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := record("2024-01-02", "912797GB7", "h1")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO auctions").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	idx := NewPostgresWithPool(mock)
	_, err = idx.InsertAuctions(context.Background(), []tables.CanonicalRecord{a})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountAuctions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewPostgresWithPool(mock).CountAuctions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
