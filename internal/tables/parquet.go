package tables

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// codecFor maps a compression name to a parquet codec.
func codecFor(name string) (compress.Codec, error) {
	switch name {
	case "", "zstd":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown parquet compression: %s", name)
	}
}

// EncodeRecords serializes records into a single parquet file image.
func EncodeRecords(records []CanonicalRecord, cfg ParquetConfig) ([]byte, error) {
	codec, err := codecFor(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[CanonicalRecord](&buf,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(metaTable, CanonicalRecord{}.TableName()),
		parquet.KeyValueMetadata(metaSchemaVersion, SchemaVersion),
	)
	if len(records) > 0 {
		if _, err := w.Write(records); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadRecords loads every row of a snapshot file in file order.
func ReadRecords(path string) ([]CanonicalRecord, error) {
	rows, err := parquet.ReadFile[CanonicalRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}

// Key/value metadata written into every snapshot footer.
const (
	metaTable         = "table"
	metaSchemaVersion = "schema_version"
)

// SnapshotStats summarizes the columns the validator cross-checks.
type SnapshotStats struct {
	Table          string
	SchemaVersion  string
	Rows           int64
	MinAuctionDate string
	MaxAuctionDate string
	HasTailKind    bool
	TailKinds      map[string]int64
}

// MissingTailCount returns the number of rows whose tail kind is "missing".
func (s *SnapshotStats) MissingTailCount() int64 {
	return s.TailKinds[TailKindMissing]
}

// Inspect reads only the auction_date and tail_kind columns of a parquet file.
// It does not assume the file was written with CanonicalRecord, so a file
// missing tail_kind is reported through HasTailKind rather than an error.
func Inspect(path string) (*SnapshotStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	stats := &SnapshotStats{
		Rows:      pf.NumRows(),
		TailKinds: make(map[string]int64),
	}
	stats.Table, _ = pf.Lookup(metaTable)
	stats.SchemaVersion, _ = pf.Lookup(metaSchemaVersion)

	err = scanStringColumn(pf, "auction_date", func(v string) {
		if v == "" {
			return
		}
		if stats.MinAuctionDate == "" || v < stats.MinAuctionDate {
			stats.MinAuctionDate = v
		}
		if v > stats.MaxAuctionDate {
			stats.MaxAuctionDate = v
		}
	})
	if err != nil && !errors.Is(err, errNoColumn) {
		return nil, err
	}

	err = scanStringColumn(pf, "tail_kind", func(v string) {
		stats.TailKinds[v]++
	})
	switch {
	case err == nil:
		stats.HasTailKind = true
	case errors.Is(err, errNoColumn):
	default:
		return nil, err
	}

	return stats, nil
}

var errNoColumn = errors.New("column not found")

// scanStringColumn calls fn for every non-null value of a top-level column.
func scanStringColumn(pf *parquet.File, name string, fn func(string)) error {
	leaf, ok := pf.Schema().Lookup(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, errNoColumn)
	}

	for _, rg := range pf.RowGroups() {
		chunk := rg.ColumnChunks()[leaf.ColumnIndex]
		if err := scanChunk(chunk, fn); err != nil {
			return fmt.Errorf("scan column %s: %w", name, err)
		}
	}
	return nil
}

func scanChunk(chunk parquet.ColumnChunk, fn func(string)) error {
	pages := chunk.Pages()
	defer pages.Close()

	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		values := make([]parquet.Value, page.NumValues())
		n, err := page.Values().ReadValues(values)
		if err != nil && err != io.EOF {
			return err
		}
		for _, v := range values[:n] {
			if v.IsNull() {
				continue
			}
			fn(string(v.ByteArray()))
		}
	}
}
