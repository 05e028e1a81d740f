// Package merge applies one normalized batch to both durable sinks under a
// single writer lock.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/auction-ledger/internal/library"
	"github.com/withObsrvr/auction-ledger/internal/lock"
	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/metrics"
	"github.com/withObsrvr/auction-ledger/internal/snapshot"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// Result reports what a merge did.
type Result struct {
	Added    int // rows in the incoming batch
	Total    int // snapshot rows after the merge
	Inserted int // relational rows that did not exist before
}

// Engine merges batches into the relational index and the snapshot.
type Engine struct {
	index    library.Index
	store    *snapshot.Store
	lockPath string
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewEngine creates a merge engine. The writer lock lives next to the
// snapshot file. m may be nil.
func NewEngine(index library.Index, store *snapshot.Store, m *metrics.Metrics) *Engine {
	return &Engine{
		index:    index,
		store:    store,
		lockPath: store.Path() + ".lock",
		metrics:  m,
		log:      logging.Component("merge"),
	}
}

// Merge inserts new auction identities into the index, then rewrites the
// snapshot with last-write-wins semantics. Both steps converge on re-run, so
// a failure between them is repaired by ingesting the same run again.
func (e *Engine) Merge(ctx context.Context, records []tables.CanonicalRecord) (Result, error) {
	l, err := lock.Acquire(e.lockPath)
	if err != nil {
		return Result{}, fmt.Errorf("acquire writer lock: %w", err)
	}
	defer func() {
		if err := l.Release(); err != nil {
			e.log.Warn("failed to release writer lock", "path", e.lockPath, "error", err)
		}
	}()

	inserted, err := e.index.InsertAuctions(ctx, records)
	if err != nil {
		return Result{}, fmt.Errorf("relational insert: %w", err)
	}

	added, total, err := e.store.Apply(records)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot merge: %w", err)
	}

	e.metrics.AddAuctionsInserted(inserted)
	e.metrics.SetSnapshotRows(total)

	e.log.Info("merge complete",
		"added", added,
		"inserted", inserted,
		"snapshot_total", total,
		"snapshot", e.store.Path(),
	)
	return Result{Added: added, Total: total, Inserted: inserted}, nil
}
