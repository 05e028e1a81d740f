// Package pipeline wires capture, normalization, merge and validation into
// the three operator-facing stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/withObsrvr/auction-ledger/internal/archive"
	"github.com/withObsrvr/auction-ledger/internal/audit"
	"github.com/withObsrvr/auction-ledger/internal/capture"
	"github.com/withObsrvr/auction-ledger/internal/checkpoint"
	"github.com/withObsrvr/auction-ledger/internal/config"
	"github.com/withObsrvr/auction-ledger/internal/library"
	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/merge"
	"github.com/withObsrvr/auction-ledger/internal/metrics"
	"github.com/withObsrvr/auction-ledger/internal/normalize"
	"github.com/withObsrvr/auction-ledger/internal/snapshot"
	"github.com/withObsrvr/auction-ledger/internal/tables"
	"github.com/withObsrvr/auction-ledger/internal/validate"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

var (
	// ErrIncompleteRun is returned when a run directory has no manifest.
	ErrIncompleteRun = errors.New("incomplete run")

	// ErrInvalidLabel is returned for labels that cannot form a run name.
	ErrInvalidLabel = errors.New("invalid run label")
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Options carries the collaborators a Pipeline needs. Capture needs a
// Fetcher and Ingest needs an Index; everything else is optional.
type Options struct {
	Fetcher    capture.Fetcher
	Index      library.Index
	Archiver   *archive.Archiver
	Audit      audit.Emitter
	Checkpoint checkpoint.Manager
	Metrics    *metrics.Metrics
}

// Pipeline runs capture, ingest and validate against one configuration.
type Pipeline struct {
	cfg        config.Config
	capture    *capture.Engine
	merger     *merge.Engine
	validator  *validate.Validator
	archiver   *archive.Archiver
	audit      audit.Emitter
	checkpoint checkpoint.Manager
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// New creates a pipeline.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	v, err := validate.New(cfg.Library.SnapshotLocation, cfg.Proof.Dir, cfg.Proof.RunNamePattern, opts.Metrics)
	if err != nil {
		return nil, err
	}

	store := snapshot.New(cfg.Library.SnapshotLocation, tables.ParquetConfig{Compression: cfg.Library.Compression})

	p := &Pipeline{
		cfg:        cfg,
		validator:  v,
		archiver:   opts.Archiver,
		audit:      opts.Audit,
		checkpoint: opts.Checkpoint,
		metrics:    opts.Metrics,
		log:        logging.Component("pipeline"),
		now:        time.Now,
	}
	if opts.Index != nil {
		p.merger = merge.NewEngine(opts.Index, store, opts.Metrics)
	}
	if opts.Fetcher != nil {
		p.capture = capture.NewEngine(opts.Fetcher, capture.Config{
			PageSize: cfg.Capture.PageSize,
			MaxPages: cfg.Capture.MaxPages,
		}, opts.Metrics)
	}
	if p.audit == nil {
		p.audit, _ = audit.NewEmitter(config.AuditConfig{})
	}
	if p.checkpoint == nil {
		p.checkpoint, _ = checkpoint.NewManager(checkpoint.Config{})
	}
	return p, nil
}

// CaptureResult describes a completed capture.
type CaptureResult struct {
	RunDir   string
	Manifest *capture.RunManifest
	Archive  *archive.Result
}

// Capture fetches [start, end] into a new run directory under the raw dir.
func (p *Pipeline) Capture(ctx context.Context, start, end, label string) (*CaptureResult, error) {
	if p.capture == nil {
		return nil, fmt.Errorf("capture requires a fetcher")
	}
	if !labelPattern.MatchString(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	began := time.Now()
	runDir := filepath.Join(p.cfg.Capture.RawDir, capture.RunDirName(p.now(), label))

	manifest, err := p.capture.FetchRange(ctx, start, end, runDir)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStageDuration("capture", time.Since(began).Seconds())

	result := &CaptureResult{RunDir: runDir, Manifest: manifest}

	if err := p.audit.Emit(ctx, audit.EventCaptureCompleted, runDir, map[string]any{
		"requested_start_date":      manifest.RequestedStartDate,
		"requested_end_date":        manifest.RequestedEndDate,
		"observed_min_auction_date": manifest.ObservedMinAuctionDate,
		"observed_max_auction_date": manifest.ObservedMaxAuctionDate,
		"pages":                     manifest.Pages,
		"total_rows":                manifest.TotalRows,
		"page_sha256":               manifest.PageSHA256,
	}); err != nil {
		return result, fmt.Errorf("audit capture: %w", err)
	}

	if err := checkpoint.Update(ctx, p.checkpoint, label, p.now(), func(cp *checkpoint.Checkpoint) {
		cp.LastCaptureRun = runDir
		cp.LastCaptureEnd = end
	}); err != nil {
		p.log.Warn("failed to save checkpoint", "label", label, "error", err)
	}

	if p.archiver != nil {
		res, err := p.archiver.Archive(ctx, runDir)
		if err != nil {
			return result, fmt.Errorf("archive run: %w", err)
		}
		result.Archive = res
	}

	return result, nil
}

// IngestSummary is printed after a successful ingest.
type IngestSummary struct {
	RunDir           string `json:"run_dir"`
	NormalizedRows   int    `json:"normalized_rows"`
	InsertedRows     int    `json:"inserted_rows"`
	HistoryTotalRows int    `json:"history_total_rows"`
	CreatedAtUTC     string `json:"created_at_utc"`
}

// Ingest normalizes a completed run and merges it into both sinks. The
// run's page hashes are checked against its manifest first.
func (p *Pipeline) Ingest(ctx context.Context, runDir string) (*IngestSummary, error) {
	if p.merger == nil {
		return nil, fmt.Errorf("ingest requires a library index")
	}
	began := time.Now()
	log := logging.RunLogger(p.log, runDir)

	if _, err := capture.VerifyRun(runDir); err != nil {
		if errors.Is(err, capture.ErrNoManifest) {
			return nil, fmt.Errorf("%w: %w", ErrIncompleteRun, err)
		}
		return nil, fmt.Errorf("verify run: %w", err)
	}

	raw, err := capture.LoadRecords(runDir)
	if err != nil {
		return nil, err
	}

	records := normalize.Records(raw)
	summary := normalize.Summarize(records)
	for kind, n := range summary.TailKinds {
		p.metrics.AddRecordsNormalized(kind, n)
	}
	for flag, n := range summary.Flags {
		p.metrics.AddQualityFlags(flag, n)
	}
	log.Info("records normalized", "rows", summary.Rows, "tail_kinds", summary.TailKinds)

	res, err := p.merger.Merge(ctx, records)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStageDuration("ingest", time.Since(began).Seconds())

	out := &IngestSummary{
		RunDir:           runDir,
		NormalizedRows:   len(records),
		InsertedRows:     res.Inserted,
		HistoryTotalRows: res.Total,
		CreatedAtUTC:     capture.FormatTimestamp(p.now()),
	}

	details := struct {
		*IngestSummary
		SchemaVersion string `json:"schema_version"`
	}{out, tables.SchemaVersion}
	if err := p.audit.Emit(ctx, audit.EventIngestCompleted, runDir, details); err != nil {
		return out, fmt.Errorf("audit ingest: %w", err)
	}

	if label := capture.RunLabel(runDir); label != "" {
		if err := checkpoint.Update(ctx, p.checkpoint, label, p.now(), func(cp *checkpoint.Checkpoint) {
			cp.LastIngestedRun = runDir
			cp.HistoryRows = res.Total
		}); err != nil {
			log.Warn("failed to save checkpoint", "label", label, "error", err)
		}
	}

	return out, nil
}

// Validate cross-checks the snapshot against runDir. The outcome is audited
// whether it passes or fails.
func (p *Pipeline) Validate(ctx context.Context, runDir, proofPath string) (*validate.Report, error) {
	began := time.Now()
	report, verr := p.validator.Validate(runDir, proofPath)
	p.metrics.ObserveStageDuration("validate", time.Since(began).Seconds())

	var ce *validate.CheckError
	switch {
	case verr == nil:
		if err := p.audit.Emit(ctx, audit.EventValidationPassed, runDir, map[string]any{
			"proof_path": report.ProofPath,
			"checks":     report.OK,
		}); err != nil {
			return report, fmt.Errorf("audit validation: %w", err)
		}
	case errors.As(verr, &ce):
		if err := p.audit.Emit(ctx, audit.EventValidationFailed, runDir, map[string]any{
			"proof_path": report.ProofPath,
			"check":      ce.Check,
			"reason":     ce.Reason,
		}); err != nil {
			p.log.Warn("failed to audit validation failure", "error", err)
		}
	}
	return report, verr
}
