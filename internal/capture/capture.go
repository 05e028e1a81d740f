// Package capture performs the paginated, content-addressed fetch of one
// auction date range into an immutable run directory.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/withObsrvr/auction-ledger/internal/fiscaldata"
	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/metrics"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// dateLayout is the API's auction_date format.
const dateLayout = "2006-01-02"

// Fetcher issues one request per page. *fiscaldata.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, params fiscaldata.RequestParams) (*fiscaldata.Response, error)
}

// Config controls pagination.
type Config struct {
	PageSize int
	MaxPages int
}

// Engine captures auction pages into run directories.
type Engine struct {
	fetcher Fetcher
	cfg     Config
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewEngine creates a capture engine. m may be nil.
func NewEngine(fetcher Fetcher, cfg Config, m *metrics.Metrics) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10000
	}
	return &Engine{
		fetcher: fetcher,
		cfg:     cfg,
		metrics: m,
		log:     logging.Component("capture"),
		now:     time.Now,
	}
}

// FetchRange captures every page for auction dates in [start, end] into
// runDir and returns the manifest it wrote. On any failure no manifest is
// written; pages already on disk are left in place and the run counts as
// incomplete.
func (e *Engine) FetchRange(ctx context.Context, start, end, runDir string) (*RunManifest, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("create run dir %s: %w", runDir, err)
	}

	log := logging.RunLogger(e.log, runDir)
	log.Info("capture starting", "start", start, "end", end, "page_size", e.cfg.PageSize)

	var hashes []string
	for page := 1; ; page++ {
		if page > e.cfg.MaxPages {
			e.metrics.IncCaptureErrors("page_limit")
			return nil, &TransportError{Page: page, Err: fmt.Errorf("%w: more than %d pages", ErrPageLimit, e.cfg.MaxPages)}
		}

		hash, hasNext, err := e.fetchPage(ctx, runDir, start, end, page)
		if err != nil {
			log.Error("capture aborted", "page", page, "error", err)
			return nil, err
		}
		hashes = append(hashes, hash)

		if !hasNext {
			break
		}
	}

	obs, err := observePages(runDir)
	if err != nil {
		return nil, fmt.Errorf("scan pages: %w", err)
	}

	manifest := &RunManifest{
		RequestedStartDate:     start,
		RequestedEndDate:       end,
		ObservedMinAuctionDate: obs.minDate,
		ObservedMaxAuctionDate: obs.maxDate,
		RetrievedAtUTC:         FormatTimestamp(e.now()),
		Pages:                  len(hashes),
		TotalRows:              obs.rows,
		PageSHA256:             hashes,
	}

	if err := WriteManifest(runDir, manifest); err != nil {
		return nil, err
	}

	e.metrics.AddPagesFetched(manifest.Pages)
	e.metrics.AddRowsCaptured(manifest.TotalRows)

	log.Info("capture complete",
		"pages", manifest.Pages,
		"total_rows", manifest.TotalRows,
		"observed_min", deref(manifest.ObservedMinAuctionDate),
		"observed_max", deref(manifest.ObservedMaxAuctionDate),
	)
	return manifest, nil
}

// fetchPage requests, persists and hashes one page.
func (e *Engine) fetchPage(ctx context.Context, runDir, start, end string, page int) (string, bool, error) {
	params := fiscaldata.NewRequestParams(start, end, page, e.cfg.PageSize)

	resp, err := e.fetcher.Get(ctx, params)
	if err != nil {
		e.metrics.IncCaptureErrors("transport")
		return "", false, &TransportError{Page: page, Err: err}
	}

	parsed, err := fiscaldata.ParsePage(resp.Body)
	if err != nil {
		e.metrics.IncCaptureErrors("malformed")
		return "", false, fmt.Errorf("page %d: %w: %v", page, ErrMalformedPage, err)
	}

	hash := tables.SHA256Hex(resp.Body)

	if err := WriteExclusive(filepath.Join(runDir, PageFileName(page)), resp.Body); err != nil {
		return "", false, err
	}

	meta := PageMeta{
		Source:         fiscaldata.Source,
		RetrievedAtUTC: FormatTimestamp(e.now()),
		RequestURL:     resp.URL,
		RequestParams:  params,
		SHA256:         hash,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("marshal page meta: %w", err)
	}
	if err := WriteExclusive(filepath.Join(runDir, PageMetaFileName(page)), metaBytes); err != nil {
		return "", false, err
	}

	e.log.Debug("page captured", "page", page, "rows", len(parsed.Data), "sha256", hash)
	return hash, parsed.HasNext(), nil
}

func checkRange(start, end string) error {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("%w: start %q", ErrInvalidRange, start)
	}
	en, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("%w: end %q", ErrInvalidRange, end)
	}
	if en.Before(s) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end, start)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
