package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/auction-ledger/internal/fiscaldata"
)

// ManifestName is the run manifest file inside a run directory.
const ManifestName = "RUN_META.json"

// timestampLayout is UTC with second precision and a literal Z.
const timestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t the way sidecars and manifests record time.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timestampLayout)
}

// RunManifest summarizes a completed capture. It exists only when every
// page of the run was fetched and written.
type RunManifest struct {
	RequestedStartDate     string   `json:"requested_start_date"`
	RequestedEndDate       string   `json:"requested_end_date"`
	ObservedMinAuctionDate *string  `json:"observed_min_auction_date"`
	ObservedMaxAuctionDate *string  `json:"observed_max_auction_date"`
	RetrievedAtUTC         string   `json:"retrieved_at_utc"`
	Pages                  int      `json:"pages"`
	TotalRows              int      `json:"total_rows"`
	PageSHA256             []string `json:"page_sha256"`
}

// PageMeta is the sidecar written next to each page body.
type PageMeta struct {
	Source         string                   `json:"source"`
	RetrievedAtUTC string                   `json:"retrieved_at_utc"`
	RequestURL     string                   `json:"request_url"`
	RequestParams  fiscaldata.RequestParams `json:"request_params"`
	SHA256         string                   `json:"sha256"`
}

// WriteManifest writes RUN_META.json atomically: a uniquely named temp file
// in the run directory is renamed over the target.
func WriteManifest(runDir string, m *RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(runDir, ManifestName)
	tempPath := filepath.Join(runDir, fmt.Sprintf(".%s.%s.tmp", ManifestName, uuid.NewString()))

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp manifest %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return nil
}

// ReadManifest loads RUN_META.json from a run directory.
func ReadManifest(runDir string) (*RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", runDir, ErrNoManifest)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// WriteExclusive creates path and fails if it already exists, so a page is
// never overwritten once written.
func WriteExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}
