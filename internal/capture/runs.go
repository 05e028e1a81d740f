package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/withObsrvr/auction-ledger/internal/fiscaldata"
)

var pageFilePattern = regexp.MustCompile(`^page_(\d{4,})\.json$`)

// PageFileName returns the body file name for page n.
func PageFileName(n int) string {
	return fmt.Sprintf("page_%04d.json", n)
}

// PageMetaFileName returns the sidecar file name for page n.
func PageMetaFileName(n int) string {
	return fmt.Sprintf("page_%04d.meta.json", n)
}

// RunDirName builds a run directory name: YYYYMMDDTHHMMSSZ_<label>.
func RunDirName(t time.Time, label string) string {
	return t.UTC().Format("20060102T150405Z") + "_" + label
}

// RunLabel returns the part of a run directory name after the timestamp, or
// "" when the name does not carry one.
func RunLabel(runDir string) string {
	name := filepath.Base(filepath.Clean(runDir))
	_, label, ok := strings.Cut(name, "Z_")
	if !ok {
		return ""
	}
	return label
}

// ListPages returns the page body files of a run in page-number order.
// Sidecars, the manifest and stray files are ignored.
func ListPages(runDir string) ([]string, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("read run dir %s: %w", runDir, err)
	}

	type numbered struct {
		n    int
		path string
	}
	var pages []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, numbered{n: n, path: filepath.Join(runDir, entry.Name())})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.path
	}
	return paths, nil
}

// LoadRecords returns every raw record of a run in page order.
func LoadRecords(runDir string) ([]fiscaldata.Record, error) {
	paths, err := ListPages(runDir)
	if err != nil {
		return nil, err
	}

	var records []fiscaldata.Record
	for _, path := range paths {
		page, err := readPage(path)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Data...)
	}
	return records, nil
}

func readPage(path string) (*fiscaldata.Page, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", path, err)
	}
	page, err := fiscaldata.ParsePage(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformedPage, err)
	}
	return page, nil
}

// observation is the result of re-scanning the written pages.
type observation struct {
	minDate *string
	maxDate *string
	rows    int
}

// observePages scans every page body on disk. Dates compare as strings,
// which orders YYYY-MM-DD correctly; empty dates are skipped.
func observePages(runDir string) (observation, error) {
	var obs observation

	paths, err := ListPages(runDir)
	if err != nil {
		return obs, err
	}

	var minDate, maxDate string
	for _, path := range paths {
		page, err := readPage(path)
		if err != nil {
			return obs, err
		}
		obs.rows += len(page.Data)
		for _, rec := range page.Data {
			d := rec.String("auction_date")
			if d == "" {
				continue
			}
			if minDate == "" || d < minDate {
				minDate = d
			}
			if d > maxDate {
				maxDate = d
			}
		}
	}

	if minDate != "" {
		obs.minDate = &minDate
		obs.maxDate = &maxDate
	}
	return obs, nil
}
