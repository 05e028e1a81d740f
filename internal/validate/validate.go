// Package validate cross-checks the historical snapshot against a run
// manifest and an externally produced proof pack.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/withObsrvr/auction-ledger/internal/capture"
	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/metrics"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

var (
	ErrMissingArtifact     = errors.New("missing artifact")
	ErrConsistencyMismatch = errors.New("consistency mismatch")
	ErrNamingViolation     = errors.New("naming violation")
)

// CheckError is the first failed check. It matches its Kind under errors.Is.
type CheckError struct {
	Kind   error
	Check  string
	Reason string
}

func (e *CheckError) Error() string {
	return e.Reason
}

func (e *CheckError) Unwrap() error {
	return e.Kind
}

// Report lists the checks that passed, in order.
type Report struct {
	RunDir    string
	ProofPath string
	OK        []string
}

func (r *Report) pass(format string, args ...any) {
	r.OK = append(r.OK, fmt.Sprintf(format, args...))
}

// ProofPack is the subset of the proof-pack document the validator reads.
// Fields stay raw because producers write counts as numbers or numeric
// strings.
type ProofPack struct {
	RunDir                 json.RawMessage `json:"run_dir"`
	MissingCountParquet    json.RawMessage `json:"missing_count_parquet"`
	MissingCountFoundInRaw json.RawMessage `json:"missing_count_found_in_raw"`
}

// ProofFileName returns the conventional proof-pack file name for a run.
func ProofFileName(runDir string) string {
	return fmt.Sprintf("proof_missing_tail_proxy_%s.json", capture.RunLabel(runDir))
}

// requiredKeys must be present in RUN_META.json.
var requiredKeys = []string{
	"requested_start_date",
	"requested_end_date",
	"observed_min_auction_date",
	"observed_max_auction_date",
	"retrieved_at_utc",
	"pages",
	"total_rows",
	"page_sha256",
}

// requiredTailKinds must all appear in the snapshot's tail_kind column.
var requiredTailKinds = []string{
	tables.TailKindYield,
	tables.TailKindDiscountRate,
	tables.TailKindMissing,
}

// Validator checks one snapshot. Every location is explicit.
type Validator struct {
	snapshotPath string
	proofDir     string
	runName      *regexp.Regexp
	metrics      *metrics.Metrics
	log          *slog.Logger
}

// New creates a validator. runNamePattern is the regular expression run
// directory base names must match. m may be nil.
func New(snapshotPath, proofDir, runNamePattern string, m *metrics.Metrics) (*Validator, error) {
	re, err := regexp.Compile(runNamePattern)
	if err != nil {
		return nil, fmt.Errorf("compile run name pattern: %w", err)
	}
	return &Validator{
		snapshotPath: snapshotPath,
		proofDir:     proofDir,
		runName:      re,
		metrics:      m,
		log:          logging.Component("validate"),
	}, nil
}

// Validate runs every check against runDir and stops at the first failure.
// proofPath may be empty, in which case the proof pack is looked up in the
// proof directory by run label. The returned report is never nil.
func (v *Validator) Validate(runDir, proofPath string) (*Report, error) {
	if proofPath == "" {
		proofPath = filepath.Join(v.proofDir, ProofFileName(runDir))
	}
	report := &Report{RunDir: runDir, ProofPath: proofPath}

	err := v.run(report, runDir, proofPath)

	var ce *CheckError
	switch {
	case err == nil:
		v.metrics.IncValidation(true, "")
		report.pass("validate_snapshot PASSED")
		v.log.Info("validation passed", "run_dir", runDir, "checks", len(report.OK))
	case errors.As(err, &ce):
		v.metrics.IncValidation(false, ce.Check)
		v.log.Warn("validation failed", "run_dir", runDir, "check", ce.Check, "reason", ce.Reason)
	default:
		v.metrics.IncValidation(false, "error")
	}
	return report, err
}

func (v *Validator) run(report *Report, runDir, proofPath string) error {
	manifestPath := filepath.Join(runDir, capture.ManifestName)

	for _, a := range []struct{ check, path string }{
		{"snapshot_exists", v.snapshotPath},
		{"proof_exists", proofPath},
		{"manifest_exists", manifestPath},
	} {
		if err := requireFile(a.check, a.path); err != nil {
			return err
		}
		report.pass("found %s", a.path)
	}

	name := filepath.Base(filepath.Clean(runDir))
	if !v.runName.MatchString(name) {
		return &CheckError{
			Kind:   ErrNamingViolation,
			Check:  "run_name",
			Reason: fmt.Sprintf("run directory name %q does not match %s", name, v.runName),
		}
	}
	report.pass("run name %s", name)

	manifest, err := readManifest(manifestPath)
	if err != nil {
		return err
	}
	report.pass("RUN_META has observed min/max")

	stats, err := tables.Inspect(v.snapshotPath)
	if err != nil {
		return fmt.Errorf("inspect snapshot: %w", err)
	}

	if stats.Rows != manifest.totalRows {
		return mismatch("row_count", "rows mismatch: got %d expected %d", stats.Rows, manifest.totalRows)
	}
	report.pass("rows == %d", manifest.totalRows)

	if stats.MinAuctionDate != manifest.obsMin {
		return mismatch("min_date", "min_date mismatch: got %s expected %s", stats.MinAuctionDate, manifest.obsMin)
	}
	report.pass("min_date == %s", manifest.obsMin)

	if stats.MaxAuctionDate != manifest.obsMax {
		return mismatch("max_date", "max_date mismatch: got %s expected %s", stats.MaxAuctionDate, manifest.obsMax)
	}
	report.pass("max_date == %s", manifest.obsMax)

	if !stats.HasTailKind {
		return mismatch("tail_kind_column", "missing column: tail_kind")
	}
	report.pass("tail_kind column present")

	for _, need := range requiredTailKinds {
		if stats.TailKinds[need] == 0 {
			return mismatch("tail_kind_values", "tail_kind missing expected value: %s", need)
		}
	}
	report.pass("tail_kind contains yield/discount_rate/missing")

	proof, err := readProof(proofPath)
	if err != nil {
		return err
	}
	missing := stats.MissingTailCount()

	if err := checkCount("proof_missing_parquet", "missing_count_parquet", proof.MissingCountParquet, missing); err != nil {
		return err
	}
	report.pass("proof missing_count_parquet matches parquet missing")

	if err := checkCount("proof_missing_raw", "missing_count_found_in_raw", proof.MissingCountFoundInRaw, missing); err != nil {
		return err
	}
	report.pass("proof missing_count_found_in_raw matches parquet missing")

	proofRunDir, ok := rawString(proof.RunDir)
	if !ok {
		return mismatch("proof_run_dir", "proof run_dir is not a string: %s", formatRaw(proof.RunDir))
	}
	if filepath.Clean(proofRunDir) != filepath.Clean(runDir) {
		return mismatch("proof_run_dir", "proof run_dir mismatch: got %s expected %s", proofRunDir, runDir)
	}
	report.pass("proof run_dir matches %s", runDir)

	return nil
}

func requireFile(check, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &CheckError{Kind: ErrMissingArtifact, Check: check, Reason: "missing " + path}
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return &CheckError{Kind: ErrMissingArtifact, Check: check, Reason: path + " is a directory"}
	}
	return nil
}

func mismatch(check, format string, args ...any) error {
	return &CheckError{Kind: ErrConsistencyMismatch, Check: check, Reason: fmt.Sprintf(format, args...)}
}

// checkCount compares a proof-pack count with the snapshot's missing count.
// An absent or null count never matches.
func checkCount(check, key string, raw json.RawMessage, missing int64) error {
	n, err := parseCount(raw)
	if err != nil {
		return mismatch(check, "proof %s is not an integer: %s", key, formatRaw(raw))
	}
	if n == nil || *n != missing {
		return mismatch(check, "proof %s mismatch vs parquet missing: got %s expected %d",
			key, formatRaw(raw), missing)
	}
	return nil
}

// parseCount reads an integer written as a JSON number or a decimal string.
// Fractional numbers truncate toward zero. Absent and null give nil.
func parseCount(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var n int64
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			n = i
			break
		}
		f, err := val.Float64()
		if err != nil || math.Abs(f) >= math.MaxInt64 {
			return nil, fmt.Errorf("count %s out of range", val)
		}
		n = int64(math.Trunc(f))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, err
		}
		n = i
	default:
		return nil, fmt.Errorf("unsupported count type %T", v)
	}
	return &n, nil
}

// rawString decodes a JSON string. Absent, null and non-string values
// report false.
func rawString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func formatRaw(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "<absent>"
	}
	return string(raw)
}

type manifestFacts struct {
	obsMin    string
	obsMax    string
	totalRows int64
}

// readManifest decodes RUN_META.json loosely so a missing key is reported
// by name instead of silently defaulting.
func readManifest(path string) (*manifestFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CheckError{
			Kind:   ErrMissingArtifact,
			Check:  "provenance",
			Reason: fmt.Sprintf("RUN_META is not a JSON object: %v", err),
		}
	}

	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, provenance("RUN_META missing key: %s", key)
		}
	}

	var m capture.RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, provenance("RUN_META has malformed fields: %v", err)
	}
	if m.ObservedMinAuctionDate == nil || *m.ObservedMinAuctionDate == "" ||
		m.ObservedMaxAuctionDate == nil || *m.ObservedMaxAuctionDate == "" {
		return nil, provenance("RUN_META missing observed_min_auction_date / observed_max_auction_date")
	}

	return &manifestFacts{
		obsMin:    *m.ObservedMinAuctionDate,
		obsMax:    *m.ObservedMaxAuctionDate,
		totalRows: int64(m.TotalRows),
	}, nil
}

func provenance(format string, args ...any) error {
	return &CheckError{Kind: ErrMissingArtifact, Check: "provenance", Reason: fmt.Sprintf(format, args...)}
}

func readProof(path string) (*ProofPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proof pack: %w", err)
	}
	var p ProofPack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &CheckError{
			Kind:   ErrMissingArtifact,
			Check:  "proof_parse",
			Reason: fmt.Sprintf("proof pack %s is not a JSON object: %v", path, err),
		}
	}
	return &p, nil
}
