package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/auction-ledger/internal/capture"
	"github.com/withObsrvr/auction-ledger/internal/config"
	"github.com/withObsrvr/auction-ledger/internal/snapshot"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

type fixture struct {
	root      string
	runDir    string
	snapshot  string
	proofDir  string
	proofPath string
}

func rec(date, cusip, kind string) tables.CanonicalRecord {
	return tables.CanonicalRecord{
		AuctionID:   date + "_" + cusip,
		AuctionDate: date,
		CUSIP:       cusip,
		TailKind:    kind,
		TailMethod:  kind,
	}
}

func strPtr(s string) *string { return &s }

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// newFixture lays out a consistent snapshot, run manifest and proof pack.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:     root,
		runDir:   filepath.Join(root, "raw", "20240110T090000Z_test"),
		snapshot: filepath.Join(root, "library", "history_snapshot.parquet"),
		proofDir: filepath.Join(root, "proof"),
	}
	f.proofPath = filepath.Join(f.proofDir, "proof_missing_tail_proxy_test.json")

	require.NoError(t, os.MkdirAll(f.runDir, 0755))
	require.NoError(t, os.MkdirAll(f.proofDir, 0755))

	store := snapshot.New(f.snapshot, tables.DefaultParquetConfig())
	require.NoError(t, store.Write([]tables.CanonicalRecord{
		rec("2024-01-02", "AAA", tables.TailKindYield),
		rec("2024-01-03", "BBB", tables.TailKindDiscountRate),
		rec("2024-01-04", "CCC", tables.TailKindMissing),
		rec("2024-01-05", "DDD", tables.TailKindMissing),
	}))

	require.NoError(t, capture.WriteManifest(f.runDir, &capture.RunManifest{
		RequestedStartDate:     "2024-01-01",
		RequestedEndDate:       "2024-01-10",
		ObservedMinAuctionDate: strPtr("2024-01-02"),
		ObservedMaxAuctionDate: strPtr("2024-01-05"),
		RetrievedAtUTC:         "2024-01-10T09:00:00Z",
		Pages:                  1,
		TotalRows:              4,
		PageSHA256:             []string{"abc"},
	}))

	f.writeProof(t, map[string]any{
		"run_dir":                    f.runDir,
		"missing_count_parquet":      2,
		"missing_count_found_in_raw": 2,
	})
	return f
}

func (f *fixture) writeProof(t *testing.T, v any) {
	t.Helper()
	writeJSON(t, f.proofPath, v)
}

func (f *fixture) validator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(f.snapshot, f.proofDir, config.DefaultRunNamePattern, nil)
	require.NoError(t, err)
	return v
}

func requireCheck(t *testing.T, err error, kind error, check string) *CheckError {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var ce *CheckError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, check, ce.Check)
	return ce
}

func TestValidate_Passes(t *testing.T) {
	f := newFixture(t)

	report, err := f.validator(t).Validate(f.runDir, "")
	require.NoError(t, err)
	assert.Equal(t, f.proofPath, report.ProofPath)
	assert.Contains(t, report.OK, "rows == 4")
	assert.Contains(t, report.OK, "min_date == 2024-01-02")
	assert.Contains(t, report.OK, "max_date == 2024-01-05")
	assert.Equal(t, "validate_snapshot PASSED", report.OK[len(report.OK)-1])
}

func TestValidate_ExplicitProofPath(t *testing.T) {
	f := newFixture(t)
	other := filepath.Join(f.root, "elsewhere.json")
	require.NoError(t, os.Rename(f.proofPath, other))

	_, err := f.validator(t).Validate(f.runDir, other)
	require.NoError(t, err)
}

func TestValidate_MissingSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.snapshot))

	report, err := f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrMissingArtifact, "snapshot_exists")
	assert.Contains(t, ce.Reason, f.snapshot)
	assert.Empty(t, report.OK)
}

func TestValidate_MissingProof(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.proofPath))

	_, err := f.validator(t).Validate(f.runDir, "")
	requireCheck(t, err, ErrMissingArtifact, "proof_exists")
}

func TestValidate_ManifestResolvedFromRunDir(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.runDir, capture.ManifestName)))

	_, err := f.validator(t).Validate(f.runDir, "")
	requireCheck(t, err, ErrMissingArtifact, "manifest_exists")
}

func TestValidate_NamingViolation(t *testing.T) {
	f := newFixture(t)
	badRun := filepath.Join(f.root, "raw", "latest")
	require.NoError(t, os.Rename(f.runDir, badRun))

	_, err := f.validator(t).Validate(badRun, f.proofPath)
	requireCheck(t, err, ErrNamingViolation, "run_name")
}

func TestValidate_ManifestWithoutObservedBounds(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, capture.WriteManifest(f.runDir, &capture.RunManifest{
		RequestedStartDate: "2024-01-01",
		RequestedEndDate:   "2024-01-10",
		RetrievedAtUTC:     "2024-01-10T09:00:00Z",
		PageSHA256:         []string{},
	}))

	_, err := f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrMissingArtifact, "provenance")
	assert.Contains(t, ce.Reason, "observed_min_auction_date")
}

func TestValidate_ManifestMissingKey(t *testing.T) {
	f := newFixture(t)
	writeJSON(t, filepath.Join(f.runDir, capture.ManifestName), map[string]any{
		"observed_min_auction_date": "2024-01-02",
		"observed_max_auction_date": "2024-01-05",
		"total_rows":                4,
	})

	_, err := f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrMissingArtifact, "provenance")
	assert.Equal(t, "RUN_META missing key: requested_start_date", ce.Reason)
}

func TestValidate_RowsMismatch(t *testing.T) {
	f := newFixture(t)
	m, err := capture.ReadManifest(f.runDir)
	require.NoError(t, err)
	m.TotalRows = 7
	require.NoError(t, capture.WriteManifest(f.runDir, m))

	report, err := f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrConsistencyMismatch, "row_count")
	assert.Equal(t, "rows mismatch: got 4 expected 7", ce.Reason)
	assert.Equal(t, "rows mismatch: got 4 expected 7", err.Error())
	assert.NotContains(t, report.OK, "validate_snapshot PASSED")
}

func TestValidate_DateBoundsMismatch(t *testing.T) {
	f := newFixture(t)
	m, err := capture.ReadManifest(f.runDir)
	require.NoError(t, err)
	m.ObservedMaxAuctionDate = strPtr("2024-01-06")
	require.NoError(t, capture.WriteManifest(f.runDir, m))

	_, err = f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrConsistencyMismatch, "max_date")
	assert.Equal(t, "max_date mismatch: got 2024-01-05 expected 2024-01-06", ce.Reason)
}

func TestValidate_TailKindsIncomplete(t *testing.T) {
	f := newFixture(t)
	store := snapshot.New(f.snapshot, tables.DefaultParquetConfig())
	require.NoError(t, store.Write([]tables.CanonicalRecord{
		rec("2024-01-02", "AAA", tables.TailKindYield),
		rec("2024-01-03", "BBB", tables.TailKindYield),
		rec("2024-01-04", "CCC", tables.TailKindMissing),
		rec("2024-01-05", "DDD", tables.TailKindMissing),
	}))

	_, err := f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrConsistencyMismatch, "tail_kind_values")
	assert.Equal(t, "tail_kind missing expected value: discount_rate", ce.Reason)
}

func TestValidate_ProofCounts(t *testing.T) {
	tests := []struct {
		name  string
		proof map[string]any
		check string
	}{
		{
			name:  "parquet count differs",
			proof: map[string]any{"missing_count_parquet": 3, "missing_count_found_in_raw": 2},
			check: "proof_missing_parquet",
		},
		{
			name:  "raw count differs",
			proof: map[string]any{"missing_count_parquet": 2, "missing_count_found_in_raw": 1},
			check: "proof_missing_raw",
		},
		{
			name:  "raw count absent",
			proof: map[string]any{"missing_count_parquet": 2},
			check: "proof_missing_raw",
		},
		{
			name:  "parquet count null",
			proof: map[string]any{"missing_count_parquet": nil, "missing_count_found_in_raw": 2},
			check: "proof_missing_parquet",
		},
		{
			name:  "parquet count not numeric",
			proof: map[string]any{"missing_count_parquet": "two", "missing_count_found_in_raw": 2},
			check: "proof_missing_parquet",
		},
		{
			name:  "raw count is an object",
			proof: map[string]any{"missing_count_parquet": 2, "missing_count_found_in_raw": map[string]any{"n": 2}},
			check: "proof_missing_raw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.proof["run_dir"] = f.runDir
			f.writeProof(t, tt.proof)

			_, err := f.validator(t).Validate(f.runDir, "")
			requireCheck(t, err, ErrConsistencyMismatch, tt.check)
		})
	}
}

func TestValidate_ProofCountsAsStrings(t *testing.T) {
	tests := []struct {
		name    string
		parquet any
		raw     any
	}{
		{"decimal strings", "2", "2"},
		{"padded string", " 2 ", 2},
		{"float", 2.0, "2"},
		{"fraction truncates", 2.7, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.writeProof(t, map[string]any{
				"run_dir":                    f.runDir,
				"missing_count_parquet":      tt.parquet,
				"missing_count_found_in_raw": tt.raw,
			})

			_, err := f.validator(t).Validate(f.runDir, "")
			require.NoError(t, err)
		})
	}
}

func TestValidate_ProofCountWrongTypeReason(t *testing.T) {
	f := newFixture(t)
	f.writeProof(t, map[string]any{
		"run_dir":                    f.runDir,
		"missing_count_parquet":      true,
		"missing_count_found_in_raw": 2,
	})

	_, err := f.validator(t).Validate(f.runDir, "")
	ce := requireCheck(t, err, ErrConsistencyMismatch, "proof_missing_parquet")
	assert.Equal(t, "proof missing_count_parquet is not an integer: true", ce.Reason)
}

func TestValidate_ProofRunDirNotString(t *testing.T) {
	f := newFixture(t)
	f.writeProof(t, map[string]any{
		"run_dir":                    42,
		"missing_count_parquet":      2,
		"missing_count_found_in_raw": 2,
	})

	_, err := f.validator(t).Validate(f.runDir, "")
	requireCheck(t, err, ErrConsistencyMismatch, "proof_run_dir")
}

func TestValidate_ProofRunDir(t *testing.T) {
	f := newFixture(t)
	f.writeProof(t, map[string]any{
		"run_dir":                    f.runDir + string(filepath.Separator),
		"missing_count_parquet":      2,
		"missing_count_found_in_raw": 2,
	})
	_, err := f.validator(t).Validate(f.runDir, "")
	require.NoError(t, err)

	f.writeProof(t, map[string]any{
		"run_dir":                    filepath.Join(f.root, "raw", "20240109T090000Z_test"),
		"missing_count_parquet":      2,
		"missing_count_found_in_raw": 2,
	})
	_, err = f.validator(t).Validate(f.runDir, "")
	requireCheck(t, err, ErrConsistencyMismatch, "proof_run_dir")
}

func TestProofFileName(t *testing.T) {
	assert.Equal(t, "proof_missing_tail_proxy_730d_v5.json", ProofFileName("dist/raw/20260109T002921Z_730d_v5"))
}

func TestNew_BadPattern(t *testing.T) {
	_, err := New("a", "b", "(", nil)
	assert.Error(t, err)
}
