// Package archive mirrors completed capture runs into object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/auction-ledger/internal/capture"
	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// compressedSuffix is appended to page bodies stored with zstd.
const compressedSuffix = ".zst"

// checksumKey names the object metadata entry holding the checksum of the
// uncompressed file.
const checksumKey = "sha256"

var (
	// ErrChecksumMismatch is returned by Restore when an object does not
	// match the checksum recorded when it was archived.
	ErrChecksumMismatch = errors.New("archived object checksum mismatch")

	// ErrInvalidObjectName is returned by Restore for objects that do not
	// map to a single file inside the run directory.
	ErrInvalidObjectName = errors.New("invalid archived object name")
)

// Result reports what one archive call did.
type Result struct {
	RunName  string
	Uploaded []string
	Skipped  []string
}

// Archiver copies run directories into a bucket. Objects are written once
// and never replaced.
type Archiver struct {
	bucket *Bucket
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	log    *slog.Logger
}

// New creates an archiver writing to bucket.
func New(bucket *Bucket) (*Archiver, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Archiver{
		bucket: bucket,
		enc:    enc,
		dec:    dec,
		log:    logging.Component("archive"),
	}, nil
}

// Close releases the codec and the bucket.
func (a *Archiver) Close() error {
	a.enc.Close()
	a.dec.Close()
	return a.bucket.Close()
}

type runFile struct {
	name     string
	compress bool
}

// runFiles lists the files of a completed run in upload order. The manifest
// goes last so an archived run is only complete once it is present.
func runFiles(runDir string) ([]runFile, error) {
	pages, err := capture.ListPages(runDir)
	if err != nil {
		return nil, err
	}

	files := make([]runFile, 0, 2*len(pages)+1)
	for _, p := range pages {
		name := filepath.Base(p)
		files = append(files, runFile{name: name, compress: true})

		sidecar := strings.TrimSuffix(name, ".json") + ".meta.json"
		if _, err := os.Stat(filepath.Join(runDir, sidecar)); err == nil {
			files = append(files, runFile{name: sidecar})
		}
	}
	return append(files, runFile{name: capture.ManifestName}), nil
}

// Archive uploads runDir under <prefix><run name>/. The run must have a
// manifest. Objects already present in the bucket are skipped.
func (a *Archiver) Archive(ctx context.Context, runDir string) (*Result, error) {
	if _, err := capture.ReadManifest(runDir); err != nil {
		return nil, err
	}

	files, err := runFiles(runDir)
	if err != nil {
		return nil, err
	}

	runName := filepath.Base(filepath.Clean(runDir))
	result := &Result{RunName: runName}
	log := logging.RunLogger(a.log, runDir)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		objectName := f.name
		if f.compress {
			objectName += compressedSuffix
		}
		key := a.bucket.Key(runName + "/" + objectName)

		exists, err := a.bucket.Exists(ctx, key)
		if err != nil {
			return result, fmt.Errorf("check %s: %w", key, err)
		}
		if exists {
			result.Skipped = append(result.Skipped, key)
			continue
		}

		data, err := os.ReadFile(filepath.Join(runDir, f.name))
		if err != nil {
			return result, fmt.Errorf("read %s: %w", f.name, err)
		}

		md := map[string]string{checksumKey: tables.ComputeChecksum(data)}
		contentType := "application/json"
		if f.compress {
			data = a.enc.EncodeAll(data, nil)
			contentType = "application/zstd"
		}

		if err := a.bucket.Put(ctx, key, data, contentType, md); err != nil {
			return result, err
		}
		result.Uploaded = append(result.Uploaded, key)
	}

	log.Info("run archived",
		"uploaded", len(result.Uploaded),
		"skipped", len(result.Skipped),
		"destination", a.bucket.URI(a.bucket.Key(runName+"/")),
	)
	return result, nil
}

// Restore downloads an archived run into destDir/<run name>, decompressing
// page bodies. Every object is checked against its recorded checksum and
// files that already exist are never replaced. The restored run is verified
// against its manifest.
func (a *Archiver) Restore(ctx context.Context, runName, destDir string) (string, error) {
	prefix := a.bucket.Key(runName + "/")
	keys, err := a.bucket.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("run %s not found under %s", runName, a.bucket.URI(prefix))
	}

	runDir := filepath.Join(destDir, runName)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", runDir, err)
	}

	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		compressed := strings.HasSuffix(name, compressedSuffix)
		name = strings.TrimSuffix(name, compressedSuffix)
		if !isPlainName(name) {
			return "", fmt.Errorf("%w: %q", ErrInvalidObjectName, key)
		}

		data, err := a.bucket.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if compressed {
			if data, err = a.dec.DecodeAll(data, nil); err != nil {
				return "", fmt.Errorf("decompress %s: %w", key, err)
			}
		}

		md, err := a.bucket.Metadata(ctx, key)
		if err != nil {
			return "", err
		}
		if sum := md[checksumKey]; !tables.VerifyChecksum(data, sum) {
			return "", fmt.Errorf("%w: %s recorded %q", ErrChecksumMismatch, key, sum)
		}

		if err := capture.WriteExclusive(filepath.Join(runDir, name), data); err != nil {
			return "", err
		}
	}

	if _, err := capture.VerifyRun(runDir); err != nil {
		return "", fmt.Errorf("verify restored run: %w", err)
	}
	return runDir, nil
}

// isPlainName reports whether name is a single path element.
func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}
