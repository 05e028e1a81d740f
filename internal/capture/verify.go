package capture

import (
	"fmt"
	"os"

	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// VerifyRun re-hashes every page body of a completed run and checks the
// result against the manifest, in page order.
func VerifyRun(runDir string) (*RunManifest, error) {
	manifest, err := ReadManifest(runDir)
	if err != nil {
		return nil, err
	}

	paths, err := ListPages(runDir)
	if err != nil {
		return nil, err
	}

	if len(manifest.PageSHA256) != manifest.Pages {
		return nil, fmt.Errorf("%w: manifest lists %d hashes for %d pages",
			ErrHashMismatch, len(manifest.PageSHA256), manifest.Pages)
	}
	if len(paths) != manifest.Pages {
		return nil, fmt.Errorf("%w: found %d page files, manifest expects %d",
			ErrHashMismatch, len(paths), manifest.Pages)
	}

	for i, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", path, err)
		}
		if got := tables.SHA256Hex(body); got != manifest.PageSHA256[i] {
			return nil, fmt.Errorf("%w: %s has %s, manifest records %s",
				ErrHashMismatch, path, got, manifest.PageSHA256[i])
		}
	}

	return manifest, nil
}
