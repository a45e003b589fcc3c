package docconv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/alnah/go-docconv/internal/config"
)

// DiscoveryResult is the outcome of DiscoverJobFile.
type DiscoveryResult struct {
	Path       string   // the job file when exactly one was found
	Candidates []string // every candidate, sorted
}

// DiscoverJobFile looks for a job file (.yaml, .yml or .json) directly in
// dir. Exactly one candidate is returned in Path. Several candidates fail
// with ErrAmbiguousJobFile and none with ErrNoJobFile; subdirectories,
// including the .docconv state directory, are not searched.
func DiscoverJobFile(dir string) (DiscoveryResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var res DiscoveryResult
	for _, e := range entries {
		if !e.Type().IsRegular() || !config.IsJobFileExt(e.Name()) {
			continue
		}
		res.Candidates = append(res.Candidates, filepath.Join(dir, e.Name()))
	}
	sort.Strings(res.Candidates)

	switch len(res.Candidates) {
	case 0:
		return res, fmt.Errorf("%w in %s", ErrNoJobFile, dir)
	case 1:
		res.Path = res.Candidates[0]
		return res, nil
	default:
		return res, fmt.Errorf("%w in %s: %d candidates", ErrAmbiguousJobFile, dir, len(res.Candidates))
	}
}
