package main

// Notes:
// - exitCodeFor: we test the sentinel errors of the docconv and config
//   packages, plus wrapped and joined errors to verify the errors.Is chain.
// - Exit code constants: we verify Unix conventions (0=success, 1=general, 2=usage)
//   and custom codes are below 126.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"errors"
	"fmt"
	"os"
	"testing"

	docconv "github.com/alnah/go-docconv"
	"github.com/alnah/go-docconv/internal/config"
)

// ---------------------------------------------------------------------------
// TestExitCodeFor - Error to exit code mapping
// ---------------------------------------------------------------------------

func TestExitCodeFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		// Success
		{"nil error", nil, ExitSuccess},

		// Browser errors (exit 4)
		{"browser connect", docconv.ErrBrowserConnect, ExitBrowser},
		{"page create", docconv.ErrPageCreate, ExitBrowser},
		{"page load", docconv.ErrPageLoad, ExitBrowser},
		{"pdf generation", docconv.ErrPDFGeneration, ExitBrowser},
		{"browser failure inside a task", fmt.Errorf("convert:a.md: %w: %w", docconv.ErrConversionFailure, docconv.ErrBrowserConnect), ExitBrowser},

		// I/O errors (exit 3)
		{"file not exist", os.ErrNotExist, ExitIO},
		{"permission denied", os.ErrPermission, ExitIO},
		{"state store", docconv.ErrStateStore, ExitIO},
		{"no input", ErrNoInput, ExitIO},
		{"wrapped file not exist", fmt.Errorf("reading: %w", os.ErrNotExist), ExitIO},

		// Usage/job/validation errors (exit 2)
		{"invalid job", docconv.ErrInvalidJob, ExitUsage},
		{"unsupported conversion", docconv.ErrUnsupportedConversion, ExitUsage},
		{"no path", docconv.ErrNoPathFound, ExitUsage},
		{"unknown format", docconv.ErrUnknownFormat, ExitUsage},
		{"no job file", docconv.ErrNoJobFile, ExitUsage},
		{"ambiguous job file", docconv.ErrAmbiguousJobFile, ExitUsage},
		{"config not found", config.ErrConfigNotFound, ExitUsage},
		{"config parse", config.ErrConfigParse, ExitUsage},
		{"field too long", config.ErrFieldTooLong, ExitUsage},
		{"too many entries", config.ErrTooManyEntries, ExitUsage},
		{"empty path", config.ErrEmptyPath, ExitUsage},
		{"invalid workers", ErrInvalidWorkerCount, ExitUsage},
		{"invalid timeout", ErrInvalidTimeout, ExitUsage},
		{"invalid log format", ErrInvalidLogFormat, ExitUsage},
		{"wrapped config parse", fmt.Errorf("loading: %w", config.ErrConfigParse), ExitUsage},

		// General errors (exit 1)
		{"conversion failure", docconv.ErrConversionFailure, ExitGeneral},
		{"upstream failure", docconv.ErrUpstreamFailure, ExitGeneral},
		{"combine", docconv.ErrCombine, ExitGeneral},
		{"cancelled", docconv.ErrCancelled, ExitGeneral},
		{"joined task failures", errors.Join(docconv.ErrConversionFailure, docconv.ErrUpstreamFailure), ExitGeneral},
		{"unknown error", errors.New("boom"), ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestExitCodeConstants - Unix conventions
// ---------------------------------------------------------------------------

func TestExitCodeConstants(t *testing.T) {
	t.Parallel()

	if ExitSuccess != 0 || ExitGeneral != 1 || ExitUsage != 2 {
		t.Errorf("conventional codes changed: %d/%d/%d", ExitSuccess, ExitGeneral, ExitUsage)
	}
	for _, code := range []int{ExitIO, ExitBrowser} {
		if code <= ExitUsage || code >= 126 {
			t.Errorf("custom code %d outside 3-125", code)
		}
	}
}
