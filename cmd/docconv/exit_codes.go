package main

import (
	"errors"
	"os"

	flag "github.com/spf13/pflag"

	docconv "github.com/alnah/go-docconv"
	"github.com/alnah/go-docconv/internal/config"
)

// Exit codes for the docconv CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Every task succeeded or was up to date
	ExitGeneral = 1 // A conversion failed or an unexpected error occurred
	ExitUsage   = 2 // Invalid flags, job file, or unsupported conversion
	ExitIO      = 3 // File not found, permission denied, state store errors
	ExitBrowser = 4 // Browser/Chrome errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, docconv.ErrBrowserConnect) ||
		errors.Is(err, docconv.ErrPageCreate) ||
		errors.Is(err, docconv.ErrPageLoad) ||
		errors.Is(err, docconv.ErrPDFGeneration) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, docconv.ErrStateStore) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	// Usage/job/validation errors (exit 2)
	if docconv.IsUserError(err) ||
		errors.Is(err, docconv.ErrUnknownFormat) ||
		errors.Is(err, docconv.ErrNoJobFile) ||
		errors.Is(err, docconv.ErrAmbiguousJobFile) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrTooManyEntries) ||
		errors.Is(err, config.ErrEmptyPath) ||
		errors.Is(err, ErrInvalidWorkerCount) ||
		errors.Is(err, ErrInvalidTimeout) ||
		errors.Is(err, ErrInvalidLogFormat) ||
		errors.Is(err, flag.ErrHelp) {
		return ExitUsage
	}

	return ExitGeneral
}
