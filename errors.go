package docconv

import "errors"

// Sentinel errors for library operations.
var (
	// Job construction and planning errors.
	ErrInvalidJob            = errors.New("invalid job")
	ErrUnknownFormat         = errors.New("unknown format")
	ErrNoPathFound           = errors.New("no conversion path")
	ErrUnsupportedConversion = errors.New("unsupported conversion")

	// Registry errors.
	ErrInvalidEdge   = errors.New("invalid converter registration")
	ErrDuplicateEdge = errors.New("converter already registered")

	// Execution errors, reported per task.
	ErrConversionFailure = errors.New("conversion failed")
	ErrUpstreamFailure   = errors.New("upstream task failed")
	ErrCancelled         = errors.New("cancelled before start")
	ErrCombine           = errors.New("combining documents failed")

	// Incremental state errors.
	ErrStateStore = errors.New("incremental state unavailable")

	// Job file discovery errors.
	ErrAmbiguousJobFile = errors.New("several job files found")
	ErrNoJobFile        = errors.New("no job file found")

	// Browser errors from the PDF renderer.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")
)
