package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without editing job files.
type envConfig struct {
	JobFile   string        // DOCCONV_JOB_FILE: job file path
	Workers   int           // DOCCONV_WORKERS: parallel workers
	Timeout   time.Duration // DOCCONV_TIMEOUT: PDF page timeout
	LogFormat string        // DOCCONV_LOG_FORMAT: text or json
}

// knownEnvVars lists valid DOCCONV_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"DOCCONV_JOB_FILE":   true,
	"DOCCONV_WORKERS":    true,
	"DOCCONV_TIMEOUT":    true,
	"DOCCONV_LOG_FORMAT": true,
	"DOCCONV_CONTAINER":  true,
}

// loadEnvConfig reads configuration from environment variables.
// Invalid numbers and durations are ignored.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		JobFile:   os.Getenv("DOCCONV_JOB_FILE"),
		LogFormat: os.Getenv("DOCCONV_LOG_FORMAT"),
	}

	if timeout := os.Getenv("DOCCONV_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	if workers := os.Getenv("DOCCONV_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized DOCCONV_* variables.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "DOCCONV_") {
			continue
		}
		name, _, _ := strings.Cut(env, "=")
		if !knownEnvVars[name] {
			fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
		}
	}
}
