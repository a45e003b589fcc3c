package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	docconv "github.com/alnah/go-docconv"
	"github.com/alnah/go-docconv/internal/config"
	"github.com/alnah/go-docconv/internal/ctxlog"
	"github.com/alnah/go-docconv/internal/hints"
)

// Sentinel errors for CLI operations.
var (
	ErrNoInput            = errors.New("no input specified")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidTimeout     = errors.New("invalid timeout")
	ErrInvalidLogFormat   = errors.New("invalid log format")
)

// maxWorkers bounds --workers; each PDF worker may own a browser.
const maxWorkers = 32

// runConvertCmd parses flags, runs the conversion and maps the outcome to
// an exit code.
func runConvertCmd(ctx context.Context, args []string, env *Environment) int {
	flags, positional, err := parseConvertFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printConvertUsage(env.Stdout)
			return ExitSuccess
		}
		fmt.Fprintln(env.Stderr, err)
		printConvertUsage(env.Stderr)
		return ExitUsage
	}

	if err := runConvert(ctx, positional, flags, env); err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

// runConvert orchestrates the conversion: it resolves the job description,
// builds the engine and prints the report.
func runConvert(ctx context.Context, positional []string, flags *convertFlags, env *Environment) error {
	envCfg := loadEnvConfig()
	if !flags.common.quiet {
		warnUnknownEnvVars(env.Stderr)
	}

	if err := validateWorkers(flags.run.workers); err != nil {
		return err
	}
	timeout, err := resolveTimeout(flags.run.timeout, envCfg)
	if err != nil {
		return err
	}
	logger, err := newLogger(flags.common, envCfg, env)
	if err != nil {
		return err
	}

	wd, err := env.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	desc, err := resolveDescription(wd, positional, flags, envCfg)
	if err != nil {
		return err
	}
	mergeFlags(desc, wd, positional, flags)
	if err := desc.Validate(); err != nil {
		return err
	}

	defaultWorkers := docconv.ResolvePoolSize(0)
	if envCfg.Workers > 0 {
		defaultWorkers = envCfg.Workers
	}
	job, err := docconv.NewJob(desc, docconv.WithDefaultParallelism(defaultWorkers))
	if err != nil {
		return err
	}

	opts := []docconv.Option{docconv.WithLogger(logger), docconv.WithTimeout(timeout)}
	eng := docconv.New(append(opts, env.EngineOptions...)...)
	defer func() { _ = eng.Close() }()

	report, err := eng.Run(ctxlog.WithLogger(ctx, logger), job)
	if report == nil {
		return withHints(err, job, eng)
	}

	printReport(report, flags.common, env)
	if err != nil {
		return withHints(fmt.Errorf("%d of %d task(s) failed: %w",
			report.Results.Count(docconv.StatusFailed), len(report.Results), err), job, eng)
	}
	return nil
}

// resolveDescription loads the job file named by --job-file or
// DOCCONV_JOB_FILE. Without one and without input flags, wd is searched for
// a single job file. With input flags only, an empty description anchored
// at wd is returned.
func resolveDescription(wd string, positional []string, flags *convertFlags, envCfg *envConfig) (*config.Description, error) {
	path := flags.input.jobFile
	if path == "" {
		path = envCfg.JobFile
	}
	if path != "" {
		return config.LoadDescription(anchor(wd, path))
	}

	hasInput := len(positional) > 0 || len(flags.input.files) > 0 || flags.input.dir != ""
	if hasInput {
		return &config.Description{BaseDir: wd}, nil
	}

	found, err := docconv.DiscoverJobFile(wd)
	switch {
	case errors.Is(err, docconv.ErrNoJobFile):
		return nil, fmt.Errorf("%w%s", ErrNoInput, hints.ForNoJobFile())
	case errors.Is(err, docconv.ErrAmbiguousJobFile):
		return nil, fmt.Errorf("%w%s", err, hints.ForAmbiguousJobFile(found.Candidates))
	case err != nil:
		return nil, err
	}
	return config.LoadDescription(found.Path)
}

// anchor resolves a command-line path against the working directory, since
// relative paths in a description follow the job file instead.
func anchor(wd, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(wd, p)
}

// mergeFlags applies command-line values over the description.
// Priority: CLI flags > job file > environment > defaults.
func mergeFlags(desc *config.Description, wd string, positional []string, flags *convertFlags) {
	set := flags.set

	var files []string
	for _, group := range [][]string{flags.input.files, flags.input.listed, positional} {
		for _, f := range group {
			files = append(files, anchor(wd, f))
		}
	}
	if len(files) > 0 {
		desc.Input.Files = files
		desc.Input.Directory = ""
	}
	if len(flags.input.listed) > 0 {
		// The command-line order replaces the job file's merge order.
		desc.Documents = nil
		desc.Combine.Documents = nil
	}
	if set("input-dir") {
		desc.Input.Directory = anchor(wd, flags.input.dir)
	}
	if set("from") {
		desc.Input.Format = flags.input.from
	}

	if set("to") {
		desc.Output.Format = flags.output.to
	}
	if set("output-dir", "output") {
		desc.Output.Directory = anchor(wd, flags.output.dir)
	}
	if set("output-file") {
		desc.Output.File = anchor(wd, flags.output.file)
	}

	if set("css", "style") {
		desc.Options.CSS = flags.options.css
	}
	if set("template") {
		desc.Options.Template = flags.options.template
	}
	if set("toc") {
		desc.Options.TOC = flags.options.toc
	}
	if set("toc-title") {
		desc.Options.TOCTitle = flags.options.tocTitle
	}
	if set("embed-images") {
		desc.Options.Images.Embed = flags.options.embedImages
	}

	if set("combine") {
		desc.Combine.Enabled = flags.combine.enabled
	}
	if set("combine-output") {
		desc.Combine.Enabled = true
		desc.Combine.OutputFile = flags.combine.output
	}
	if set("no-page-breaks") {
		breaks := !flags.combine.noPageBreaks
		desc.Combine.PageBreaks = &breaks
	}

	if set("workers") && flags.run.workers > 0 {
		workers := flags.run.workers
		desc.Parallelism = &workers
	}
	if set("incremental") {
		desc.Incremental = flags.run.incremental
	}
	if set("incremental-mode") {
		desc.IncrementalMode = flags.run.incrementalMode
	}
	if set("state-file") {
		desc.StateFile = anchor(wd, flags.run.stateFile)
	}
}

// validateWorkers rejects negative or oversized worker counts.
// Zero means auto.
func validateWorkers(n int) error {
	if n < 0 || n > maxWorkers {
		return fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidWorkerCount, n, maxWorkers)
	}
	return nil
}

// resolveTimeout picks the PDF timeout.
// Priority: --timeout > DOCCONV_TIMEOUT > library default.
func resolveTimeout(flagValue string, envCfg *envConfig) (time.Duration, error) {
	if flagValue != "" {
		d, err := time.ParseDuration(flagValue)
		if err != nil {
			return 0, fmt.Errorf("%w: %q (use e.g. 30s, 2m)", ErrInvalidTimeout, flagValue)
		}
		if d <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidTimeout, flagValue)
		}
		return d, nil
	}
	if envCfg.Timeout > 0 {
		return envCfg.Timeout, nil
	}
	return docconv.DefaultTimeout, nil
}

// newLogger builds the run logger: warnings only by default, every task
// with --verbose, errors only with --quiet.
func newLogger(common commonFlags, envCfg *envConfig, env *Environment) (*slog.Logger, error) {
	level := slog.LevelWarn
	switch {
	case common.quiet:
		level = slog.LevelError
	case common.verbose:
		level = slog.LevelDebug
	}

	format := common.logFormat
	if format == "" {
		format = envCfg.LogFormat
	}
	switch strings.ToLower(format) {
	case "", "text":
		return ctxlog.New(env.Stderr, level), nil
	case "json":
		return slog.New(slog.NewJSONHandler(env.Stderr, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("%w: %q (use text or json)", ErrInvalidLogFormat, format)
	}
}

// withHints appends actionable hints to well-known failures.
func withHints(err error, job *docconv.Job, eng *docconv.Engine) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docconv.ErrNoPathFound):
		var reachable []string
		for _, f := range eng.Registry(job.Parallelism).Reachable(job.From) {
			reachable = append(reachable, f.String())
		}
		return fmt.Errorf("%w%s", err, hints.ForNoPath(reachable))
	case errors.Is(err, docconv.ErrBrowserConnect):
		return fmt.Errorf("%w%s", err, hints.ForBrowserConnect())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w%s", err, hints.ForTimeout())
	case errors.Is(err, docconv.ErrStateStore):
		return fmt.Errorf("%w%s", err, hints.ForIncremental(job.StateFile))
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w%s", err, hints.ForOutputDirectory())
	default:
		return err
	}
}

// printReport prints one line per document and a summary.
func printReport(report *docconv.Report, common commonFlags, env *Environment) {
	var succeeded, skipped, failed int
	for _, d := range report.Documents() {
		switch d.Status {
		case docconv.StatusFailed:
			failed++
			fmt.Fprintf(env.Stderr, "FAILED %s (%s): %v\n", d.Document.Source, d.Step, d.Err)
			continue
		case docconv.StatusSkipped:
			skipped++
		default:
			succeeded++
		}

		if common.quiet || report.Job.Combine != nil {
			continue
		}
		if d.Status == docconv.StatusSkipped {
			fmt.Fprintf(env.Stdout, "Up to date %s\n", d.Output)
		} else {
			fmt.Fprintf(env.Stdout, "Created %s\n", d.Output)
		}
	}

	if res, ok := report.Combined(); ok {
		switch {
		case res.Status == docconv.StatusFailed:
			fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", filepath.Base(report.Job.Combine.OutputFile), res.Err)
			if dropped := report.DroppedDocuments(); len(dropped) > 0 {
				fmt.Fprintf(env.Stderr, "  missing documents: %s\n", strings.Join(dropped, ", "))
			}
		case common.quiet:
		case res.Status == docconv.StatusSkipped:
			fmt.Fprintf(env.Stdout, "Up to date %s\n", report.Job.Combine.OutputFile)
		default:
			fmt.Fprintf(env.Stdout, "Created %s\n", report.Job.Combine.OutputFile)
		}
	}

	if common.quiet || len(report.Job.Documents) < 2 {
		return
	}
	fmt.Fprintf(env.Stdout, "\n%d succeeded, %d up to date, %d failed", succeeded, skipped, failed)
	if common.verbose {
		fmt.Fprintf(env.Stdout, " (%v)", report.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(env.Stdout)
}
