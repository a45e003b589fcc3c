package main

import (
	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	quiet     bool
	verbose   bool
	logFormat string
}

// inputFlags selects the documents to convert.
type inputFlags struct {
	jobFile string
	files   []string
	listed  []string // --files, merge order when combining
	dir     string
	from    string
}

// outputFlags selects the target format and location.
type outputFlags struct {
	to   string
	dir  string
	file string
}

// optionFlags holds conversion options.
type optionFlags struct {
	css         string
	template    string
	toc         bool
	tocTitle    string
	embedImages bool
}

// combineFlags holds flags for merging documents.
type combineFlags struct {
	enabled      bool
	output       string
	noPageBreaks bool
}

// runFlags holds execution flags.
type runFlags struct {
	workers         int
	timeout         string
	incremental     bool
	incrementalMode string
	stateFile       string
}

// convertFlags holds all flags for the convert command.
type convertFlags struct {
	common  commonFlags
	input   inputFlags
	output  outputFlags
	options optionFlags
	combine combineFlags
	run     runFlags

	// set reports whether any of the named flags was given on the command
	// line.
	set func(names ...string) bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log every task")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text, json")
}

// addInputFlags adds input selection flags to a FlagSet.
func addInputFlags(fs *flag.FlagSet, f *inputFlags) {
	fs.StringVarP(&f.jobFile, "job-file", "j", "", "job file (.yaml, .yml or .json)")
	fs.StringSliceVarP(&f.files, "input-file", "i", nil, "input file (repeatable)")
	fs.StringSliceVar(&f.listed, "files", nil, "files to convert or combine, in order (comma-separated)")
	fs.StringVarP(&f.dir, "input-dir", "d", "", "directory scanned for input files")
	fs.StringVarP(&f.from, "from", "f", "", "input format (default: from extensions)")
}

// addOutputFlags adds output flags to a FlagSet.
func addOutputFlags(fs *flag.FlagSet, f *outputFlags) {
	fs.StringVarP(&f.to, "to", "t", "", "output format: html, pdf, markdown, odt")
	fs.StringVarP(&f.dir, "output-dir", "o", "", "output directory")
	fs.StringVar(&f.dir, "output", "", "output directory")
	_ = fs.MarkHidden("output")
	fs.StringVar(&f.file, "output-file", "", "output file for a single document")
}

// addOptionFlags adds conversion option flags to a FlagSet.
func addOptionFlags(fs *flag.FlagSet, f *optionFlags) {
	fs.StringVar(&f.css, "css", "", "CSS style name or file path")
	fs.StringVar(&f.css, "style", "", "CSS style name or file path")
	_ = fs.MarkHidden("style")
	fs.StringVar(&f.template, "template", "", "HTML page template name or file path")
	fs.BoolVar(&f.toc, "toc", false, "add a table of contents")
	fs.StringVar(&f.tocTitle, "toc-title", "", "table of contents heading")
	fs.BoolVar(&f.embedImages, "embed-images", false, "inline local images as data URIs")
}

// addCombineFlags adds combine flags to a FlagSet.
func addCombineFlags(fs *flag.FlagSet, f *combineFlags) {
	fs.BoolVar(&f.enabled, "combine", false, "merge all documents into one output")
	fs.StringVar(&f.output, "combine-output", "", "combined output file")
	fs.BoolVar(&f.noPageBreaks, "no-page-breaks", false, "no page break between combined documents")
}

// addRunFlags adds execution flags to a FlagSet.
func addRunFlags(fs *flag.FlagSet, f *runFlags) {
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel workers (0 = auto)")
	fs.StringVar(&f.timeout, "timeout", "", "PDF page timeout (e.g., 30s, 2m)")
	fs.BoolVar(&f.incremental, "incremental", false, "skip documents unchanged since the last run")
	fs.StringVar(&f.incrementalMode, "incremental-mode", "", "change detection: hash, mtime")
	fs.StringVar(&f.stateFile, "state-file", "", "incremental state file")
}

// buildConvertFlagSet registers every convert flag into a new FlagSet.
func buildConvertFlagSet(f *convertFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)

	addInputFlags(fs, &f.input)
	addOutputFlags(fs, &f.output)
	addOptionFlags(fs, &f.options)
	addCombineFlags(fs, &f.combine)
	addRunFlags(fs, &f.run)
	addCommonFlags(fs, &f.common)

	f.set = func(names ...string) bool {
		for _, n := range names {
			if fs.Changed(n) {
				return true
			}
		}
		return false
	}
	return fs
}

// parseConvertFlags parses convert command flags and returns positional args.
func parseConvertFlags(args []string) (*convertFlags, []string, error) {
	f := &convertFlags{}
	fs := buildConvertFlagSet(f)
	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return f, fs.Args(), nil
}
