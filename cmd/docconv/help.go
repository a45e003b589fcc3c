package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docconv <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  convert    Convert documents between formats")
	fmt.Fprintln(w, "  formats    List formats and conversion paths")
	fmt.Fprintln(w, "  doctor     Check the system for PDF output")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'docconv help <command>' for details on a specific command.")
}

// printConvertUsage prints usage for the convert command.
func printConvertUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docconv convert [input...] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Convert documents between formats, chaining converters when needed.")
	fmt.Fprintln(w, "Without a job file or input flags, the current directory must hold")
	fmt.Fprintln(w, "exactly one job file (.yaml, .yml or .json).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input:")
	fmt.Fprintln(w, "  -j, --job-file <path>       Job file")
	fmt.Fprintln(w, "  -i, --input-file <path>     Input file (repeatable)")
	fmt.Fprintln(w, "      --files <a,b,...>       Files to convert or combine, in order")
	fmt.Fprintln(w, "  -d, --input-dir <path>      Directory scanned for input files")
	fmt.Fprintln(w, "  -f, --from <format>         Input format (default: from extensions)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -t, --to <format>           Output format: html, pdf, markdown, odt")
	fmt.Fprintln(w, "  -o, --output-dir <dir>      Output directory")
	fmt.Fprintln(w, "      --output-file <path>    Output file for a single document")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "      --css <name|path>       CSS style: default, minimal, or a file")
	fmt.Fprintln(w, "      --template <name|path>  HTML page template")
	fmt.Fprintln(w, "      --toc                   Add a table of contents")
	fmt.Fprintln(w, "      --toc-title <s>         Table of contents heading")
	fmt.Fprintln(w, "      --embed-images          Inline local images as data URIs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Combine:")
	fmt.Fprintln(w, "      --combine               Merge all documents into one output")
	fmt.Fprintln(w, "      --combine-output <path> Combined file, relative to --output-dir")
	fmt.Fprintln(w, "      --no-page-breaks        No page break between documents")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Execution:")
	fmt.Fprintln(w, "  -w, --workers <n>           Parallel workers (0 = auto)")
	fmt.Fprintln(w, "      --timeout <d>           PDF page timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w, "      --incremental           Skip documents unchanged since the last run")
	fmt.Fprintln(w, "      --incremental-mode <m>  Change detection: hash, mtime")
	fmt.Fprintln(w, "      --state-file <path>     Incremental state file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -q, --quiet                 Only show errors")
	fmt.Fprintln(w, "  -v, --verbose               Log every task")
	fmt.Fprintln(w, "      --log-format <f>        Log format: text, json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  DOCCONV_JOB_FILE, DOCCONV_WORKERS, DOCCONV_TIMEOUT, DOCCONV_LOG_FORMAT")
}

// printFormatsUsage prints usage for the formats command.
func printFormatsUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docconv formats [--from <format>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "List formats and converters, or the formats reachable from one format.")
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docconv doctor [--json]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check Chrome, the environment and the temp directory.")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}

	switch args[0] {
	case "convert":
		printConvertUsage(env.Stdout)
	case "formats":
		printFormatsUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: docconv version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: docconv help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
