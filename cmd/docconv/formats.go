package main

import (
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	docconv "github.com/alnah/go-docconv"
)

// runFormatsCmd lists the built-in converters, or with --from the formats
// a source format can reach and the path to each.
func runFormatsCmd(args []string, env *Environment) int {
	fs := flag.NewFlagSet("formats", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	from := fs.StringP("from", "f", "", "show the formats reachable from this one")
	fs.Usage = func() { printFormatsUsage(env.Stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitUsage
	}

	reg := docconv.DefaultRegistry()
	defer func() { _ = reg.Close() }()

	if *from == "" {
		printFormats(env, reg)
		return ExitSuccess
	}

	src, err := docconv.ParseFormat(*from)
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}
	reachable := reg.Reachable(src)
	if len(reachable) == 0 {
		fmt.Fprintf(env.Stdout, "Nothing converts from %s\n", src)
		return ExitSuccess
	}
	fmt.Fprintf(env.Stdout, "From %s:\n", src)
	for _, to := range reachable {
		path, err := reg.FindPath(src, to)
		if err != nil {
			continue
		}
		fmt.Fprintf(env.Stdout, "  %-10s %s\n", to, path)
	}
	return ExitSuccess
}

func printFormats(env *Environment, reg *docconv.Registry) {
	fmt.Fprintln(env.Stdout, "Formats:")
	for _, f := range reg.Formats() {
		fmt.Fprintf(env.Stdout, "  %-10s %s\n", f, strings.Join(f.Extensions(), ", "))
	}
	fmt.Fprintln(env.Stdout)
	fmt.Fprintln(env.Stdout, "Converters:")
	for _, e := range reg.Edges() {
		fmt.Fprintf(env.Stdout, "  %s\n", e)
	}
}
