package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	args := os.Args[1:]

	// Configure GOMAXPROCS before any worker count is resolved.
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	if slices.Contains(args, "-v") || slices.Contains(args, "--verbose") {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))
	}

	ctx, stop := notifyContext(context.Background())
	code := run(ctx, args, DefaultEnv())
	stop()
	os.Exit(code)
}

// run dispatches to a command and returns the process exit code.
func run(ctx context.Context, args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	switch args[0] {
	case "convert":
		return runConvertCmd(ctx, args[1:], env)
	case "formats":
		return runFormatsCmd(args[1:], env)
	case "doctor":
		return runDoctorCmd(args[1:], env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "docconv %s\n", Version)
		return ExitSuccess
	case "help", "-h", "--help":
		return runHelp(args[1:], env)
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
}
