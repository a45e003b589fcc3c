package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	flag "github.com/spf13/pflag"

	docconv "github.com/alnah/go-docconv"
	"github.com/alnah/go-docconv/internal/hints"
)

// Overall doctor verdicts.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// ciVariables are set by common CI services.
var ciVariables = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// doctorResult is what doctor found, printed as text or JSON.
type doctorResult struct {
	Status     string        `json:"status"`
	Browser    browserReport `json:"browser"`
	Host       hostReport    `json:"host"`
	PDFWorkers int           `json:"pdf_workers"`
	Converters []string      `json:"converters"`
	Warnings   []string      `json:"warnings,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// browserReport describes the browser used for html->pdf.
type browserReport struct {
	Found     bool   `json:"found"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Sandbox   bool   `json:"sandbox"`
	Override  string `json:"rod_browser_bin,omitempty"`
	NoSandbox string `json:"rod_no_sandbox,omitempty"`
}

// hostReport describes the machine docconv runs on.
type hostReport struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	CPUs         int    `json:"cpus"`
	Container    string `json:"container,omitempty"` // detection signal
	CI           string `json:"ci,omitempty"`        // variable that gave CI away
	TempDir      string `json:"temp_dir"`
	TempWritable bool   `json:"temp_writable"`
}

func (r *doctorResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *doctorResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// doctorChecks run in order; later checks may read what earlier ones found.
var doctorChecks = []func(*doctorResult){
	checkHost,
	checkBrowser,
	checkTempDir,
	checkConverters,
}

// runDoctorCmd diagnoses the environment. It exits with ExitBrowser when
// no browser is found, since only PDF output needs one, and ExitGeneral
// for any other error.
func runDoctorCmd(args []string, env *Environment) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	fs.Usage = func() { printDoctorUsage(env.Stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitUsage
	}

	result := diagnose()
	if *asJSON {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	switch {
	case result.Status != statusErrors:
		return ExitSuccess
	case !result.Browser.Found:
		return ExitBrowser
	default:
		return ExitGeneral
	}
}

func diagnose() *doctorResult {
	result := &doctorResult{}
	for _, check := range doctorChecks {
		check(result)
	}

	result.Status = statusReady
	if len(result.Warnings) > 0 {
		result.Status = statusWarnings
	}
	if len(result.Errors) > 0 {
		result.Status = statusErrors
	}
	return result
}

func checkHost(r *doctorResult) {
	r.Host.OS, r.Host.Arch = runtime.GOOS, runtime.GOARCH
	r.Host.CPUs = runtime.GOMAXPROCS(0)
	r.Host.Container = containerSignal()
	for _, v := range ciVariables {
		if os.Getenv(v) != "" {
			r.Host.CI = v
			break
		}
	}
	r.PDFWorkers = docconv.ResolvePoolSize(0)
}

// checkBrowser locates Chrome the way the renderer does: ROD_BROWSER_BIN
// first, then the launcher's search path.
func checkBrowser(r *doctorResult) {
	b := &r.Browser
	b.Override = os.Getenv("ROD_BROWSER_BIN")
	b.NoSandbox = os.Getenv("ROD_NO_SANDBOX")
	b.Sandbox = b.NoSandbox != "1"

	path := b.Override
	if path == "" {
		var ok bool
		if path, ok = launcher.LookPath(); !ok {
			r.fail("no Chrome/Chromium found; PDF output needs one (install it or set ROD_BROWSER_BIN)")
			return
		}
	}
	if _, err := os.Stat(path); err != nil {
		r.fail("browser binary %s: %v", path, err)
		return
	}
	b.Found, b.Path = true, path

	out, err := exec.Command(path, "--version").Output() // #nosec G204 -- ROD_BROWSER_BIN or launcher path
	if err != nil {
		r.warn("could not read the browser version: %v", err)
	} else {
		b.Version = strings.TrimSpace(string(out))
	}

	if (r.Host.Container != "" || r.Host.CI != "") && b.Sandbox {
		r.warn("sandboxed Chrome usually fails in containers and CI; set ROD_NO_SANDBOX=1")
	}
}

// containerSignal returns what revealed a container, or "".
func containerSignal() string {
	switch {
	case os.Getenv("DOCCONV_CONTAINER") == "1":
		return "DOCCONV_CONTAINER=1"
	case hints.IsInContainer():
		return "/.dockerenv"
	case os.Getenv("container") != "":
		return "container=" + os.Getenv("container")
	case os.Getenv("KUBERNETES_SERVICE_HOST") != "":
		return "KUBERNETES_SERVICE_HOST"
	}
	return ""
}

// checkTempDir verifies the renderer can write its page files.
func checkTempDir(r *doctorResult) {
	r.Host.TempDir = os.TempDir()
	marker := filepath.Join(r.Host.TempDir, "docconv-doctor")
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		r.fail("temp directory %s is not writable", r.Host.TempDir)
		return
	}
	_ = os.Remove(marker)
	r.Host.TempWritable = true
}

func checkConverters(r *doctorResult) {
	reg := docconv.DefaultRegistry()
	defer func() { _ = reg.Close() }()
	for _, e := range reg.Edges() {
		r.Converters = append(r.Converters, e.String())
	}
}

// printDoctorResult writes the human-readable report.
func printDoctorResult(w io.Writer, r *doctorResult) {
	line := func(tag, format string, args ...any) {
		fmt.Fprintf(w, "  %-7s %s\n", "["+tag+"]", fmt.Sprintf(format, args...))
	}

	fmt.Fprintf(w, "docconv doctor\n\nBrowser (PDF output)\n")
	switch b := r.Browser; {
	case !b.Found:
		line("ERROR", "not found")
	default:
		line("OK", "%s", b.Path)
		if b.Version != "" {
			line("OK", "%s", b.Version)
		}
		if b.Sandbox {
			line("OK", "sandbox on")
		} else {
			line("OK", "sandbox off (ROD_NO_SANDBOX=1)")
		}
	}

	fmt.Fprintf(w, "\nHost\n")
	line("OK", "%s/%s, %d CPU(s), %d PDF worker(s) by default", r.Host.OS, r.Host.Arch, r.Host.CPUs, r.PDFWorkers)
	if r.Host.Container != "" {
		line("OK", "container (%s)", r.Host.Container)
	}
	if r.Host.CI != "" {
		line("OK", "CI (%s)", r.Host.CI)
	}
	if r.Host.TempWritable {
		line("OK", "temp directory writable")
	} else {
		line("ERROR", "temp directory not writable")
	}

	fmt.Fprintf(w, "\nConverters\n  %s\n", strings.Join(r.Converters, ", "))

	if len(r.Warnings)+len(r.Errors) > 0 {
		fmt.Fprintf(w, "\nProblems\n")
	}
	for _, warning := range r.Warnings {
		line("WARN", "%s", warning)
	}
	for _, e := range r.Errors {
		line("ERROR", "%s", e)
	}

	fmt.Fprintln(w)
	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Ready.")
	case statusWarnings:
		fmt.Fprintln(w, "Ready, with warnings.")
	default:
		fmt.Fprintln(w, "Not ready: fix the errors above.")
	}
}
