package docconv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alnah/go-docconv/internal/ctxlog"
)

// Engine runs conversion jobs: it plans them against a converter registry,
// executes the plan and reports per-task outcomes. An Engine may run
// several jobs one after another; Close releases its converters.
type Engine struct {
	mu           sync.Mutex
	registry     *Registry
	ownsRegistry bool
	store        StateStore
	logger       *slog.Logger
	parallelism  int
	timeout      time.Duration
	combiner     *Combiner
	progress     func(TaskResult)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each PDF page load and print of the default registry.
// Panics if d <= 0.
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("docconv: timeout must be positive")
	}
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithRegistry replaces the default converters. The caller keeps ownership
// and closes the registry.
func WithRegistry(r *Registry) Option {
	if r == nil {
		panic("docconv: nil registry")
	}
	return func(e *Engine) {
		e.registry = r
		e.ownsRegistry = false
	}
}

// WithStateStore replaces the job's state file for incremental runs.
func WithStateStore(s StateStore) Option {
	if s == nil {
		panic("docconv: nil state store")
	}
	return func(e *Engine) {
		e.store = s
	}
}

// WithLogger sets the logger; the engine logs nothing by default.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("docconv: nil logger")
	}
	return func(e *Engine) {
		e.logger = l
	}
}

// WithParallelism overrides the job's worker count. Panics if n < 1.
func WithParallelism(n int) Option {
	if n < 1 {
		panic("docconv: parallelism must be at least 1")
	}
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithProgressFunc registers a callback invoked once per finished task.
func WithProgressFunc(fn func(TaskResult)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithEngineCombiner sets the combiner used for combined jobs.
func WithEngineCombiner(c *Combiner) Option {
	if c == nil {
		panic("docconv: nil combiner")
	}
	return func(e *Engine) {
		e.combiner = c
	}
}

// New creates an Engine. The default registry, with its browsers, is built
// on the first Run.
func New(opts ...Option) *Engine {
	e := &Engine{
		timeout:  DefaultTimeout,
		combiner: NewCombiner(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry used by the engine, creating the default
// one if needed. parallelism sizes the browser pool of a new default
// registry.
func (e *Engine) Registry(parallelism int) *Registry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registry == nil {
		e.registry = DefaultRegistry(WithPDFWorkers(parallelism), WithPDFTimeout(e.timeout))
		e.ownsRegistry = true
	}
	return e.registry
}

// Close releases the converters of the default registry.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registry == nil || !e.ownsRegistry {
		return nil
	}
	err := e.registry.Close()
	e.registry = nil
	return err
}

// Report describes one run.
type Report struct {
	RunID    string
	Job      *Job
	Plan     *Plan
	Results  Results
	Started  time.Time
	Duration time.Duration
}

// Run plans and executes job. Planning failures return a nil report and no
// task runs. Otherwise the report lists every task outcome and the error
// joins the task failures; a converted subset is kept even when other
// documents fail.
func (e *Engine) Run(ctx context.Context, job *Job) (report *Report, err error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", ErrInvalidJob)
	}

	runID := uuid.NewString()
	logger := e.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	logger = logger.With("run", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	parallelism := job.Parallelism
	if e.parallelism > 0 {
		parallelism = e.parallelism
	}
	parallelism = max(parallelism, 1)

	tracker, err := e.tracker(job)
	if err != nil {
		return nil, err
	}

	reg := e.Registry(parallelism)
	plan, err := NewPlanner(reg, WithTracker(tracker)).Plan(job)
	if err != nil {
		return nil, err
	}
	logger.Info("plan ready",
		"from", job.From, "to", job.To,
		"documents", len(job.Documents),
		"tasks", len(plan.Tasks),
		"parallelism", parallelism,
		"combine", job.Combine != nil,
		"incremental", job.Incremental,
	)

	report = &Report{RunID: runID, Job: job, Plan: plan, Started: time.Now()}
	exec := NewExecutor(parallelism,
		WithExecutorTracker(tracker),
		WithCombiner(e.combiner),
		WithProgress(e.progress),
	)
	report.Results = exec.Run(ctx, plan)
	report.Duration = time.Since(report.Started)

	logger.Info("run finished",
		"succeeded", report.Results.Count(StatusSucceeded),
		"skipped", report.Results.Count(StatusSkipped),
		"failed", report.Results.Count(StatusFailed),
		"duration", report.Duration,
	)

	if err := report.Results.Err(); err != nil {
		return report, err
	}
	if !job.Incremental {
		removeWorkDir(job)
	}
	return report, nil
}

// tracker builds the change tracker for job.
func (e *Engine) tracker(job *Job) (*Tracker, error) {
	if !job.Incremental {
		return NewTracker(nil, false, nil), nil
	}

	var fp Fingerprinter = HashFingerprinter{}
	if job.IncrementalMode == ModeMTime {
		fp = ModTimeFingerprinter{}
	}

	store := e.store
	if store == nil {
		fs, err := OpenFileStore(job.StateFile)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	return NewTracker(store, true, fp), nil
}

// removeWorkDir deletes intermediate files of a non-incremental run. The
// state directory goes too when nothing else lives in it.
func removeWorkDir(job *Job) {
	work := job.WorkDir()
	_ = os.RemoveAll(work)
	_ = os.Remove(filepath.Dir(work))
}

// DocumentReport summarizes the tasks of one document.
type DocumentReport struct {
	Document Document
	Status   TaskStatus
	Output   string // final or intermediate artifact
	Step     string // failing step, e.g. "markdown->html"
	Err      error
}

// Documents summarizes the run per document, in job order. A document is
// skipped when every task of its chain was skipped, and failed when any
// task failed; Step and Err name the first failure.
func (r *Report) Documents() []DocumentReport {
	docs := r.Job.Documents
	if r.Job.Combine != nil {
		docs = r.Job.Combine.Documents
	}

	out := make([]DocumentReport, 0, len(docs))
	for _, d := range docs {
		dr := DocumentReport{Document: d, Status: StatusSkipped, Output: d.Source}
		seen := false
		for _, res := range r.Results {
			t := res.Task
			if t.Document == nil || t.Document.Source != d.Source {
				continue
			}
			seen = true
			if res.Status == StatusFailed && dr.Err == nil {
				dr.Status = StatusFailed
				dr.Step = stepName(t)
				dr.Err = res.Err
			}
			if res.Status == StatusSucceeded && dr.Status == StatusSkipped {
				dr.Status = StatusSucceeded
			}
			dr.Output = t.Output
		}
		if !seen {
			// Zero-hop document used as is.
			dr.Status = StatusSucceeded
		}
		out = append(out, dr)
	}
	return out
}

// Combined returns the result of the task producing the combined output,
// or false when the job does not combine.
func (r *Report) Combined() (TaskResult, bool) {
	if r.Job.Combine == nil || len(r.Results) == 0 {
		return TaskResult{}, false
	}
	for _, res := range r.Results {
		if res.Task.Final && res.Task.Document == nil {
			return res, true
		}
	}
	return TaskResult{}, false
}

// DroppedDocuments lists the documents missing from a failed combine.
func (r *Report) DroppedDocuments() []string {
	var out []string
	for _, d := range r.Documents() {
		if d.Status == StatusFailed {
			out = append(out, d.Document.Source)
		}
	}
	return out
}

func stepName(t *Task) string {
	switch t.Kind {
	case TaskConvert:
		return t.Edge.String()
	default:
		return t.Kind.String()
	}
}

// IsUserError reports whether err stems from the job rather than from
// conversion, so callers can choose exit codes.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidJob) ||
		errors.Is(err, ErrUnsupportedConversion) ||
		errors.Is(err, ErrNoPathFound)
}
