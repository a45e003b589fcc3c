package docconv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-docconv/internal/ctxlog"
)

// TaskStatus is the outcome of a task.
type TaskStatus int

// Task outcomes. Skipped counts as success.
const (
	StatusSucceeded TaskStatus = iota
	StatusSkipped
	StatusFailed
)

// String returns the status name.
func (s TaskStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
}

// TaskResult is the outcome of one planned task.
type TaskResult struct {
	Task     *Task
	Status   TaskStatus
	Artifact string // output path on success or skip
	Err      error
	Started  time.Time
	Duration time.Duration
}

// OK reports whether the task succeeded or was skipped.
func (r TaskResult) OK() bool { return r.Status != StatusFailed }

// Results holds one result per planned task, in plan order.
type Results []TaskResult

// Failed returns the failed results.
func (rs Results) Failed() []TaskResult {
	var out []TaskResult
	for _, r := range rs {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many results have the given status.
func (rs Results) Count(s TaskStatus) int {
	n := 0
	for _, r := range rs {
		if r.Status == s {
			n++
		}
	}
	return n
}

// Err joins the errors of failed tasks, or returns nil when every task
// succeeded or was skipped.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Task.ID, r.Err))
	}
	return errors.Join(errs...)
}

// Executor runs plans on a bounded pool of workers.
type Executor struct {
	parallelism int
	tracker     *Tracker
	combiner    *Combiner
	progress    func(TaskResult)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorTracker commits successful tracked tasks to t.
func WithExecutorTracker(t *Tracker) ExecutorOption {
	return func(e *Executor) {
		e.tracker = t
	}
}

// WithCombiner sets the combiner used by combine tasks.
func WithCombiner(c *Combiner) ExecutorOption {
	if c == nil {
		panic("docconv: nil combiner")
	}
	return func(e *Executor) {
		e.combiner = c
	}
}

// WithProgress registers a callback invoked once per finished task.
// Calls are serialized.
func WithProgress(fn func(TaskResult)) ExecutorOption {
	return func(e *Executor) {
		e.progress = fn
	}
}

// NewExecutor creates an executor running at most parallelism tasks at
// once. Panics if parallelism < 1.
func NewExecutor(parallelism int, opts ...ExecutorOption) *Executor {
	if parallelism < 1 {
		panic("docconv: parallelism must be at least 1")
	}
	e := &Executor{parallelism: parallelism}
	for _, opt := range opts {
		opt(e)
	}
	if e.combiner == nil {
		e.combiner = NewCombiner()
	}
	return e
}

// Run executes plan and returns one result per task, in plan order.
//
// A task starts once all its dependencies succeeded or were skipped. A
// failed task fails its transitive dependents with ErrUpstreamFailure;
// independent tasks keep running. When ctx is cancelled, running tasks
// finish and tasks not yet started fail with ErrCancelled.
func (e *Executor) Run(ctx context.Context, plan *Plan) Results {
	s := newSchedule(plan)
	log := ctxlog.FromContext(ctx)

	// Running tasks are not interrupted by cancellation.
	taskCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	done := make(chan TaskResult, len(plan.Tasks))
	inflight := 0
	cancelled := false

	finish := func(r TaskResult) {
		blocked := s.resolve(r)
		if e.progress == nil {
			return
		}
		e.progress(r)
		for _, b := range blocked {
			e.progress(b)
		}
	}

	for s.unresolved > 0 {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			log.Warn("run cancelled; waiting for running tasks", "running", inflight)
		}
		if cancelled {
			for _, r := range s.cancelPending() {
				if e.progress != nil {
					e.progress(r)
				}
			}
		}

		// Dispatch only into free slots so the loop never blocks in g.Go
		// and a cancellation is seen before the next task starts.
		for !cancelled && len(s.ready) > 0 && inflight < e.parallelism {
			t := s.ready[0]
			s.ready = s.ready[1:]

			if t.Skip {
				finish(TaskResult{Task: t, Status: StatusSkipped, Artifact: t.Output, Started: time.Now()})
				continue
			}
			s.running[t.ID] = true
			inflight++
			g.Go(func() error {
				done <- e.runTask(taskCtx, t)
				return nil
			})
		}

		if inflight == 0 {
			if s.unresolved > 0 && len(s.ready) == 0 && !cancelled {
				// Only reachable with a dependency cycle or a missing
				// dependency, which the planner never produces.
				for _, t := range s.pending() {
					finish(TaskResult{Task: t, Status: StatusFailed, Err: fmt.Errorf("%w: unsatisfiable dependencies", ErrInvalidJob)})
				}
			}
			continue
		}

		select {
		case r := <-done:
			inflight--
			delete(s.running, r.Task.ID)
			finish(r)
		case <-ctx.Done():
			if !cancelled {
				continue
			}
			r := <-done
			inflight--
			delete(s.running, r.Task.ID)
			finish(r)
		}
	}
	_ = g.Wait()

	return s.results()
}

// runTask executes one task. Panics are recovered into failures.
func (e *Executor) runTask(ctx context.Context, t *Task) (res TaskResult) {
	log := ctxlog.FromContext(ctx).With("task", t.ID)
	res = TaskResult{Task: t, Started: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("%w: internal error: %v", ErrConversionFailure, r)
		}
		res.Duration = time.Since(res.Started)
		if res.Err != nil {
			log.Error("task failed", "error", res.Err, "duration", res.Duration)
		} else {
			log.Debug("task finished", "duration", res.Duration)
		}
	}()

	log.Debug("task started", "input", t.Input, "output", t.Output)

	var err error
	switch t.Kind {
	case TaskConvert:
		if err = t.Edge.Converter.Convert(ctx, t.Input, t.Output, t.Options); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrConversionFailure, t.Edge, err)
		}
	case TaskCopy:
		if err = copyFile(ctx, t.Input, t.Output); err != nil {
			err = fmt.Errorf("%w: copy: %w", ErrConversionFailure, err)
		}
	case TaskCombine:
		err = e.combiner.Combine(ctx, t.Combine.Inputs, t.Combine.Options, t.Output)
	default:
		err = fmt.Errorf("%w: unknown task kind %s", ErrConversionFailure, t.Kind)
	}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	res.Status = StatusSucceeded
	res.Artifact = t.Output
	if t.Track && e.tracker != nil && t.Document != nil {
		if cerr := e.tracker.Commit(t.Document.Source, t.Fingerprint, t.Output); cerr != nil {
			// The artifact is good; the next run converts again.
			log.Warn("recording incremental state failed", "error", cerr)
		}
	}
	return res
}

// schedule tracks dependency counts and results during a run. Only the
// Run loop touches it.
type schedule struct {
	plan       *Plan
	remaining  map[string]int      // unmet dependency count
	dependents map[string][]string // task -> tasks depending on it
	outcomes   map[string]*TaskResult
	causes     map[string][]string // upstream failures per blocked task
	running    map[string]bool
	ready      []*Task
	unresolved int
}

func newSchedule(plan *Plan) *schedule {
	s := &schedule{
		plan:       plan,
		remaining:  make(map[string]int, len(plan.Tasks)),
		dependents: make(map[string][]string),
		outcomes:   make(map[string]*TaskResult, len(plan.Tasks)),
		causes:     make(map[string][]string),
		running:    make(map[string]bool),
		unresolved: len(plan.Tasks),
	}
	for _, t := range plan.Tasks {
		s.remaining[t.ID] = len(t.Deps)
		for _, d := range t.Deps {
			s.dependents[d] = append(s.dependents[d], t.ID)
		}
		if len(t.Deps) == 0 {
			s.ready = append(s.ready, t)
		}
	}
	return s
}

// resolve records r and updates dependents: successes may make them ready,
// failures block them. Returns the results of the tasks blocked by r.
func (s *schedule) resolve(r TaskResult) []TaskResult {
	if _, ok := s.outcomes[r.Task.ID]; ok {
		return nil
	}
	s.outcomes[r.Task.ID] = &r
	s.unresolved--

	if r.OK() {
		for _, id := range s.dependents[r.Task.ID] {
			s.remaining[id]--
			if s.remaining[id] == 0 {
				if _, done := s.outcomes[id]; !done {
					t, _ := s.plan.Task(id)
					s.ready = append(s.ready, t)
				}
			}
		}
		return nil
	}

	cause := r.Task.ID
	if r.Task.Document != nil {
		cause = r.Task.Document.Source
	}
	return s.block(r.Task.ID, []string{cause})
}

// block fails every transitive dependent of id with ErrUpstreamFailure
// naming the root causes: failed documents, or task IDs for tasks without
// one. Dependents blocked earlier collect the extra causes. Returns the
// results recorded by this call.
func (s *schedule) block(id string, causes []string) []TaskResult {
	var out []TaskResult
	for _, dep := range s.dependents[id] {
		added := s.addCauses(dep, causes)
		if prev, done := s.outcomes[dep]; done {
			if len(added) > 0 && errors.Is(prev.Err, ErrUpstreamFailure) {
				prev.Err = upstreamError(s.causes[dep])
				s.block(dep, added)
			}
			continue
		}

		t, _ := s.plan.Task(dep)
		r := TaskResult{Task: t, Status: StatusFailed, Err: upstreamError(s.causes[dep])}
		s.outcomes[dep] = &r
		s.unresolved--
		out = append(out, r)
		out = append(out, s.block(dep, s.causes[dep])...)
	}
	return out
}

// addCauses records causes for id and returns the ones it did not have.
func (s *schedule) addCauses(id string, causes []string) []string {
	var added []string
	for _, c := range causes {
		if !slices.Contains(s.causes[id], c) {
			s.causes[id] = append(s.causes[id], c)
			added = append(added, c)
		}
	}
	return added
}

func upstreamError(causes []string) error {
	return fmt.Errorf("%w: %s", ErrUpstreamFailure, strings.Join(causes, ", "))
}

// pending returns the unresolved tasks that are not running.
func (s *schedule) pending() []*Task {
	var out []*Task
	for _, t := range s.plan.Tasks {
		if _, done := s.outcomes[t.ID]; done || s.running[t.ID] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// cancelPending fails every task that has not started with ErrCancelled.
// Dependents are not blocked: they are pending too and get the same error.
func (s *schedule) cancelPending() []TaskResult {
	var out []TaskResult
	for _, t := range s.pending() {
		r := TaskResult{Task: t, Status: StatusFailed, Err: ErrCancelled}
		s.outcomes[t.ID] = &r
		s.unresolved--
		out = append(out, r)
	}
	s.ready = nil
	return out
}

// results assembles the final results in plan order.
func (s *schedule) results() Results {
	out := make(Results, 0, len(s.plan.Tasks))
	for _, t := range s.plan.Tasks {
		out = append(out, *s.outcomes[t.ID])
	}
	return out
}
