package docconv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alnah/go-docconv/internal/assets"
	"github.com/alnah/go-docconv/internal/fileutil"
	"github.com/alnah/go-docconv/internal/pipeline"
)

// TaskKind distinguishes plan steps.
type TaskKind int

// Task kinds.
const (
	TaskConvert TaskKind = iota // one graph edge
	TaskCopy                    // same-format job: copy the source
	TaskCombine                 // merge document artifacts
)

// String returns the kind name.
func (k TaskKind) String() string {
	switch k {
	case TaskConvert:
		return "convert"
	case TaskCopy:
		return "copy"
	case TaskCombine:
		return "combine"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// Task is one atomic unit of work. Tasks are created by the planner and
// not modified afterwards.
type Task struct {
	ID       string
	Kind     TaskKind
	Document *Document // nil for combine and finalize tasks
	Edge     Edge      // convert tasks only
	Input    string
	Output   string
	Options  ConvertOptions
	Deps     []string

	// Final marks a user-visible output; other outputs are intermediate.
	Final bool

	// Skip marks an up-to-date task: Output already holds the artifact.
	Skip bool

	// Track requests a tracker commit of Document's source after success.
	Track       bool
	Fingerprint Fingerprint

	Combine *CombineTask // combine tasks only
}

// CombineTask is the payload of the combine task.
type CombineTask struct {
	Inputs  []CombineInput // merge order
	Options CombineOptions
}

// Plan is a dependency-ordered list of tasks: every task appears after the
// tasks it depends on.
type Plan struct {
	Job   *Job
	Tasks []*Task
	index map[string]*Task
}

// Task returns the task with the given ID.
func (p *Plan) Task(id string) (*Task, bool) {
	t, ok := p.index[id]
	return t, ok
}

// Dependents returns the IDs of tasks that list id as a dependency.
func (p *Plan) Dependents(id string) []string {
	var out []string
	for _, t := range p.Tasks {
		for _, d := range t.Deps {
			if d == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}

func (p *Plan) add(t *Task) {
	p.Tasks = append(p.Tasks, t)
	p.index[t.ID] = t
}

// Planner turns jobs into plans.
type Planner struct {
	registry *Registry
	tracker  *Tracker
	loader   assets.Loader
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithTracker enables incremental planning: up-to-date chains are planned
// as skipped tasks.
func WithTracker(t *Tracker) PlannerOption {
	return func(p *Planner) {
		p.tracker = t
	}
}

// WithAssetLoader sets how style and template references are loaded.
// Defaults to the built-in assets plus files relative to the job directory.
func WithAssetLoader(l assets.Loader) PlannerOption {
	if l == nil {
		panic("docconv: nil asset loader")
	}
	return func(p *Planner) {
		p.loader = l
	}
}

// NewPlanner creates a planner over reg.
func NewPlanner(reg *Registry, opts ...PlannerOption) *Planner {
	if reg == nil {
		panic("docconv: nil registry")
	}
	p := &Planner{registry: reg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan builds the task graph for job. Planning either succeeds for every
// document or fails as a whole; no task runs on a failed plan.
func (p *Planner) Plan(job *Job) (*Plan, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", ErrInvalidJob)
	}

	loader := p.loader
	if loader == nil {
		loader = assets.NewResolver(job.BaseDir)
	}
	st := &planState{
		Planner: p,
		job:     job,
		loader:  loader,
		css:     make(map[string]string),
		plan:    &Plan{Job: job, index: make(map[string]*Task)},
		outputs: make(map[string]string),
	}
	if err := st.loadTemplate(); err != nil {
		return nil, err
	}

	if job.Combine != nil {
		if err := st.planCombined(); err != nil {
			return nil, err
		}
	} else {
		for i := range job.Documents {
			doc := &job.Documents[i]
			if _, err := st.planDocument(doc, job.To, job.outputPath(*doc), true); err != nil {
				return nil, err
			}
		}
	}
	return st.plan, nil
}

// planState is the scratch space of one Plan call.
type planState struct {
	*Planner
	job      *Job
	loader   assets.Loader
	template string
	css      map[string]string
	plan     *Plan
	outputs  map[string]string // final output -> producing source
}

func (st *planState) loadTemplate() error {
	src, err := st.loader.LoadTemplate(st.job.Style.Template)
	if err != nil {
		return fmt.Errorf("%w: template: %w", ErrInvalidJob, err)
	}
	if _, err := pipeline.NewPageTemplate(src); err != nil {
		return fmt.Errorf("%w: template: %w", ErrInvalidJob, err)
	}
	st.template = src
	return nil
}

// styleFor returns the stylesheet for doc, and whether one was configured
// rather than the built-in default.
func (st *planState) styleFor(doc *Document) (string, bool, error) {
	ref := doc.CSS
	if ref == "" {
		ref = st.job.Style.CSS
	}
	if css, ok := st.css[ref]; ok {
		return css, ref != "", nil
	}
	css, err := st.loader.LoadStyle(ref)
	if err != nil {
		return "", false, fmt.Errorf("%w: css: %w", ErrInvalidJob, err)
	}
	st.css[ref] = css
	return css, ref != "", nil
}

func (st *planState) imagesFor(doc *Document) ImagePolicy {
	policy := st.job.Images
	if doc.EmbedImages != nil {
		policy.Embed = *doc.EmbedImages
	}
	return policy
}

// claimOutput reserves a final output path for source.
func (st *planState) claimOutput(output, source string) error {
	if prev, ok := st.outputs[output]; ok {
		return fmt.Errorf("%w: %s and %s both produce %s", ErrInvalidJob, prev, source, output)
	}
	st.outputs[output] = source
	return nil
}

// planDocument plans the chain converting doc to target, writing the final
// artifact to output when final is set or to the work directory otherwise.
// Returns the task ID producing the artifact ("" when the source itself is
// the artifact) and records tasks in the plan.
func (st *planState) planDocument(doc *Document, target Format, output string, final bool) (chainEnd, error) {
	path, err := st.registry.FindPath(st.job.From, target)
	if err != nil {
		return chainEnd{}, fmt.Errorf("%w: %s: %w", ErrUnsupportedConversion, doc.Source, err)
	}
	if !final {
		output = st.workPath(doc.Source, target)
	}

	if len(path) == 0 {
		if !final || fileutil.SamePath(doc.Source, output) {
			return chainEnd{artifact: doc.Source}, nil
		}
		if err := st.claimOutput(output, doc.Source); err != nil {
			return chainEnd{}, err
		}
		t := &Task{
			ID:       "copy:" + doc.Source,
			Kind:     TaskCopy,
			Document: doc,
			Input:    doc.Source,
			Output:   output,
			Final:    true,
			Track:    true,
		}
		if err := st.markIncremental([]*Task{t}); err != nil {
			return chainEnd{}, err
		}
		st.plan.add(t)
		return chainEnd{id: t.ID, artifact: output}, nil
	}

	if final {
		if err := st.claimOutput(output, doc.Source); err != nil {
			return chainEnd{}, err
		}
	}

	css, explicitCSS, err := st.styleFor(doc)
	if err != nil {
		return chainEnd{}, err
	}
	base := ConvertOptions{
		Title:     doc.Title,
		SourceDir: filepath.Dir(doc.Source),
		Template:  st.template,
		Images:    st.imagesFor(doc),
	}

	tasks := make([]*Task, 0, len(path))
	input := doc.Source
	for i, e := range path {
		opts := base
		if i == 0 {
			// Pages built from scratch get the default style; HTML
			// sources keep their own unless one is configured.
			if e.From != HTML || explicitCSS {
				opts.CSS = css
			}
			opts.TOC = st.job.TOC && st.job.Combine == nil
			opts.TOCTitle = st.job.TOCTitle
		}

		out := output
		if i < len(path)-1 {
			out = st.workPath(doc.Source, e.To)
		}
		t := &Task{
			ID:       fmt.Sprintf("convert:%s:%s", doc.Source, e),
			Kind:     TaskConvert,
			Document: doc,
			Edge:     e,
			Input:    input,
			Output:   out,
			Options:  opts,
		}
		if i > 0 {
			t.Deps = []string{tasks[i-1].ID}
		}
		tasks = append(tasks, t)
		input = out
	}
	last := tasks[len(tasks)-1]
	last.Final = final
	last.Track = true

	if err := st.markIncremental(tasks); err != nil {
		return chainEnd{}, err
	}
	for _, t := range tasks {
		st.plan.add(t)
	}
	return chainEnd{id: last.ID, artifact: last.Output}, nil
}

// chainEnd identifies the artifact of a document chain.
type chainEnd struct {
	id       string // producing task, "" for the source itself
	artifact string
}

// markIncremental consults the tracker about the chain's final artifact and
// marks every task of an up-to-date chain as skipped.
func (st *planState) markIncremental(chain []*Task) error {
	last := chain[len(chain)-1]
	if st.tracker == nil || !st.tracker.Enabled() {
		return nil
	}
	stale, fp, err := st.tracker.IsStale(last.Document.Source, last.Output)
	if err != nil {
		return err
	}
	last.Fingerprint = fp
	if !stale {
		for _, t := range chain {
			t.Skip = true
		}
	}
	return nil
}

func (st *planState) planCombined() error {
	spec := st.job.Combine
	combine := &Task{
		ID:   "combine",
		Kind: TaskCombine,
		Combine: &CombineTask{
			Options: CombineOptions{
				TOC:        st.job.TOC,
				TOCTitle:   st.job.TOCTitle,
				Metadata:   spec.Metadata,
				PageBreaks: spec.PageBreaks,
				CoverPage:  st.job.CoverPage,
				Template:   st.template,
			},
		},
	}
	if st.job.Style.CSS != "" {
		css, _, err := st.styleFor(&Document{})
		if err != nil {
			return err
		}
		combine.Combine.Options.CSS = css
	}

	for i := range spec.Documents {
		doc := &spec.Documents[i]
		end, err := st.planDocument(doc, AssemblyFormat, "", false)
		if err != nil {
			return err
		}
		if end.id != "" {
			combine.Deps = append(combine.Deps, end.id)
		}
		combine.Combine.Inputs = append(combine.Combine.Inputs, CombineInput{
			Title:  doc.Title,
			Source: doc.Source,
			Path:   end.artifact,
		})
	}

	finalize, err := st.registry.FindPath(AssemblyFormat, st.job.To)
	if err != nil {
		return fmt.Errorf("%w: combined output: %w", ErrUnsupportedConversion, err)
	}
	if len(finalize) == 0 {
		combine.Output = spec.OutputFile
		combine.Final = true
		st.plan.add(combine)
		return nil
	}

	combine.Output = filepath.Join(st.job.WorkDir(), "combined"+AssemblyFormat.Extension())
	st.plan.add(combine)

	title := spec.Metadata["title"]
	prevID, input := combine.ID, combine.Output
	for i, e := range finalize {
		out := spec.OutputFile
		if i < len(finalize)-1 {
			out = filepath.Join(st.job.WorkDir(), "combined"+e.To.Extension())
		}
		t := &Task{
			ID:     "finalize:" + e.String(),
			Kind:   TaskConvert,
			Edge:   e,
			Input:  input,
			Output: out,
			Options: ConvertOptions{
				Title:     title,
				SourceDir: st.job.WorkDir(),
				Template:  st.template,
				Images:    st.job.Images,
				Metadata:  spec.Metadata,
			},
			Deps:  []string{prevID},
			Final: i == len(finalize)-1,
		}
		st.plan.add(t)
		prevID, input = t.ID, out
	}
	return nil
}

// workPath names an intermediate artifact. The hash of the source path keeps
// documents with equal base names apart.
func (st *planState) workPath(source string, f Format) string {
	sum := sha256.Sum256([]byte(source))
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(st.job.WorkDir(), base+"-"+hex.EncodeToString(sum[:4])+f.Extension())
}
