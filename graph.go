package docconv

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Edge is one registered conversion.
type Edge struct {
	From      Format
	To        Format
	Converter Converter
	seq       int
}

// String returns "from->to".
func (e Edge) String() string {
	return string(e.From) + "->" + string(e.To)
}

// Path is a chain of edges, each starting where the previous one ends.
// The empty path is the identity conversion.
type Path []Edge

// Formats returns the formats visited by the path, source first.
// The empty path returns nil.
func (p Path) Formats() []Format {
	if len(p) == 0 {
		return nil
	}
	out := make([]Format, 0, len(p)+1)
	out = append(out, p[0].From)
	for _, e := range p {
		out = append(out, e.To)
	}
	return out
}

// String renders the path as "markdown -> html -> pdf".
func (p Path) String() string {
	fs := p.Formats()
	if fs == nil {
		return "(identity)"
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, " -> ")
}

// Registry is the format graph: formats are nodes, registered converters
// are directed edges. It is safe for concurrent use, although registration
// is normally finished before planning starts.
type Registry struct {
	mu      sync.RWMutex
	edges   []Edge
	out     map[Format][]int // edge indexes by source format, registration order
	formats []Format         // first-seen order
	known   map[Format]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		out:   make(map[Format][]int),
		known: make(map[Format]bool),
	}
}

// Register adds a directed edge from -> to. Self-edges, empty formats and
// nil converters are rejected with ErrInvalidEdge; registering the same
// pair twice fails with ErrDuplicateEdge.
func (r *Registry) Register(from, to Format, c Converter) error {
	if from == "" || to == "" {
		return fmt.Errorf("%w: empty format", ErrInvalidEdge)
	}
	if from == to {
		return fmt.Errorf("%w: %s->%s is a self-edge", ErrInvalidEdge, from, to)
	}
	if c == nil {
		return fmt.Errorf("%w: %s->%s has a nil converter", ErrInvalidEdge, from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, i := range r.out[from] {
		if r.edges[i].To == to {
			return fmt.Errorf("%w: %s->%s", ErrDuplicateEdge, from, to)
		}
	}

	r.edges = append(r.edges, Edge{From: from, To: to, Converter: c, seq: len(r.edges)})
	r.out[from] = append(r.out[from], len(r.edges)-1)
	r.addFormatLocked(from)
	r.addFormatLocked(to)
	return nil
}

func (r *Registry) addFormatLocked(f Format) {
	if !r.known[f] {
		r.known[f] = true
		r.formats = append(r.formats, f)
	}
}

// FindPath returns the shortest chain of edges from one format to another.
// Equal formats yield the empty path. Among shortest paths, the one whose
// first edge was registered earliest wins. Unreachable targets fail with
// ErrNoPathFound.
func (r *Registry) FindPath(from, to Format) (Path, error) {
	if from == to {
		return Path{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Breadth-first search expanding edges in registration order. The first
	// visit of a node is kept, which makes the result deterministic.
	prev := map[Format]int{from: -1}
	queue := []Format{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, i := range r.out[cur] {
			next := r.edges[i].To
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = i
			if next == to {
				return r.buildPathLocked(prev, to), nil
			}
			queue = append(queue, next)
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrNoPathFound, from, to)
}

func (r *Registry) buildPathLocked(prev map[Format]int, to Format) Path {
	var rev Path
	for f := to; prev[f] >= 0; {
		e := r.edges[prev[f]]
		rev = append(rev, e)
		f = e.From
	}
	path := make(Path, len(rev))
	for i, e := range rev {
		path[len(rev)-1-i] = e
	}
	return path
}

// Reachable lists every format reachable from from, nearest first.
func (r *Registry) Reachable(from Format) []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[Format]bool{from: true}
	queue := []Format{from}
	var out []Format
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, i := range r.out[cur] {
			next := r.edges[i].To
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// Formats lists the known formats in first-registration order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Format(nil), r.formats...)
}

// Edges lists the edges in registration order.
func (r *Registry) Edges() []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Edge(nil), r.edges...)
}

// Close closes every registered converter that holds resources (implements
// io.Closer). Each converter is closed once even if registered on several
// edges. Returns an aggregated error.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	closed := make(map[io.Closer]bool)
	for _, e := range r.edges {
		c, ok := e.Converter.(io.Closer)
		if !ok || closed[c] {
			continue
		}
		closed[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s converter: %w", e, err))
		}
	}
	return errors.Join(errs...)
}
