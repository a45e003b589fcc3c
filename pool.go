package docconv

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one renderer is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// rendererPool manages PDF renderers for parallel tasks. Each renderer owns
// its own browser, so tasks render concurrently. Renderers are created
// lazily on first acquire to avoid starting browsers a job never needs.
type rendererPool struct {
	size      int
	newFn     func() pdfRenderer
	renderers []pdfRenderer
	sem       chan pdfRenderer
	mu        sync.Mutex
	created   int
	closed    bool
}

// newRendererPool creates a pool with capacity for n renderers.
func newRendererPool(n int, newFn func() pdfRenderer) *rendererPool {
	if n < 1 {
		n = 1
	}

	return &rendererPool{
		size:      n,
		newFn:     newFn,
		renderers: make([]pdfRenderer, 0, n),
		sem:       make(chan pdfRenderer, n),
	}
}

// errPoolClosed is returned by acquire after close.
var errPoolClosed = errors.New("renderer pool closed")

// acquire gets a renderer, creating one if the pool is not full. Blocks
// until one is released or ctx is done.
func (p *rendererPool) acquire(ctx context.Context) (pdfRenderer, error) {
	// A closed channel still yields its buffered renderers.
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errPoolClosed
	}

	// Try to get an existing renderer (non-blocking)
	select {
	case r, ok := <-p.sem:
		if !ok {
			return nil, errPoolClosed
		}
		return r, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		// Create outside the lock; browsers start lazily anyway.
		r := p.newFn()

		p.mu.Lock()
		p.renderers = append(p.renderers, r)
		p.mu.Unlock()

		return r, nil
	}
	p.mu.Unlock()

	// All renderers created, wait for one to be released
	select {
	case r, ok := <-p.sem:
		if !ok {
			return nil, errPoolClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a renderer to the pool.
// The lock is held while sending; sem has room for every renderer.
func (p *rendererPool) release(r pdfRenderer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sem <- r
}

// close releases all browser resources.
// Returns an aggregated error if several renderers fail to close.
func (p *rendererPool) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sem)
	renderers := p.renderers
	p.mu.Unlock()

	var errs []error
	for _, r := range renderers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResolvePoolSize determines how many browsers to run.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return min(workers, MaxPoolSize)
	}

	// GOMAXPROCS is adjusted by automaxprocs for containers
	n := runtime.GOMAXPROCS(0) / cpuDivisor
	return max(MinPoolSize, min(n, MaxPoolSize))
}
