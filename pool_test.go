package docconv

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockRenderer implements pdfRenderer for testing.
type mockRenderer struct {
	mu       sync.Mutex
	result   []byte
	err      error
	pages    []string // HTML content seen, read at call time
	closed   int
	closeErr error
}

func (m *mockRenderer) RenderFromFile(ctx context.Context, filePath string) ([]byte, error) {
	data, _ := os.ReadFile(filePath)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, string(data))
	return m.result, m.err
}

func (m *mockRenderer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

// countingFactory hands out new mock renderers and counts them.
func countingFactory(n *atomic.Int32) func() pdfRenderer {
	return func() pdfRenderer {
		n.Add(1)
		return &mockRenderer{result: []byte("%PDF-1.4")}
	}
}

func TestResolvePoolSize(t *testing.T) {
	t.Parallel()

	gomaxprocs := runtime.GOMAXPROCS(0)

	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{name: "explicit takes priority", workers: 4, want: 4},
		{name: "explicit=1 for sequential", workers: 1, want: 1},
		{name: "explicit is capped", workers: 100, want: MaxPoolSize},
		{name: "zero uses auto calculation", workers: 0, want: min(max(gomaxprocs/cpuDivisor, MinPoolSize), MaxPoolSize)},
		{name: "negative uses auto calculation", workers: -5, want: min(max(gomaxprocs/cpuDivisor, MinPoolSize), MaxPoolSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ResolvePoolSize(tt.workers); got != tt.want {
				t.Errorf("ResolvePoolSize(%d) = %d, want %d", tt.workers, got, tt.want)
			}
		})
	}
}

func TestRendererPool_LazyCreationAndReuse(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	pool := newRendererPool(3, countingFactory(&created))
	defer func() { _ = pool.close() }()

	if created.Load() != 0 {
		t.Fatal("renderers created before first acquire")
	}

	r1, err := pool.acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pool.release(r1)

	r2, err := pool.acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r2 != r1 {
		t.Error("expected to reuse the released renderer")
	}
	if created.Load() != 1 {
		t.Errorf("created = %d, want 1", created.Load())
	}
	pool.release(r2)
}

func TestRendererPool_AllAcquired(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	pool := newRendererPool(2, countingFactory(&created))
	defer func() { _ = pool.close() }()

	r1, _ := pool.acquire(context.Background())
	r2, _ := pool.acquire(context.Background())
	if r1 == r2 {
		t.Fatal("expected distinct renderers")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("acquire on a full pool = %v, want DeadlineExceeded", err)
	}

	// A release unblocks a waiter.
	got := make(chan pdfRenderer, 1)
	go func() {
		r, _ := pool.acquire(context.Background())
		got <- r
	}()
	pool.release(r2)
	select {
	case r := <-got:
		if r != r2 {
			t.Error("waiter got a different renderer")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not unblocked by release")
	}
	if created.Load() != 2 {
		t.Errorf("created = %d, want 2", created.Load())
	}
}

func TestRendererPool_HighContention(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	pool := newRendererPool(2, countingFactory(&created))
	defer func() { _ = pool.close() }()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				r, err := pool.acquire(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				time.Sleep(time.Duration(j%3) * time.Millisecond)
				pool.release(r)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("high contention test timed out - possible deadlock")
	}
	if n := created.Load(); n > 2 {
		t.Errorf("created = %d, want at most 2", n)
	}
}

func TestRendererPool_Close(t *testing.T) {
	t.Parallel()

	failing := &mockRenderer{closeErr: errors.New("kill failed")}
	healthy := &mockRenderer{}
	next := []pdfRenderer{failing, healthy}
	pool := newRendererPool(2, func() pdfRenderer {
		r := next[0]
		next = next[1:]
		return r
	})

	r1, _ := pool.acquire(context.Background())
	r2, _ := pool.acquire(context.Background())
	pool.release(r1)

	if err := pool.close(); !errors.Is(err, failing.closeErr) {
		t.Errorf("close() = %v, want the renderer error", err)
	}
	if failing.closed != 1 || healthy.closed != 1 {
		t.Errorf("closed = %d/%d, want every renderer closed once", failing.closed, healthy.closed)
	}

	// Release after close is a no-op, close is idempotent.
	pool.release(r2)
	if err := pool.close(); err != nil {
		t.Errorf("second close() = %v", err)
	}
	if _, err := pool.acquire(context.Background()); !errors.Is(err, errPoolClosed) {
		t.Errorf("acquire after close = %v, want errPoolClosed", err)
	}
}
