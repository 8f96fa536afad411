package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
)

// Executor runs guest scripts on pooled sandboxes
type Executor interface {
	Execute(ctx context.Context, script string, dom *DOM) (*Result, error)
	ExecuteStream(ctx context.Context, script string, dom *DOM, onConsole func(LogEntry)) (*Result, error)
	Stats() Stats
}

// ReloadablePool is a Pool that can be replaced while in use, so a new
// policy or host script applies to every later execution. Executions that
// already hold a sandbox finish on the old pool.
type ReloadablePool struct {
	current atomic.Pointer[Pool]
}

// NewReloadablePool wraps pool
func NewReloadablePool(pool *Pool) *ReloadablePool {
	r := &ReloadablePool{}
	r.current.Store(pool)
	return r
}

// Current returns the pool new executions use
func (r *ReloadablePool) Current() *Pool {
	return r.current.Load()
}

// Swap installs pool and closes the one it replaces
func (r *ReloadablePool) Swap(pool *Pool) error {
	old := r.current.Swap(pool)
	if old == nil || old == pool {
		return nil
	}
	return old.Close()
}

// Execute runs script on the current pool
func (r *ReloadablePool) Execute(ctx context.Context, script string, dom *DOM) (*Result, error) {
	return r.ExecuteStream(ctx, script, dom, nil)
}

// ExecuteStream runs script on the current pool. A pool closed by a
// concurrent Swap is retried once on its replacement.
func (r *ReloadablePool) ExecuteStream(ctx context.Context, script string, dom *DOM, onConsole func(LogEntry)) (*Result, error) {
	pool := r.current.Load()
	result, err := pool.ExecuteStream(ctx, script, dom, onConsole)
	if errors.Is(err, ErrPoolClosed) {
		if next := r.current.Load(); next != pool {
			return next.ExecuteStream(ctx, script, dom, onConsole)
		}
	}
	return result, err
}

// Stats returns statistics of the current pool
func (r *ReloadablePool) Stats() Stats {
	return r.current.Load().Stats()
}

// Close closes the current pool
func (r *ReloadablePool) Close() error {
	return r.current.Load().Close()
}
