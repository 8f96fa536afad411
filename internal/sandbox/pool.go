package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrTimeout    = errors.New("sandbox acquisition timeout")
)

// Stats describes pool occupancy
type Stats struct {
	Size      int                `json:"size"`
	Available int                `json:"available"`
	InUse     int                `json:"in_use"`
	Closed    bool               `json:"closed"`
	Programs  *ProgramCacheStats `json:"programs,omitempty"`
}

// Pool manages a pool of reusable sandboxes
type Pool struct {
	config         Config
	opts           []Option
	logger         *zap.Logger
	sandboxes      chan *Runtime
	size           int
	acquireTimeout time.Duration
	mu             sync.RWMutex
	closed         bool
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithAcquireTimeout bounds how long Acquire waits for a free sandbox
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.acquireTimeout = d
		}
	}
}

// WithRuntimeOptions applies opts to every sandbox the pool creates
func WithRuntimeOptions(opts ...Option) PoolOption {
	return func(p *Pool) {
		p.opts = append(p.opts, opts...)
	}
}

// WithPoolLogger sets the pool logger
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a sandbox pool
func NewPool(config Config, size int, opts ...PoolOption) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:         config,
		logger:         zap.NewNop(),
		sandboxes:      make(chan *Runtime, size),
		size:           size,
		acquireTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.Named("pool")

	// Pre-create sandboxes
	for i := 0; i < size; i++ {
		sandbox, err := New(config, pool.opts...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.sandboxes <- sandbox
	}

	pool.logger.Info("sandbox pool ready", zap.Int("size", size))
	return pool, nil
}

// Acquire gets a sandbox from pool with timeout. The pool lock is not held
// while waiting so Close never blocks behind a waiter.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case sandbox, ok := <-p.sandboxes:
		if !ok {
			return nil, ErrPoolClosed
		}
		return sandbox, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release returns sandbox to pool. The sandbox is reset first so no state
// leaks between executions.
func (p *Pool) Release(sandbox *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return sandbox.Close()
	}

	// Reset sandbox state
	if err := sandbox.Reset(); err != nil {
		p.logger.Warn("sandbox reset failed, replacing", zap.String("sandbox_id", sandbox.ID().String()), zap.Error(err))
		sandbox.Close()
		// Create new sandbox
		if newSandbox, err := New(p.config, p.opts...); err == nil {
			p.sandboxes <- newSandbox
		}
		return err
	}

	select {
	case p.sandboxes <- sandbox:
		return nil
	default:
		// Pool full, close sandbox
		return sandbox.Close()
	}
}

// Execute runs script using pool
func (p *Pool) Execute(ctx context.Context, script string, dom *DOM) (*Result, error) {
	return p.ExecuteStream(ctx, script, dom, nil)
}

// ExecuteStream runs script using pool, reporting console entries as they
// are written
func (p *Pool) ExecuteStream(ctx context.Context, script string, dom *DOM, onConsole func(LogEntry)) (*Result, error) {
	sandbox, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(sandbox)

	return sandbox.ExecuteStream(ctx, script, dom, onConsole)
}

// Close closes pool and all sandboxes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.sandboxes)

	// Close all sandboxes
	for sandbox := range p.sandboxes {
		sandbox.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		Size:      p.size,
		Available: len(p.sandboxes),
		InUse:     p.size - len(p.sandboxes),
		Closed:    p.closed,
	}
	if p.config.Programs != nil {
		programs := p.config.Programs.Stats()
		stats.Programs = &programs
	}
	return stats
}
