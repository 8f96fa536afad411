package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/membrane/internal/membrane"
	"github.com/GriffinCanCode/membrane/internal/shared/id"
)

var (
	ErrClosed             = errors.New("sandbox is closed")
	ErrExecutionTimeout   = errors.New("execution timeout exceeded")
	ErrExecutionCancelled = errors.New("execution cancelled")
)

// Execution statuses reported to metrics
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Runtime runs guest scripts in their own realm. Host endowments, the
// document and the bridge live in a separate host realm and only reach the
// guest through a membrane.
type Runtime struct {
	id      id.SandboxID
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker

	mu     sync.Mutex
	host   *goja.Runtime
	guest  *goja.Runtime
	broker *membrane.Broker
	closed bool

	// Context of the running execution, read by bridge calls
	execCtx context.Context

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
	onConsole func(LogEntry)
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = metrics
	}
}

// New creates a new sandboxed runtime
func New(config Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		id:      id.NewSandboxID(),
		config:  config,
		logger:  zap.NewNop(),
		console: []LogEntry{},
		execCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("sandbox").With(zap.String("sandbox_id", r.id.String()))
	r.breaker = resilience.New("bridge", resilience.Settings{
		Cooldown: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			r.logger.Warn("bridge breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	if err := r.bootstrap(); err != nil {
		return nil, err
	}
	r.metrics.IncSandboxes()
	r.logger.Debug("sandbox created")
	return r, nil
}

// ID returns the sandbox identifier
func (r *Runtime) ID() id.SandboxID {
	return r.id
}

// Broker returns the membrane between the host and guest realms
func (r *Runtime) Broker() *membrane.Broker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broker
}

// bootstrap builds fresh realms, links their intrinsics and endows the guest
func (r *Runtime) bootstrap() error {
	host, guest := goja.New(), goja.New()
	if r.config.MaxCallStackSize > 0 {
		host.SetMaxCallStackSize(r.config.MaxCallStackSize)
		guest.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}

	broker, err := membrane.New(host, guest, membrane.Options{
		Logger:  r.logger,
		Metrics: r.metrics,
	})
	if err != nil {
		return fmt.Errorf("create membrane: %w", err)
	}
	if err := linkIntrinsics(broker); err != nil {
		return err
	}

	r.host, r.guest, r.broker = host, guest, broker
	r.setupGlobals()
	return r.endow()
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = r.guest.Set(name, goja.Undefined())
	}

	// Setup console if enabled
	if r.config.EnableConsole {
		console := r.guest.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			_ = console.Set(level, r.makeConsoleFunc(level))
		}
		_ = r.guest.Set("console", console)
	}

	// Setup timers (no-op for security)
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = r.guest.Set("setTimeout", noop)
	_ = r.guest.Set("setInterval", noop)
}

// endow runs the host script, applies the policy and remaps the chosen host
// globals onto the guest global object
func (r *Runtime) endow() error {
	host := r.host
	for name, v := range r.config.Endowments {
		if err := host.Set(name, v); err != nil {
			return fmt.Errorf("endow %s: %w", name, err)
		}
	}
	if r.config.HostScript != "" {
		if _, err := host.RunString(r.config.HostScript); err != nil {
			return fmt.Errorf("host script: %w", err)
		}
	}

	policy := r.config.Policy
	if err := policy.distort(r.broker); err != nil {
		return err
	}

	table := membrane.AttributeTable{}
	for _, name := range policy.names(r.config.Endowments) {
		v := host.Get(name)
		if v == nil {
			return fmt.Errorf("%w: global %s is not defined", ErrInvalidPolicy, name)
		}
		if obj, ok := v.(*goja.Object); ok && policy.isLive(name) {
			if err := r.broker.MarkLive(obj); err != nil {
				return fmt.Errorf("mark %s live: %w", name, err)
			}
		}
		gv, err := r.broker.ToGuestValue(v)
		if err != nil {
			return fmt.Errorf("expose %s: %w", name, err)
		}
		table[name] = globalProperty(gv)
	}

	if r.config.Bridge != nil {
		gv, err := r.broker.ToGuestValue(r.bridgeObject())
		if err != nil {
			return fmt.Errorf("expose bridge: %w", err)
		}
		table["bridge"] = globalProperty(gv)
	}

	return r.broker.Remap(r.guest.GlobalObject(), host.GlobalObject(), table)
}

func globalProperty(v goja.Value) goja.PropertyDescriptor {
	return goja.PropertyDescriptor{
		Value:        v,
		Writable:     goja.FLAG_TRUE,
		Enumerable:   goja.FLAG_FALSE,
		Configurable: goja.FLAG_TRUE,
	}
}

// Expose makes a Go value available to guest code as a snapshot
func (r *Runtime) Expose(name string, value interface{}) error {
	return r.expose(name, value, false)
}

// ExposeLive makes a Go value available to guest code through a live wrapper
func (r *Runtime) ExposeLive(name string, value interface{}) error {
	return r.expose(name, value, true)
}

func (r *Runtime) expose(name string, value interface{}, live bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	v := r.host.ToValue(value)
	if obj, ok := v.(*goja.Object); ok && live {
		if err := r.broker.MarkLive(obj); err != nil {
			return fmt.Errorf("mark %s live: %w", name, err)
		}
	}
	gv, err := r.broker.ToGuestValue(v)
	if err != nil {
		return fmt.Errorf("expose %s: %w", name, err)
	}
	return r.guest.GlobalObject().DefineDataProperty(name, gv, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// Execute runs JavaScript code with timeout and resource limits
func (r *Runtime) Execute(ctx context.Context, script string, dom *DOM) (*Result, error) {
	return r.ExecuteStream(ctx, script, dom, nil)
}

// ExecuteStream is Execute with onConsole called for every console entry
// as it is written. onConsole runs on the executing goroutine.
func (r *Runtime) ExecuteStream(ctx context.Context, script string, dom *DOM, onConsole func(LogEntry)) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionCancelled, err)
	}

	execID := id.NewExecutionID()
	logger := r.logger.With(zap.String("execution_id", execID.String()))
	if sc, ok := tracing.FromContext(ctx); ok {
		logger = logger.With(zap.String("trace_id", sc.TraceID.String()), zap.String("span_id", sc.SpanID.String()))
	}
	timer := monitoring.NewTimer(r.metrics)
	result := &Result{
		ExecutionID: execID.String(),
		Console:     []LogEntry{},
	}

	// Clear console
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	// Inject DOM if provided
	if dom != nil && r.config.EnableDOM {
		if err := r.injectDOM(dom); err != nil {
			return nil, fmt.Errorf("failed to inject DOM: %w", err)
		}
	}

	r.execCtx = ctx
	r.onConsole = onConsole
	defer func() {
		r.execCtx = context.Background()
		r.onConsole = nil
	}()

	val, reason, err := r.run(ctx, script)

	status := StatusSuccess
	if err != nil {
		status, err = classify(err, reason)
	}
	result.Duration = timer.Stop(status)

	// Collect console output
	r.consoleMu.Lock()
	result.Console = append([]LogEntry{}, r.console...)
	r.consoleMu.Unlock()

	// Collect DOM changes
	if dom != nil {
		result.DOMChanges = dom.GetChanges()
	}

	if err != nil {
		logger.Debug("execution failed", zap.String("status", status), zap.Error(err))
		result.Error = err
		return result, err
	}

	result.Value = r.exportValue(val, logger)
	logger.Debug("execution finished", zap.Duration("duration", result.Duration))
	return result, nil
}

// run evaluates script in the guest realm. Both realms are interrupted on
// timeout or cancellation since guest code may be blocked inside a host call.
// reason is why the watchdog fired, nil when it did not.
func (r *Runtime) run(ctx context.Context, script string) (val goja.Value, reason error, err error) {
	var timeout <-chan time.Time
	if r.config.Timeout > 0 {
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-timeout:
			reason = ErrExecutionTimeout
		case <-ctx.Done():
			reason = ctx.Err()
		case <-done:
			return
		}
		r.interrupt(reason)
	}()

	val, err = r.eval(script)

	close(done)
	<-stopped
	r.guest.ClearInterrupt()
	r.host.ClearInterrupt()
	return val, reason, err
}

// eval runs script in the guest realm, through the program cache when one
// is configured
func (r *Runtime) eval(script string) (goja.Value, error) {
	if r.config.Programs == nil {
		return r.guest.RunString(script)
	}
	program, err := r.config.Programs.Compile(script)
	if err != nil {
		return nil, err
	}
	return r.guest.RunProgram(program)
}

func (r *Runtime) interrupt(reason error) {
	r.guest.Interrupt(reason)
	r.host.Interrupt(reason)
}

// classify maps a run error to a metrics status and the error returned to
// callers. Once the watchdog has fired the run counts as interrupted, even
// when the interrupt surfaced as an ordinary error.
func classify(err, reason error) (string, error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) && reason == nil {
		reason, _ = interrupted.Value().(error)
		if reason == nil {
			return StatusCancelled, ErrExecutionCancelled
		}
	}
	switch {
	case reason == nil:
		return StatusError, err
	case errors.Is(reason, ErrExecutionTimeout):
		return StatusTimeout, ErrExecutionTimeout
	default:
		return StatusCancelled, fmt.Errorf("%w: %v", ErrExecutionCancelled, reason)
	}
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		entry := LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		}
		r.consoleMu.Lock()
		r.console = append(r.console, entry)
		r.consoleMu.Unlock()

		if r.onConsole != nil {
			r.onConsole(entry)
		}
		return goja.Undefined()
	}
}

// injectDOM exposes dom to the guest as a live document
func (r *Runtime) injectDOM(dom *DOM) error {
	document := dom.document(r.host)
	if err := r.broker.MarkLive(document); err != nil {
		return err
	}
	gv, err := r.broker.ToGuestValue(document)
	if err != nil {
		return err
	}
	return r.guest.GlobalObject().DefineDataProperty("document", gv, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// exportValue converts the completion value to a Go value. Wrappers export
// the object they stand for.
func (r *Runtime) exportValue(val goja.Value, logger *zap.Logger) interface{} {
	v, err := export(r.broker, val)
	if err != nil {
		logger.Debug("result not exportable", zap.Error(err))
		return nil
	}
	return v
}

// Reset discards both realms and builds fresh ones from the configuration
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()
	return r.bootstrap()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.host, r.guest, r.broker = nil, nil, nil
	r.console = nil
	r.metrics.DecSandboxes()
	r.logger.Debug("sandbox closed")
	return nil
}
