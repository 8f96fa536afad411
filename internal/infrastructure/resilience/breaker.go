package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker position
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero fields take defaults.
type Settings struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default 6.
	Threshold int
	// Cooldown is how long the breaker stays open before it lets one
	// trial call through. Default 60s.
	Cooldown time.Duration
	// OnStateChange is called with the breaker lock held
	OnStateChange func(name string, from, to State)
}

type outcome int

const (
	success outcome = iota
	failure
	neutral
)

// Breaker guards calls to one remote dependency. Consecutive failures
// open it; after the cooldown a single trial call decides whether it
// closes again. Calls cut short by their own context say nothing about
// the dependency and are not counted.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 6
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 60 * time.Second
	}
	return &Breaker{name: name, settings: settings, now: time.Now}
}

// State reports the current position, moving an open breaker whose
// cooldown has passed to half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Do runs call unless the breaker rejects it. A ctx that is already done
// is reported without consulting the breaker. A panic in call counts as a
// failure and is re-raised.
func (b *Breaker) Do(ctx context.Context, call func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(failure)
			panic(r)
		}
	}()
	err := call(ctx)
	b.record(judge(ctx, err))
	return err
}

func judge(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return success
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return neutral
	default:
		return failure
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trial = false
		switch o {
		case success:
			b.failures = 0
			b.transition(StateClosed)
		case failure:
			b.trip()
		}
		return
	}

	switch o {
	case success:
		b.failures = 0
	case failure:
		b.failures++
		if b.state == StateClosed && b.failures >= b.settings.Threshold {
			b.trip()
		}
	}
}

func (b *Breaker) advance() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.failures = 0
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
