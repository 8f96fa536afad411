// Package id mints identifiers for sandboxes, executions and traces.
//
// Every ID is a ULID drawn from one process-wide monotonic source, so two
// executions started in the same millisecond still sort in start order.
// Prefixes (sbx_, exec_, trace_) make a bare ID in a log line readable.
package id

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// SandboxID identifies a sandbox (one host and guest realm pair)
type SandboxID string

// ExecutionID identifies one guest script execution
type ExecutionID string

// TraceID identifies a request flow across spans and bridge hops
type TraceID string

// SpanID identifies one span within a trace
type SpanID string

const (
	sandboxPrefix   = "sbx"
	executionPrefix = "exec"
	tracePrefix     = "trace"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// next returns a ULID strictly greater than any returned before it
func next() ulid.ULID {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy)
}

func prefixed(prefix string) string {
	return prefix + "_" + next().String()
}

func NewSandboxID() SandboxID     { return SandboxID(prefixed(sandboxPrefix)) }
func NewExecutionID() ExecutionID { return ExecutionID(prefixed(executionPrefix)) }
func NewTraceID() TraceID         { return TraceID(prefixed(tracePrefix)) }

// NewSpanID returns an unprefixed ULID; spans are always read next to
// their trace ID.
func NewSpanID() SpanID { return SpanID(next().String()) }

func (s SandboxID) String() string   { return string(s) }
func (e ExecutionID) String() string { return string(e) }
func (t TraceID) String() string     { return string(t) }
func (s SpanID) String() string      { return string(s) }
