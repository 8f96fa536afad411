package sandbox

import (
	"context"
	"time"
)

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Execution timeout
	MaxCallStackSize int           // Guest call stack limit, 0 keeps goja's default
	EnableConsole    bool          // Allow console.log/warn/error/info
	EnableDOM        bool          // Expose a live document when one is supplied

	// Endowments are Go values set on the host realm and exposed to the
	// guest through the membrane.
	Endowments map[string]interface{}

	// HostScript is trusted code run in the host realm before anything is
	// exposed. Globals it defines can be exposed by listing them in the
	// policy; unlike Go map endowments they keep a stable identity.
	HostScript string

	Policy *Policy // Which endowments cross and how; nil exposes all
	Bridge Bridge  // Optional host callback channel, exposed as "bridge"

	// Programs caches compiled guest scripts. It may be shared between
	// sandboxes; nil compiles every script.
	Programs *ProgramCache
}

// Result holds execution result
type Result struct {
	ExecutionID string        `json:"execution_id"`
	Value       interface{}   `json:"value"`
	Console     []LogEntry    `json:"console"`
	DOMChanges  []DOMChange   `json:"dom_changes,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       error         `json:"-"`
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"` // log, warn, error, info
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// DOMChange represents a DOM modification
type DOMChange struct {
	Type     string      `json:"type"`     // set_attribute, set_text
	Selector string      `json:"selector"` // CSS selector
	Property string      `json:"property"`
	Value    interface{} `json:"value"`
}

// Bridge defines host communication interface
type Bridge interface {
	Call(ctx context.Context, method string, args ...interface{}) (interface{}, error)
	Emit(ctx context.Context, event string, data interface{}) error
}

// Default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
		EnableDOM:        true,
	}
}
