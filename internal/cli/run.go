package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/config"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/logging"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/server"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	HTML        string
	Select      string
	Policy      string
	HostScripts string
	BridgeURL   string
	Timeout     time.Duration
}

// RunReport describes one script execution.
type RunReport struct {
	ExecutionID string              `json:"execution_id"`
	Value       interface{}         `json:"value"`
	Console     []sandbox.LogEntry  `json:"console"`
	DOMChanges  []sandbox.DOMChange `json:"dom_changes,omitempty"`
	DurationMs  float64             `json:"duration_ms"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.js|->",
		Short: "Execute a guest script once",
		Long: `Execute a guest script in a fresh sandbox and print its completion
value. Console output is streamed to stderr as it happens in text mode
and collected into the result in JSON mode. Pass - to read the script
from stdin.

Example:
  membrane run ./script.js
  membrane run --html page.html --select '//main' ./script.js
  membrane run --policy policy.yaml --host-scripts ./host ./script.js`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.HTML, "html", "", "HTML file mounted as the guest document")
	cmd.Flags().StringVar(&opts.Select, "select", "", "XPath choosing the mounted nodes")
	cmd.Flags().StringVarP(&opts.Policy, "policy", "p", "", "policy file (.yaml or .toml)")
	cmd.Flags().StringVar(&opts.HostScripts, "host-scripts", "", "directory of trusted host-realm scripts")
	cmd.Flags().StringVar(&opts.BridgeURL, "bridge", "", "HTTP endpoint serving bridge calls")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 5*time.Second, "execution timeout")

	return cmd
}

func runScript(cmd *cobra.Command, opts *RunOptions, path string) error {
	out := formatter(cmd, opts.RootOptions)

	source, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}
	if err := utils.ValidateScript(source, 0); err != nil {
		return WrapExitError(ExitCommandError, "invalid script", err)
	}

	level := "error"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.NewWriter(out.errWriter(), level)
	defer func() { _ = logger.Sync() }()

	cfg := config.Default()
	cfg.Sandbox.Timeout = opts.Timeout
	cfg.Sandbox.PolicyFile = opts.Policy
	cfg.Sandbox.HostScriptDir = opts.HostScripts
	cfg.Bridge.URL = opts.BridgeURL

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := server.SandboxConfig(ctx, cfg, nil, logger.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure sandbox", err)
	}

	var dom *sandbox.DOM
	if opts.HTML != "" {
		markup, err := os.ReadFile(opts.HTML)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read html", err)
		}
		if dom, err = sandbox.ParseHTML(markup, sandbox.HTMLOptions{Select: opts.Select}); err != nil {
			return WrapExitError(ExitCommandError, "failed to parse html", err)
		}
	}

	rt, err := sandbox.New(sc, sandbox.WithLogger(logger.Logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create sandbox", err)
	}
	defer rt.Close()
	out.VerboseLog("sandbox ready (policy fingerprint %q)", server.PolicyFingerprint(sc.Policy))

	var onConsole func(sandbox.LogEntry)
	if opts.Format != "json" {
		onConsole = func(entry sandbox.LogEntry) {
			fmt.Fprintf(out.errWriter(), "[%s] %s\n", entry.Level, entry.Message)
		}
	}

	result, runErr := rt.ExecuteStream(ctx, string(source), dom, onConsole)
	report := RunReport{Console: []sandbox.LogEntry{}}
	if result != nil {
		report.ExecutionID = result.ExecutionID
		report.Value = result.Value
		report.Console = result.Console
		report.DOMChanges = result.DOMChanges
		report.DurationMs = float64(result.Duration) / float64(time.Millisecond)
	}
	if runErr != nil {
		_ = out.Failure(report, runErr)
		return WrapExitError(ExitFailure, "script failed", runErr)
	}

	return out.Success(report, "=> "+display(report.Value))
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// display renders a completion value for text output
func display(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "undefined"
	case string:
		return v
	}
	s, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
