package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/config"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/server"
)

// ServeOptions holds flags for the serve command. Unset flags keep the
// values loaded from the environment.
type ServeOptions struct {
	*RootOptions
	Host   string
	Port   string
	Policy string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP execution service",
		Long: `Start the HTTP service. Configuration is read from the environment
(PORT, SANDBOX_POLICY_FILE, BRIDGE_URL, ...) and overridden by flags.

Example:
  membrane serve --port 8080 --policy ./policy.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			applyServeFlags(cmd, opts, cfg)
			return serve(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host")
	cmd.Flags().StringVar(&opts.Port, "port", "", "listen port")
	cmd.Flags().StringVarP(&opts.Policy, "policy", "p", "", "policy file (.yaml or .toml)")

	return cmd
}

func applyServeFlags(cmd *cobra.Command, opts *ServeOptions, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.Host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.Port
	}
	if cmd.Flags().Changed("policy") {
		cfg.Sandbox.PolicyFile = opts.Policy
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
}

func serve(cmd *cobra.Command, cfg *config.Config) error {
	srv, err := server.NewServer(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return WrapExitError(ExitCommandError, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown incomplete", err)
	}
	return <-errChan
}
