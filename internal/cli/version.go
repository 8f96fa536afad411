package cli

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/membrane/internal/api/http"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return formatter(cmd, rootOpts).Success(map[string]string{"version": http.Version}, "membrane "+http.Version)
		},
	}
}
