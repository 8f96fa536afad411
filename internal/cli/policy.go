package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/server"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
)

// PolicyReport describes a validated policy file.
type PolicyReport struct {
	Path        string               `json:"path"`
	Format      string               `json:"format"`
	Globals     []string             `json:"globals"`
	Live        []string             `json:"live"`
	Distortions []sandbox.Distortion `json:"distortions"`
	Fingerprint string               `json:"fingerprint"`
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect sandbox policies",
	}
	cmd.AddCommand(newPolicyCheckCommand(rootOpts))
	return cmd
}

func newPolicyCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <policy-file>",
		Short: "Validate a YAML or TOML policy file",
		Long: `Parse and validate a sandbox policy. Files ending in .toml are read
as TOML, anything else as YAML. Unknown keys and unknown distortion
actions are rejected.

Example:
  membrane policy check ./policy.yaml
  membrane policy check --format json ./policy.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkPolicy(formatter(cmd, rootOpts), args[0])
		},
	}
}

func checkPolicy(out *OutputFormatter, path string) error {
	policy, err := sandbox.LoadPolicy(path)
	if err != nil {
		_ = out.Failure(nil, err)
		return WrapExitError(ExitCommandError, "policy check failed", err)
	}

	report := PolicyReport{
		Path:        filepath.ToSlash(path),
		Format:      "yaml",
		Globals:     nonNil(policy.Globals),
		Live:        nonNil(policy.Live),
		Distortions: policy.Distortions,
		Fingerprint: server.PolicyFingerprint(policy),
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		report.Format = "toml"
	}
	if report.Distortions == nil {
		report.Distortions = []sandbox.Distortion{}
	}

	globals := "all endowments"
	if len(report.Globals) > 0 {
		globals = strings.Join(report.Globals, ", ")
	}
	text := fmt.Sprintf("✓ %s is valid (%s)\n  globals: %s\n  live: %d\n  distortions: %d\n  fingerprint: %s",
		report.Path, report.Format, globals, len(report.Live), len(report.Distortions), report.Fingerprint)
	return out.Success(report, text)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
