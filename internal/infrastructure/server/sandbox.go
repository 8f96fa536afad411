package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/config"
	"github.com/GriffinCanCode/membrane/internal/providers/bridge"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
	"github.com/GriffinCanCode/membrane/internal/shared/utils"
)

// SandboxConfig builds the sandbox configuration described by cfg. The
// policy file and host scripts are read from disk on every call so that a
// reload picks up their current contents. programs may be nil.
func SandboxConfig(ctx context.Context, cfg *config.Config, programs *sandbox.ProgramCache, logger *zap.Logger) (sandbox.Config, error) {
	sc := sandbox.Config{
		Timeout:          cfg.Sandbox.Timeout,
		MaxCallStackSize: cfg.Sandbox.MaxCallStackSize,
		EnableConsole:    cfg.Sandbox.EnableConsole,
		EnableDOM:        cfg.Sandbox.EnableDOM,
		Programs:         programs,
	}

	if cfg.Sandbox.PolicyFile != "" {
		policy, err := sandbox.LoadPolicy(cfg.Sandbox.PolicyFile)
		if err != nil {
			return sc, err
		}
		sc.Policy = policy
	}

	if cfg.Sandbox.HostScriptDir != "" {
		scripts, err := sandbox.LoadHostScripts(ctx, cfg.Sandbox.HostScriptDir, cfg.Sandbox.HostScriptGlob)
		if err != nil {
			return sc, err
		}
		sc.HostScript = sandbox.JoinHostScripts(scripts)
		logger.Debug("host scripts loaded",
			zap.String("dir", cfg.Sandbox.HostScriptDir),
			zap.Int("count", len(scripts)))
	}

	if cfg.Bridge.URL != "" {
		bc := bridge.DefaultConfig(cfg.Bridge.URL)
		bc.Timeout = cfg.Bridge.Timeout
		bc.MaxRetries = cfg.Bridge.MaxRetries
		bc.RateLimit = cfg.Bridge.RateLimit
		bc.Token = cfg.Bridge.Token
		client, err := bridge.New(bc, logger)
		if err != nil {
			return sc, fmt.Errorf("bridge: %w", err)
		}
		sc.Bridge = client
	}

	return sc, nil
}

// PolicyFingerprint identifies a policy by content, "" when none is set
func PolicyFingerprint(policy *sandbox.Policy) string {
	if policy == nil {
		return ""
	}
	sum, err := utils.DefaultHasher().HashJSON(policy)
	if err != nil {
		return ""
	}
	return utils.ShortHash(sum)
}
