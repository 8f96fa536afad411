// Package config provides 12-factor configuration management for the
// membrane sandbox service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown grace period, body limit, API key)
//   - Sandbox: Guest execution limits, pool size, policy file and host scripts
//   - Bridge: Optional HTTP endpoint answering guest bridge calls
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, MAX_BODY_BYTES, API_KEY_HASH
//   - SANDBOX_TIMEOUT, SANDBOX_POOL_SIZE, SANDBOX_STACK_SIZE
//   - SANDBOX_CONSOLE, SANDBOX_DOM, SANDBOX_POLICY_FILE, SANDBOX_WATCH_POLICY
//   - SANDBOX_MAX_SCRIPT_BYTES, SANDBOX_HOST_SCRIPTS, SANDBOX_HOST_SCRIPT_GLOB
//   - SANDBOX_PROGRAM_CACHE
//   - BRIDGE_URL, BRIDGE_TIMEOUT, BRIDGE_MAX_RETRIES, BRIDGE_RATE_LIMIT, BRIDGE_TOKEN
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
