/*
Package sandbox runs untrusted JavaScript behind a membrane.

# Overview

Each sandbox owns two goja runtimes. Guest scripts run in the guest realm;
endowments, the document and the bridge live in the host realm and reach the
guest only as membrane wrappers. Shared intrinsics such as Error and
Object.prototype are linked by identity so that errors keep their class when
they cross.

Each sandbox has:

  - CPU limits (execution timeout, context cancellation, call stack size)
  - API restrictions (no require, process, module or timers)
  - A live document built from a DOM, with recorded changes
  - A bridge to a host service, guarded by a circuit breaker

# Policy

A Policy, usually loaded from YAML, chooses which host globals are exposed,
which of them are live rather than snapshots, and which host functions are
distorted:

	globals: [api]
	live: [api]
	distortions:
	  - path: api.reset
	    action: block

# Usage Example

	rt, err := sandbox.New(sandbox.DefaultConfig(), sandbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Execute(ctx, script, dom)
	if err != nil {
		logger.Error("execution failed", zap.Error(err))
	}

A Pool keeps sandboxes warm and resets each one before reuse.
*/
package sandbox
