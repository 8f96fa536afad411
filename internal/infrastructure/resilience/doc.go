/*
Package resilience provides a circuit breaker for calls that leave the
sandbox.

# Overview

Guest scripts reach host services through the sandbox bridge, often in
loops. A breaker in front of the bridge turns a failing host service into
fast, uniform errors inside the guest instead of a pile of slow calls.

# States

	Closed --[Threshold consecutive failures]--> Open
	Open   --[Cooldown elapsed]----------------> Half-Open
	Half-Open --[trial succeeds]---------------> Closed
	Half-Open --[trial fails]------------------> Open

Only one trial call runs while half-open; others get ErrOpen. Calls that
end because their own context was cancelled or timed out are not counted
either way.

# Usage

	breaker := resilience.New("bridge", resilience.Settings{
		Cooldown: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.String("to", to.String()))
		},
	})

	var res interface{}
	err := breaker.Do(ctx, func(ctx context.Context) (err error) {
		res, err = bridge.Call(ctx, method, args...)
		return err
	})
*/
package resilience
