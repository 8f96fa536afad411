// Package bridge provides an HTTP implementation of the sandbox bridge.
//
// Guest scripts call bridge.call(method, ...args) and bridge.emit(event,
// data); the sandbox forwards both through its circuit breaker to a
// Client, which posts them as JSON to a host service.
//
// Built on go-resty/resty with a hashicorp/go-retryablehttp transport:
//   - Retries with backoff on connection errors and 5xx responses
//   - Optional client-side rate limiting (golang.org/x/time/rate)
//   - sonic for request and response encoding
//
// Example Usage:
//
//	client, err := bridge.New(bridge.DefaultConfig("http://localhost:9000"), logger)
//	config.Bridge = client
package bridge
