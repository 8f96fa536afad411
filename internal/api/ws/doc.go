// Package ws streams guest executions over WebSocket.
//
// Message Types (Client → Server):
//   - execute: Run a script, with optional html and select
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection established
//   - execution_start: Script accepted
//   - console: One console entry, sent as the script writes it
//   - result: Final value and DOM changes
//   - complete: Execution finished
//   - error: Validation or execution failure
//
// Example Usage:
//
//	handler := ws.NewHandler(pool, logger, maxScript, 30*time.Second)
//	router.GET("/execute/stream", handler.HandleConnection)
package ws
