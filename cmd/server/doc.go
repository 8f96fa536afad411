// Package main is the entry point for the membrane execution service.
//
// The server runs untrusted guest JavaScript in pooled sandboxes. Each
// sandbox pairs a host realm holding trusted endowments with a guest realm
// that sees them only through membrane wrappers.
//
// Endpoints:
//   - POST /execute, POST /execute/file: run one script
//   - GET /execute/stream: WebSocket execution with streamed console output
//   - GET /sandbox/stats, GET /metrics, GET /metrics/json: introspection
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -policy ./policy.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
