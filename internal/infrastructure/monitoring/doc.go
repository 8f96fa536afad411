/*
Package monitoring provides metrics collection for the membrane service.

# Overview

This package implements Prometheus-based metrics for the HTTP surface, the
membrane itself and the sandboxes built on it.

# Features

- HTTP request metrics (latency, status)
- Wrappers minted per strategy (static, dynamic, reverse, revoked)
- Boundary failures normalized between realms
- Guest execution counts and latency
- Checked out sandboxes
- A JSON snapshot for the stats endpoint

# Usage

	// Create metrics collector on its own registry
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time executions
	timer := monitoring.NewTimer(metrics)
	// ... run guest code ...
	timer.Stop("success")

A nil *Metrics is accepted everywhere and records nothing.

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
