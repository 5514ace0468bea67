/*
Package monitoring provides Prometheus metrics for the server.

# Overview

Metrics covers HTTP traffic, terminal session lifecycle, agent supervision,
host telemetry and WebSocket streams. All collectors are registered with the
Registerer passed to NewMetrics, so tests can use a private registry.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Hand the collector to the domain managers
	terminals.WithMetrics(metrics)
	agents.WithMetrics(metrics)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
