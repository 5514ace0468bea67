// Package config provides 12-factor configuration management for the synapse server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS origins)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Terminal: Shell and geometry for new sessions, line retention
//   - Agent: Manifest path, auto-start, concurrency cap, reap interval
//   - Telemetry: procfs location and sampling interval
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - TERMINAL_SHELL, TERMINAL_ROWS, TERMINAL_COLS, TERMINAL_DISPLAY_LINES, TERMINAL_SCROLLBACK
//   - AGENT_MANIFEST, AGENT_AUTO_START, AGENT_MAX_CONCURRENT, AGENT_REAP_INTERVAL, AGENT_OUTPUT_LINES
//   - TELEMETRY_PROC_PATH, TELEMETRY_INTERVAL
package config
