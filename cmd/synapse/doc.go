// Command synapse serves a grid of terminal sessions and a supervisor for
// long-running agent processes.
//
// Configuration comes from the environment (PORT, TERMINAL_SHELL,
// AGENT_MANIFEST, AGENT_MAX_CONCURRENT, ...); flags override it.
//
// Usage:
//
//	# Run the server
//	synapse serve --port 8000 --manifest agents.yaml
//
//	# Development mode (colored logs, debug level)
//	synapse serve --dev
//
//	# Check a manifest without starting anything
//	synapse agents validate agents.toml
package main
