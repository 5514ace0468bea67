/*
Package agent supervises long-running external processes.

A Supervisor holds agent records and, for running agents, the live OS
process. Every started process gets a waiter goroutine that reaps it and
closes a channel; Reap checks those channels without blocking and moves
exited agents back to stopped.

# Status

	stopped --Start--> starting --ok--> running --Stop--> stopping --> stopped
	                       |                |                  |
	                       +--fail--> error  +--exit, Reap--> stopped
	                                                           +--kill fails--> error

A pid is present exactly when the status is running, once each call returns.
Error persists until the next Start or an explicit Reset.

# Concurrency

Operations on one agent are serialized by a per-record lock. Operations on
different agents never wait on each other beyond short map accesses.

# Manifests

Agents can be declared in YAML, TOML or JSON:

	auto_start: false
	agents:
	  - name: indexer
	    command: ./bin/indexer
	    args: ["--watch"]
	    auto_start: true
*/
package agent
