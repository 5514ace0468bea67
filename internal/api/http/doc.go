// Package http provides the REST handlers for terminals, agents and status.
//
// Terminals:
//
//	GET    /terminals                 list sessions in grid order with the layout
//	POST   /terminals                 open a session and append it to the grid
//	DELETE /terminals/:id             close a session
//	POST   /terminals/:id/input       send keystrokes
//	POST   /terminals/:id/resize      change the window size
//	GET    /terminals/:id/output      recent lines (?lines=N)
//	GET    /terminals/:id/transcript  all retained output, zstd or gzip when accepted
//
// Agents:
//
//	GET    /agents                    list agents in registration order
//	POST   /agents                    register an agent, starting it when asked
//	GET    /agents/:id                one agent
//	DELETE /agents/:id                stop and forget an agent; unknown ids succeed
//	POST   /agents/:id/start|stop|reset
//	GET    /agents/:id/output         captured stdout and stderr (?lines=N)
//
// GET /status returns the status bar snapshot and GET /layout the grid rows.
//
// Domain errors map to status codes in one place (statusFor): unknown ids
// are 404, state conflicts and the concurrency limit are 409, and spawn
// failures are 422.
package http
