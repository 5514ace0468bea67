// Package server wires Synapse together.
//
// New builds the terminal manager, the grid, the agent supervisor, the
// status collector and the host telemetry sampler, applies the agent
// manifest, and mounts the HTTP and WebSocket routes behind the middleware
// stack (recovery, request id, access log, metrics, CORS, rate limit).
//
// Run serves until its context is canceled. While running, a reap loop folds
// agents whose process exited back to stopped and drops closed terminals
// from the grid. Shutdown stops every agent and closes every terminal.
//
//	cfg, err := config.Load()
//	srv, err := server.New(cfg, logger)
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	err = srv.Run(ctx)
package server
