// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Domain packages take a plain *zap.Logger; use Component to hand each one
// a named child:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Logging))
//	terminals := terminal.NewManager(opts, logger.Component("terminal"))
//	logger.Info("Server starting", zap.String("port", "8000"))
package logging
