// Package middleware provides the HTTP middleware stack for the synapse API.
//
// Middleware stack includes:
//   - RequestID: Assigns or propagates an X-Request-ID
//   - AccessLog: One structured zap line per request
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//
// Rate Limiting:
//   - Per-IP tracking with idle client cleanup
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
