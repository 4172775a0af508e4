// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawls to run a catalog search synchronously and return its records.
package api
