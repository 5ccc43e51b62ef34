// Package api hosts the HTTP server for serve mode. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to trigger a run, 409 while one is in flight.
//   - GET /v1/runs/latest for the last run report.
package api
