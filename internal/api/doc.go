// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /generate-pdf/{task_id}/{user_id} renders a report for a task.
//   - GET /health reports in-flight runs against the configured ceiling.
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
