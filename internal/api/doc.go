// Package api hosts the HTTP server, middleware, and REST handlers for crawl
// sessions. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawls to start a session and POST /v1/crawls/{id}/cancel to stop one.
//   - GET /v1/crawls/{id} and /v1/crawls/{id}/errors to read status and the
//     live error table, as JSON or CSV.
//   - GET /v1/crawls/{id}/report for the CSV written when the session ended.
package api
