// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz / readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /proxy/{mangadex,manganato,image} for the browser client.
//   - /v1/library, /v1/search, /v1/manga/{id} and /v1/recommendations for
//     the tracker itself.
//   - POST /v1/imports and GET /v1/imports/{id}[/events] for bulk imports.
package api
