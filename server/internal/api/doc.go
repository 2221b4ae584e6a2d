// Package api implements the HTTP API for driftlog-server.
//
// New(store, opts...) returns an http.Handler (gorilla/mux) that serves:
//
//	GET  /            liveness: {"service":"driftlog","status":"ok"}
//	POST /log         ingest one record (201 {"id","message"}) or a JSON array (201 {"ids","message"})
//	GET  /log         query: service_name, start|start_time, end|end_time, expr, limit
//	GET  /log/stream  WebSocket live tail (WithLiveTail)
//	GET  /metrics     Prometheus exposition (WithMetrics)
//
// Status codes: 400 malformed JSON, 401 bad API key (WithAuth), 405 wrong
// method, 409 duplicate id, 422 validation failure. Error bodies are
// {"error": "..."}. GET /log responses are gzip-compressed when accepted.
package api
