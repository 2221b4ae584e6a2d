package types

import "time"

// LogEntry is one log record as returned by GET /log and pushed by the live tail.
type LogEntry struct {
	ID          string    `json:"id"`
	ServiceName string    `json:"service_name"`
	Timestamp   time.Time `json:"timestamp"` // RFC3339, UTC
	Message     string    `json:"message"`
}

// IngestRequest is the body of POST /log. Timestamp and ID are optional.
type IngestRequest struct {
	ID          string `json:"id,omitempty"`
	ServiceName string `json:"service_name"`
	Timestamp   string `json:"timestamp,omitempty"` // ISO-8601
	Message     string `json:"message"`
}

// IngestResponse is returned with 201 for a single-record POST /log.
type IngestResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BatchIngestResponse is returned with 201 when POST /log carries a JSON array.
type BatchIngestResponse struct {
	IDs     []string `json:"ids"`
	Message string   `json:"message"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Event is the envelope written to live-tail WebSocket clients.
// Event is "log" (Data is a LogEntry) or "stats" (Data is a Stats).
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Stats is the payload of the periodic "stats" live-tail event.
type Stats struct {
	Stored int `json:"stored"`
}
