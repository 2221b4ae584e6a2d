package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/valyala/fastjson"

	"github.com/driftlog/driftlog/pkg/types"
	"github.com/driftlog/driftlog/server/internal/auth"
	"github.com/driftlog/driftlog/server/internal/metrics"
	"github.com/driftlog/driftlog/server/internal/store"
)

// maxBodyBytes caps the size of a POST /log body.
const maxBodyBytes = 4 << 20

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records ingest and query counters on m and serves GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithAuth guards /log and /log/stream with c.
func WithAuth(c *auth.Checker) Option {
	return func(h *Handler) { h.auth = c }
}

// WithLiveTail mounts tail at GET /log/stream.
func WithLiveTail(tail http.Handler) Option {
	return func(h *Handler) { h.tail = tail }
}

// Handler is the HTTP handler for the log ingestion and query endpoints.
type Handler struct {
	store   *store.Store
	metrics *metrics.Metrics
	auth    *auth.Checker
	tail    http.Handler

	parsers fastjson.ParserPool
	router  *mux.Router
}

// New creates a Handler wired to st and registers all routes.
func New(st *store.Store, opts ...Option) http.Handler {
	h := &Handler{
		store:  st,
		auth:   auth.NewChecker("none", "", ""),
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := h.router
	r.Use(logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.Handle("/log", h.auth.Middleware(http.HandlerFunc(h.ingest))).Methods(http.MethodPost)
	r.Handle("/log", h.auth.Middleware(gzhttp.GzipHandler(http.HandlerFunc(h.query)))).Methods(http.MethodGet)
	if h.tail != nil {
		r.Handle("/log/stream", h.auth.Middleware(h.tail)).Methods(http.MethodGet)
	}
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// root serves GET / as a liveness check.
func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"service": "driftlog", "status": "ok"})
}

// ingest handles POST /log. The body is one record object or an array of them.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.reject(metrics.ReasonMalformed)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		h.reject(metrics.ReasonMalformed)
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	switch v.Type() {
	case fastjson.TypeObject:
		rec, err := recordFromJSON(v)
		if err != nil {
			h.fail(w, err)
			return
		}
		id, err := h.store.Insert(rec)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.accepted(1)
		jsonResp(w, http.StatusCreated, types.IngestResponse{
			ID:      id,
			Message: "Log entry created successfully",
		})

	case fastjson.TypeArray:
		items, _ := v.Array()
		if len(items) == 0 {
			h.fail(w, &store.ValidationError{Reason: "empty batch"})
			return
		}
		recs := make([]store.Record, len(items))
		for i, item := range items {
			rec, err := recordFromJSON(item)
			if err != nil {
				h.fail(w, fmt.Errorf("record %d: %w", i, err))
				return
			}
			recs[i] = rec
		}
		ids, err := h.store.InsertBatch(recs)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.accepted(len(ids))
		jsonResp(w, http.StatusCreated, types.BatchIngestResponse{
			IDs:     ids,
			Message: fmt.Sprintf("%d log entries created successfully", len(ids)),
		})

	default:
		h.fail(w, &store.ValidationError{Reason: "body must be a JSON object or array"})
	}
}

// query handles GET /log.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	start := time.Now()
	recs := h.store.Query(f)
	if h.metrics != nil {
		h.metrics.Queries.WithLabelValues(metrics.TransportHTTP).Inc()
		h.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}

	out := make([]types.LogEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ToEntry(rec))
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

// fail maps a store or decoding error to its status code.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case store.IsValidation(err):
		h.reject(metrics.ReasonInvalid)
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrDuplicateID):
		h.reject(metrics.ReasonDuplicate)
		jsonErr(w, http.StatusConflict, err.Error())
	default:
		slog.Error("api: insert failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) accepted(n int) {
	if h.metrics != nil {
		h.metrics.Ingested.WithLabelValues(metrics.TransportHTTP).Add(float64(n))
	}
}

func (h *Handler) reject(reason string) {
	if h.metrics != nil {
		h.metrics.Rejected.WithLabelValues(metrics.TransportHTTP, reason).Inc()
	}
}

// filterFromQuery reads service_name, start|start_time, end|end_time, expr
// and limit from the URL query.
func filterFromQuery(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{ServiceName: q.Get("service_name")}

	var err error
	if f.Start, err = optionalTime("start", firstNonEmpty(q.Get("start"), q.Get("start_time"))); err != nil {
		return store.Filter{}, err
	}
	if f.End, err = optionalTime("end", firstNonEmpty(q.Get("end"), q.Get("end_time"))); err != nil {
		return store.Filter{}, err
	}
	if s := q.Get("expr"); s != "" {
		if f.Expr, err = store.CompileExpr(s); err != nil {
			return store.Filter{}, err
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return store.Filter{}, &store.ValidationError{Field: "limit", Reason: "must be a non-negative integer"}
		}
		f.Limit = n
	}
	return f, nil
}

func optionalTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	// An unescaped "+" in a URL offset arrives as a space.
	if len(s) > 11 {
		s = s[:11] + strings.ReplaceAll(s[11:], " ", "+")
	}
	t, err := store.ParseTimestamp(s)
	if err != nil {
		return nil, &store.ValidationError{Field: field, Reason: "not an ISO-8601 time: " + s}
	}
	return &t, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ToEntry maps a stored record to its JSON representation.
func ToEntry(rec store.Record) types.LogEntry {
	return types.LogEntry{
		ID:          rec.ID,
		ServiceName: rec.ServiceName,
		Timestamp:   rec.Timestamp,
		Message:     rec.Message,
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	gojson.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, types.ErrorResponse{Error: msg})
}

// logRequests logs each request at debug level. It does not wrap the
// ResponseWriter so WebSocket upgrades keep their Hijacker.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}
