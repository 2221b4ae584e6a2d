package receiver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/driftlog/driftlog/server/internal/metrics"
	"github.com/driftlog/driftlog/server/internal/store"
)

// Option configures a Receiver.
type Option func(*Receiver)

// WithMetrics records gRPC ingest and query counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Receiver) { r.metrics = m }
}

// Receiver implements LogServiceServer on top of a store.
type Receiver struct {
	store   *store.Store
	metrics *metrics.Metrics
}

// New creates a Receiver that reads and writes st.
func New(st *store.Store, opts ...Option) *Receiver {
	r := &Receiver{store: st}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert validates and stores one record. Authentication is enforced by the
// server interceptor before this is called.
func (r *Receiver) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	rec, err := recordFromStruct(in)
	if err != nil {
		return nil, r.fail(err)
	}
	id, err := r.store.Insert(rec)
	if err != nil {
		return nil, r.fail(err)
	}
	if r.metrics != nil {
		r.metrics.Ingested.WithLabelValues(metrics.TransportGRPC).Inc()
	}

	slog.Debug("receiver: record stored", "id", id, "service_name", rec.ServiceName)

	return structpb.NewStruct(map[string]interface{}{
		"id":      id,
		"message": "Log entry created successfully",
	})
}

// Query returns the records matching the filter in, sorted by timestamp.
func (r *Receiver) Query(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	f, err := filterFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	recs := r.store.Query(f)
	if r.metrics != nil {
		r.metrics.Queries.WithLabelValues(metrics.TransportGRPC).Inc()
		r.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}

	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(recs))}
	for _, rec := range recs {
		out.Values = append(out.Values, structpb.NewStructValue(recordToStruct(rec)))
	}
	return out, nil
}

// fail maps a store error to a gRPC status.
func (r *Receiver) fail(err error) error {
	switch {
	case store.IsValidation(err):
		r.reject(metrics.ReasonInvalid)
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrDuplicateID):
		r.reject(metrics.ReasonDuplicate)
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		slog.Error("receiver: insert failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func (r *Receiver) reject(reason string) {
	if r.metrics != nil {
		r.metrics.Rejected.WithLabelValues(metrics.TransportGRPC, reason).Inc()
	}
}

// --- conversion -------------------------------------------------------------

func recordFromStruct(in *structpb.Struct) (store.Record, error) {
	var rec store.Record
	var err error
	if rec.ServiceName, err = stringField(in, "service_name"); err != nil {
		return store.Record{}, err
	}
	if rec.Message, err = stringField(in, "message"); err != nil {
		return store.Record{}, err
	}
	if rec.ID, err = stringField(in, "id"); err != nil {
		return store.Record{}, err
	}
	ts, err := stringField(in, "timestamp")
	if err != nil {
		return store.Record{}, err
	}
	if ts != "" {
		if rec.Timestamp, err = store.ParseTimestamp(ts); err != nil {
			return store.Record{}, err
		}
	}
	return rec, nil
}

func filterFromStruct(in *structpb.Struct) (store.Filter, error) {
	var f store.Filter
	var err error
	if f.ServiceName, err = stringField(in, "service_name"); err != nil {
		return store.Filter{}, err
	}
	if f.Start, err = timeField(in, "start", "start_time"); err != nil {
		return store.Filter{}, err
	}
	if f.End, err = timeField(in, "end", "end_time"); err != nil {
		return store.Filter{}, err
	}

	src, err := stringField(in, "expr")
	if err != nil {
		return store.Filter{}, err
	}
	if src != "" {
		if f.Expr, err = store.CompileExpr(src); err != nil {
			return store.Filter{}, err
		}
	}

	if v, ok := in.GetFields()["limit"]; ok {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok || n.NumberValue < 0 || n.NumberValue != math.Trunc(n.NumberValue) {
				return store.Filter{}, &store.ValidationError{Field: "limit", Reason: "must be a non-negative integer"}
			}
			f.Limit = int(n.NumberValue)
		}
	}
	return f, nil
}

func recordToStruct(rec store.Record) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":           structpb.NewStringValue(rec.ID),
		"service_name": structpb.NewStringValue(rec.ServiceName),
		"timestamp":    structpb.NewStringValue(rec.Timestamp.Format(time.RFC3339Nano)),
		"message":      structpb.NewStringValue(rec.Message),
	}}
}

// stringField returns "" for a missing or null field.
func stringField(in *structpb.Struct, name string) (string, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	default:
		return "", &store.ValidationError{Field: name, Reason: "must be a string"}
	}
}

func timeField(in *structpb.Struct, names ...string) (*time.Time, error) {
	for _, name := range names {
		s, err := stringField(in, name)
		if err != nil {
			return nil, err
		}
		if s == "" {
			continue
		}
		t, err := store.ParseTimestamp(s)
		if err != nil {
			return nil, &store.ValidationError{Field: name, Reason: "not an ISO-8601 time: " + s}
		}
		return &t, nil
	}
	return nil, nil
}
