package receiver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/driftlog/driftlog/server/internal/auth"
	"github.com/driftlog/driftlog/server/internal/metrics"
	"github.com/driftlog/driftlog/server/internal/receiver"
	"github.com/driftlog/driftlog/server/internal/store"
)

// startServer starts a gRPC server on a random loopback port and returns a
// connected client.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor, opts ...receiver.Option) (*receiver.Client, *store.Store) {
	t.Helper()

	st := store.New()
	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	receiver.RegisterLogServiceServer(srv, receiver.New(st, opts...))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return receiver.NewClient(conn), st
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func ids(list *structpb.ListValue) []string {
	out := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, v.GetStructValue().GetFields()["id"].GetStringValue())
	}
	return out
}

func TestInsert_StoresRecord(t *testing.T) {
	client, st := startServer(t, allowAll)

	resp, err := client.Insert(context.Background(), mustStruct(t, map[string]interface{}{
		"service_name": "auth-service",
		"message":      "User login successful",
		"timestamp":    "2025-03-17T12:15:00+02:00",
	}))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	id := resp.GetFields()["id"].GetStringValue()
	if id == "" {
		t.Fatal("id: empty")
	}
	if msg := resp.GetFields()["message"].GetStringValue(); msg != "Log entry created successfully" {
		t.Errorf("message: got %q", msg)
	}

	recs := st.Query(store.Filter{})
	if len(recs) != 1 || recs[0].ID != id {
		t.Fatalf("stored: %+v", recs)
	}
	want := time.Date(2025, 3, 17, 10, 15, 0, 0, time.UTC)
	if !recs[0].Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", recs[0].Timestamp, want)
	}
}

func TestInsert_InvalidArgument(t *testing.T) {
	client, st := startServer(t, allowAll)

	cases := map[string]map[string]interface{}{
		"missing service": {"message": "m"},
		"empty message":   {"service_name": "a", "message": ""},
		"numeric message": {"service_name": "a", "message": 3.0},
		"bad timestamp":   {"service_name": "a", "message": "m", "timestamp": "noon"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := client.Insert(context.Background(), mustStruct(t, body))
			if code := status.Code(err); code != codes.InvalidArgument {
				t.Errorf("code: got %v, want InvalidArgument", code)
			}
		})
	}
	if st.Count() != 0 {
		t.Errorf("Count: got %d, want 0", st.Count())
	}
}

func TestInsert_DuplicateID_AlreadyExists(t *testing.T) {
	client, _ := startServer(t, allowAll)
	ctx := context.Background()
	body := map[string]interface{}{"id": "fixed", "service_name": "a", "message": "m"}

	if _, err := client.Insert(ctx, mustStruct(t, body)); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	_, err := client.Insert(ctx, mustStruct(t, body))
	if code := status.Code(err); code != codes.AlreadyExists {
		t.Errorf("code: got %v, want AlreadyExists", code)
	}
}

func TestQuery_FiltersAndSorts(t *testing.T) {
	client, st := startServer(t, allowAll)
	base := time.Date(2025, 3, 17, 10, 15, 0, 0, time.UTC)
	for _, r := range []store.Record{
		{ID: "B", ServiceName: "payment", Message: "paid", Timestamp: base.Add(2 * time.Hour)},
		{ID: "A", ServiceName: "auth", Message: "login", Timestamp: base},
		{ID: "C", ServiceName: "auth", Message: "logout", Timestamp: base.Add(time.Hour)},
	} {
		if _, err := st.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	cases := []struct {
		name   string
		filter map[string]interface{}
		want   []string
	}{
		{"all", map[string]interface{}{}, []string{"A", "C", "B"}},
		{"service", map[string]interface{}{"service_name": "auth"}, []string{"A", "C"}},
		{"range inclusive", map[string]interface{}{"start": "2025-03-17T11:15:00Z", "end": "2025-03-17T12:15:00Z"}, []string{"C", "B"}},
		{"start_time alias", map[string]interface{}{"start_time": "2025-03-17T11:15:00"}, []string{"C", "B"}},
		{"expr", map[string]interface{}{"expr": `message.contains("log")`}, []string{"A", "C"}},
		{"limit", map[string]interface{}{"limit": 2.0}, []string{"A", "C"}},
		{"no match", map[string]interface{}{"service_name": "ghost"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := client.Query(context.Background(), mustStruct(t, tc.filter))
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			got := ids(list)
			if len(got) != len(tc.want) {
				t.Fatalf("ids: got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("ids: got %v, want %v", got, tc.want)
				}
			}
		})
	}

	list, _ := client.Query(context.Background(), mustStruct(t, map[string]interface{}{"service_name": "payment"}))
	fields := list.GetValues()[0].GetStructValue().GetFields()
	if ts := fields["timestamp"].GetStringValue(); ts != "2025-03-17T12:15:00Z" {
		t.Errorf("timestamp: got %q", ts)
	}
}

func TestQuery_InvalidArgument(t *testing.T) {
	client, _ := startServer(t, allowAll)
	for _, f := range []map[string]interface{}{
		{"start": "yesterday"},
		{"limit": -1.0},
		{"limit": 1.5},
		{"limit": "ten"},
		{"expr": "1 + 1"},
		{"service_name": true},
	} {
		_, err := client.Query(context.Background(), mustStruct(t, f))
		if code := status.Code(err); code != codes.InvalidArgument {
			t.Errorf("%v: code %v, want InvalidArgument", f, code)
		}
	}
}

func TestReceiver_Metrics(t *testing.T) {
	m := metrics.New(nil)
	client, _ := startServer(t, allowAll, receiver.WithMetrics(m))
	ctx := context.Background()

	client.Insert(ctx, mustStruct(t, map[string]interface{}{"service_name": "a", "message": "m"})) //nolint:errcheck
	client.Insert(ctx, mustStruct(t, map[string]interface{}{"service_name": "a"}))                 //nolint:errcheck
	client.Query(ctx, mustStruct(t, map[string]interface{}{}))                                     //nolint:errcheck

	if v := testutil.ToFloat64(m.Ingested.WithLabelValues(metrics.TransportGRPC)); v != 1 {
		t.Errorf("ingested: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.Rejected.WithLabelValues(metrics.TransportGRPC, metrics.ReasonInvalid)); v != 1 {
		t.Errorf("rejected: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.Queries.WithLabelValues(metrics.TransportGRPC)); v != 1 {
		t.Errorf("queries: got %v, want 1", v)
	}
}

func TestInsert_WithAPIKeyInterceptor(t *testing.T) {
	checker := auth.NewChecker("apikey", "x-api-key", "testkey")
	client, st := startServer(t, checker.UnaryInterceptor())
	body := map[string]interface{}{"service_name": "a", "message": "m"}

	cases := []struct {
		name string
		ctx  context.Context
		want codes.Code
	}{
		{"correct key", metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "testkey"), codes.OK},
		{"wrong key", metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrongkey"), codes.Unauthenticated},
		{"missing key", context.Background(), codes.Unauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Insert(tc.ctx, mustStruct(t, body))
			if code := status.Code(err); code != tc.want {
				t.Errorf("code: got %v, want %v", code, tc.want)
			}
		})
	}
	if st.Count() != 1 {
		t.Errorf("Count: got %d, want 1", st.Count())
	}
}
