package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	gojson "github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/driftlog/driftlog/pkg/types"
)

// Checker validates API keys presented on either transport.
// A Checker with mode != "apikey" or an empty key allows everything.
type Checker struct {
	header  string
	key     string
	enabled bool
}

// NewChecker builds a Checker. header is matched case-insensitively.
func NewChecker(mode, header, key string) *Checker {
	return &Checker{
		header:  strings.ToLower(header),
		key:     key,
		enabled: mode == "apikey" && key != "",
	}
}

// Enabled reports whether keys are enforced.
func (c *Checker) Enabled() bool { return c.enabled }

// Allow reports whether presented matches the configured key.
func (c *Checker) Allow(presented string) bool {
	if !c.enabled {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(c.key)) == 1
}

// UnaryInterceptor enforces the key on every unary gRPC call, reading it from
// the incoming metadata. Failures return codes.Unauthenticated.
func (c *Checker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !c.enabled {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(c.header)
		if len(vals) == 0 || !c.Allow(vals[0]) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

// Middleware enforces the key on HTTP requests. The key is read from the
// configured header, or from the api_key query parameter for WebSocket
// clients that cannot set headers. Failures get 401 with a JSON error body.
func (c *Checker) Middleware(next http.Handler) http.Handler {
	if !c.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(c.header)
		if presented == "" {
			presented = r.URL.Query().Get("api_key")
		}
		if presented == "" || !c.Allow(presented) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			gojson.NewEncoder(w).Encode(types.ErrorResponse{Error: "invalid api key"}) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
