package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// CorrelationIDHeader carries the correlation id in both directions.
	CorrelationIDHeader = "X-Correlation-ID"
	requestIDHeader     = "X-Request-ID"
)

type correlationIDKey struct{}

// CorrelationIDFromContext returns the correlation id stored by CorrelationID,
// or an empty string.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// CorrelationID returns a middleware that assigns every request a correlation
// id. A valid X-Correlation-ID (or X-Request-ID) header is reused, otherwise
// a new UUID is generated. Valid means at most 128 bytes of printable ASCII.
//
// The id is echoed in the X-Correlation-ID response header, stored in the
// request context and attached to the context logger as correlation_id.
// Must run after InjectLogger.
func CorrelationID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationIDHeader)
			if !isValidCorrelationID(id) {
				id = r.Header.Get(requestIDHeader)
			}
			if !isValidCorrelationID(id) {
				id = uuid.NewString()
			}

			w.Header().Set(CorrelationIDHeader, id)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
			ctx = zctx.With(ctx, zap.String("correlation_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isValidCorrelationID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
