package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

type requestKey struct{}

// requestMeta is shared by every middleware layer of one request so outer
// layers can see what inner layers learned.
type requestMeta struct {
	id      string
	ownerID string
}

// RequestID assigns a correlation id, keeping a caller-supplied one when it
// is short and printable.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		meta := &requestMeta{id: rid}
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestKey{}, meta)))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if m := metaFrom(ctx); m != nil {
		return m.id
	}
	return ""
}

func metaFrom(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(requestKey{}).(*requestMeta)
	return m
}

func validRequestID(rid string) bool {
	if rid == "" || len(rid) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(rid); i++ {
		if c := rid[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
