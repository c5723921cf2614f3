package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"civigate/pkg/requestcontext"
)

// HeaderRequestID is the correlation id header, read from the inbound
// request when present and always echoed back on the response.
const HeaderRequestID = "X-Request-ID"

// CorrelationID propagates or generates the correlation id, pins the
// request-scoped time, and echoes the id back to the caller.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
