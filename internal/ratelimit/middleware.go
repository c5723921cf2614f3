package ratelimit

import (
	"net/http"
	"strconv"

	dErrors "civigate/pkg/domain-errors"
	"civigate/pkg/platform/httputil"
	"civigate/pkg/requestcontext"
)

// Middleware applies the limiter once per inbound request, before any
// proxying. Authenticated callers are keyed by subject so their budget
// follows them across addresses; anonymous callers are keyed by client IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := requestcontext.ClientIP(ctx)
		if ident := requestcontext.Identity(ctx); ident != nil {
			key = ident.Subject
		}

		res := l.Check(ctx, key)
		windowSeconds := strconv.Itoa(int(res.Reset.Seconds()))
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", windowSeconds)

		if !res.Allowed {
			rejectedRequests.Inc()
			w.Header().Set("Retry-After", windowSeconds)
			httputil.WriteError(w, r, dErrors.New(dErrors.CodeRateLimited,
				"rate limit exceeded, please retry later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
