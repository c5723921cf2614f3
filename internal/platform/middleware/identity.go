package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "civigate/pkg/domain"
	dErrors "civigate/pkg/domain-errors"
	"civigate/pkg/platform/httputil"
	"civigate/pkg/requestcontext"
)

// IdentityDecoder resolves inbound credentials to a caller identity.
type IdentityDecoder interface {
	Decode(token string) (*id.Identity, error)
}

// Identity optionally resolves a bearer token to a caller identity.
// Decode failures are treated as anonymous rather than rejected here:
// whether authentication is required is decided per-service downstream.
func Identity(decoder IdentityDecoder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ident, err := decoder.Decode(token)
			if err != nil {
				logger.WarnContext(r.Context(), "ignoring invalid bearer token",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := requestcontext.WithIdentity(r.Context(), ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group on an authenticated caller holding the
// given role. Used by the registry admin mutations.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := requestcontext.Identity(r.Context())
			if ident == nil {
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !ident.HasRole(role) {
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeForbidden, "insufficient privileges"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
