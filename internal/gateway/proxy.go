package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"civigate/internal/domain"
	"civigate/internal/platform/middleware"
	dErrors "civigate/pkg/domain-errors"
	"civigate/pkg/platform/httputil"
	"civigate/pkg/requestcontext"
)

// routePrefix is prepended to every forwarded path: backends expose their
// API under /api regardless of the public service name.
const routePrefix = "/api"

var (
	proxiedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civigate_proxy_requests_total",
		Help: "Proxied requests by outcome",
	}, []string{"outcome"})
	forwardLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "civigate_proxy_forward_seconds",
		Help:    "Wall time of backend round trips",
		Buckets: prometheus.DefBuckets,
	})
)

// passthroughHeaders are relayed to the client on non-JSON backend
// responses.
var passthroughHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"Etag",
	"Last-Modified",
	"Content-Disposition",
}

// forwardedRequestHeaders are copied from the inbound request when present.
var forwardedRequestHeaders = []string{
	"Content-Type",
	"Authorization",
	"Accept",
	"Cookie",
}

// Proxy is the forwarding engine: resolve, decide, forward, normalize.
type Proxy struct {
	cache  *Cache
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithClient overrides the outbound HTTP client. Test hook.
func WithClient(client *http.Client) ProxyOption {
	return func(p *Proxy) { p.client = client }
}

// NewProxy constructs the forwarding engine. The outbound client caps the
// round trip at timeout and follows at most maxRedirects redirects; backend
// 4xx/5xx statuses are not errors, only transport failures are.
func NewProxy(cache *Cache, logger *slog.Logger, timeout time.Duration, maxRedirects int, opts ...ProxyOption) (*Proxy, error) {
	if cache == nil {
		return nil, errors.New("gateway cache is required")
	}
	p := &Proxy{
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer("civigate/gateway"),
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Forward handles one inbound gateway request for the named service.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, name, subPath string) {
	ctx, span := p.tracer.Start(r.Context(), "gateway.forward",
		trace.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("http.method", r.Method),
		))
	defer span.End()
	r = r.WithContext(ctx)

	caller := requestcontext.Identity(ctx)

	svc, _, err := p.cache.Resolve(ctx, name)
	switch {
	case err == nil:
		err = Decide(&svc, caller)
	case dErrors.CodeOf(err) == dErrors.CodeNotFound:
		err = Decide(nil, caller)
	}
	if err != nil {
		proxiedRequests.WithLabelValues("denied").Inc()
		httputil.WriteError(w, r, err)
		return
	}

	req, err := p.buildRequest(r, svc, subPath)
	if err != nil {
		proxiedRequests.WithLabelValues("error").Inc()
		httputil.WriteError(w, r, err)
		return
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	forwardLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		p.writeTransportFailure(w, r, svc, err)
		return
	}
	defer resp.Body.Close()

	proxiedRequests.WithLabelValues("forwarded").Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	p.relay(w, r, resp)
}

// buildRequest assembles the outbound request: target URL with the routing
// prefix, re-encoded query, and the forwarding header set.
func (p *Proxy) buildRequest(r *http.Request, svc domain.RegisteredService, subPath string) (*http.Request, error) {
	target := strings.TrimSuffix(svc.BaseURL, "/") + routePrefix + subPath
	if query := r.URL.Query().Encode(); query != "" {
		target += "?" + query
	}
	if _, err := url.Parse(target); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request path produces an invalid target URL")
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request could not be forwarded")
	}

	ctx := r.Context()
	req.Header.Set(middleware.HeaderRequestID, requestcontext.RequestID(ctx))
	req.Header.Set("X-Forwarded-For", requestcontext.ClientIP(ctx))
	req.Header.Set("X-Forwarded-Host", r.Host)
	req.Header.Set("X-Forwarded-Proto", forwardedProto(r))
	for _, h := range forwardedRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if caller := requestcontext.Identity(ctx); caller != nil {
		if serialized, err := json.Marshal(caller); err == nil {
			req.Header.Set("X-User-Context", string(serialized))
		}
	}
	return req, nil
}

// relay normalizes the backend response onto the client connection. JSON
// bodies are re-wrapped in the platform envelope; everything else streams
// through byte-for-byte with a whitelisted header set, without ever
// buffering the body (backends serve document downloads through here).
func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	if !isJSON(resp.Header.Get("Content-Type")) {
		p.relayRaw(w, resp, resp.Body)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		httputil.WriteErrorEnvelope(w, r, http.StatusBadGateway,
			string(dErrors.CodeBadGateway), "backend response could not be read", nil)
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		// Declared JSON but not parseable. Relay untouched rather than
		// inventing an envelope around garbage.
		p.relayRaw(w, resp, bytes.NewReader(body))
		return
	}

	if resp.StatusCode >= http.StatusBadRequest {
		code, message, details := translateBackendError(resp.StatusCode, payload)
		httputil.WriteErrorEnvelope(w, r, resp.StatusCode, code, message, details)
		return
	}

	// A backend that already speaks the envelope gets wrapped once more;
	// the inner envelope is preserved as the data payload.
	httputil.WriteSuccess(w, r, resp.StatusCode, payload)
}

func (p *Proxy) relayRaw(w http.ResponseWriter, resp *http.Response, body io.Reader) {
	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, body)
}

// writeTransportFailure maps an outbound transport error to the gateway
// taxonomy: refused connections mean the service is down (503), timeouts
// become 504, anything else is a bad gateway.
func (p *Proxy) writeTransportFailure(w http.ResponseWriter, r *http.Request, svc domain.RegisteredService, err error) {
	ctx := r.Context()
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to write.
		p.logger.DebugContext(ctx, "proxy request cancelled by client",
			"service", svc.Name,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}

	proxiedRequests.WithLabelValues("upstream_failure").Inc()
	p.logger.ErrorContext(ctx, "backend request failed",
		"service", svc.Name,
		"base_url", svc.BaseURL,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)

	var urlErr *url.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("%s is temporarily unavailable", svc.DisplayName)))
	case errors.As(err, &urlErr) && urlErr.Timeout():
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeTimeout,
			fmt.Sprintf("%s did not respond in time", svc.DisplayName)))
	default:
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeBadGateway,
			fmt.Sprintf("%s returned an invalid response", svc.DisplayName)))
	}
}

// translateBackendError extracts code/message/details from a backend error
// payload, falling back to a generic per-status message.
func translateBackendError(status int, payload any) (code, message string, details any) {
	code = string(dErrors.FromHTTPStatus(status))
	message = http.StatusText(status)

	obj, ok := payload.(map[string]any)
	if !ok {
		return code, message, nil
	}

	switch errField := obj["error"].(type) {
	case map[string]any:
		if c, ok := errField["code"].(string); ok && c != "" {
			code = c
		}
		if m, ok := errField["message"].(string); ok && m != "" {
			message = m
		}
		if d, ok := errField["details"]; ok {
			details = d
		}
	case string:
		if errField != "" {
			message = errField
		}
	}
	if m, ok := obj["message"].(string); ok && m != "" {
		message = m
	}
	if details == nil {
		if d, ok := obj["details"]; ok {
			details = d
		}
	}
	return code, message, details
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

func forwardedProto(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
