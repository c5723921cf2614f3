package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the dynamic proxy surface: any method, any sub-path,
// routed by service name.
type Handler struct {
	proxy *Proxy
}

// NewHandler constructs the gateway HTTP handler.
func NewHandler(proxy *Proxy) *Handler {
	return &Handler{proxy: proxy}
}

// Routes mounts the proxy routes on the router.
func (h *Handler) Routes(r chi.Router) {
	r.HandleFunc("/services/{name}", h.forward)
	r.HandleFunc("/services/{name}/*", h.forward)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	subPath := chi.URLParam(r, "*")
	if subPath != "" {
		subPath = "/" + subPath
	}
	h.proxy.Forward(w, r, name, subPath)
}
