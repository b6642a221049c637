package intake

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/subscription-intake/pkg/httputil"
)

// Handler serves the intake over HTTP
type Handler struct {
	service *Service
}

// NewHandler creates an HTTP handler for service
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the intake on POST / and POST /subscriptions.
// OPTIONS is routed so that CORS preflights reach the middleware.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle("/", h).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/subscriptions", h).Methods(http.MethodPost, http.MethodOptions)
}

// ServeHTTP decodes the body, runs Subscribe and writes the response
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r)
	var req *Request
	if err == nil {
		req, err = DecodeRequest(body)
	}
	if err != nil {
		malformed := &Error{Kind: KindMalformedRequest, Op: "decode", Err: err}
		h.service.reject(r.Context(), malformed)
		writeResponse(w, nil, malformed)
		return
	}

	out, err := h.service.Subscribe(r.Context(), req)
	writeResponse(w, out, err)
}

// InternalErrorHandler answers with the generic internal error response.
// It is the fallback used when a request handler panics.
func InternalErrorHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, nil, &Error{Kind: KindInternalError, Op: "recover"})
}

func writeResponse(w http.ResponseWriter, out *Outcome, err error) {
	status, body := NewResponse(out, err)
	httputil.WriteJSON(w, status, body)
}
