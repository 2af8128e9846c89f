// Package handler contains the HTTP handlers of the billing API.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc: a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path params, query, JSON body, uploads)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, JSON envelope)
//
// Handlers should NOT contain business logic: they are the "glue" between HTTP and the services.
package handler

import (
	"net/http"
)

// Endpoint is one line of the API index.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Auth   bool   `json:"auth"`
}

// IndexHandler serves the service banner at GET /.
// The banner is fixed at startup, so it is encoded from the same value every time.
type IndexHandler struct {
	body indexResponse
}

type indexResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Store     string     `json:"store"`
	Endpoints []Endpoint `json:"endpoints"`
}

// NewIndexHandler describes the running service: which store it uses and
// which endpoints it serves.
func NewIndexHandler(store string, endpoints []Endpoint) *IndexHandler {
	return &IndexHandler{body: indexResponse{
		Success:   true,
		Message:   "Billing tracker API",
		Store:     store,
		Endpoints: endpoints,
	}}
}

// HandleIndex returns the banner.
//
// HTTP: GET /
func (h *IndexHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.body)
}
