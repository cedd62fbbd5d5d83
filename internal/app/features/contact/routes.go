// internal/app/features/contact/routes.go
package contact

import "github.com/go-chi/chi/v5"

// Mount registers the contact endpoints on r:
//
//	POST /api/contact     (other methods fall to the router's 405 handler)
//	ANY  /api/send-email  (legacy; the handler answers 405 itself)
func Mount(r chi.Router, h *Handler) {
	r.Post("/api/contact", h.ServeContact)
	r.HandleFunc("/api/send-email", h.ServeLegacy)
}
