package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Documents
		r.Post("/documents", h.CreateDocument)
		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{id}", h.GetDocument)
		r.Put("/documents/{id}", h.UpdateDocument)

		// Workflow transitions
		r.Post("/documents/{id}/submit", h.SubmitDocument)
		r.Post("/documents/{id}/approve", h.ApproveDocument)
		r.Post("/documents/{id}/reject", h.RejectDocument)
		r.Post("/documents/{id}/force-advance", h.ForceAdvanceDocument)

		// Analysis results
		r.Get("/analyses/{id}", h.GetAnalysis)
	})
}
