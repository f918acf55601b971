package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the send pipeline's three routes, plus the campaign
// list and detail reads, on a chi.Router, the same router library the
// teacher uses.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/{carrier}", h.Webhook)
	r.Post("/api/sms/send", h.SendSMS)
	r.Get("/api/campaigns", h.ListCampaigns)
	r.Get("/api/campaigns/{id}", h.GetCampaign)
	r.Post("/api/campaigns/{id}/send", h.SendCampaign)

	return r
}
