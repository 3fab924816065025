package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, hub *Hub) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.AppendMessage)
		r.Put("/messages", h.UpdateMessage)
		r.Delete("/messages", h.ClearMessages)

		r.Get("/settings", h.GetSettings)
		r.Post("/settings", h.UpdateSettings)
		r.Put("/settings", h.UpdateSettings)

		r.Post("/chat/send", h.SendChat)

		r.Get("/rituals", h.ListRituals)
		r.Post("/rituals", h.SaveRitual)
		r.Delete("/rituals/{id}", h.DeleteRitual)
		r.Post("/rituals/trigger", h.TriggerRitual)

		r.Post("/fallback", h.Fallback)

		r.Post("/mind", h.SaveMind)
		r.Post("/winddown/answer", h.SaveWinddownAnswer)

		r.Post("/cards/{id}/start", h.StartCard)
		r.Post("/cards/{id}/action", h.CardAction)

		r.Get("/appointments", h.ListAppointments)
		r.Get("/todos/urgent", h.ListUrgentTodos)

		if hub != nil {
			r.Get("/events", hub.ServeHTTP)
		}
	})

	return r
}
