package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/campaignfund/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса сбора пожертвований.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Optional)

			r.Get("/campaigns", h.ListCampaigns)
			r.Get("/campaigns/{id}", h.GetCampaign)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/settlement/order", h.CreateOrder)
			r.Post("/settlement/verify", h.VerifyPayment)

			r.Get("/donations/mine", h.MyDonations)
			r.Get("/donations/{id}/receipt", h.DownloadReceipt)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireAdmin)

				r.Post("/campaigns", h.CreateCampaign)
				r.Patch("/campaigns/{id}/close", h.CloseCampaign)
				r.Delete("/campaigns/{id}", h.DeleteCampaign)
				r.Get("/campaigns/{id}/donations", h.CampaignDonations)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
