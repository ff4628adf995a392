package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// NewRouter builds the full route table. gatherer backs /metrics.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(logger))
	r.Use(CORS)

	organizer := RequireRole(h.creds, model.RoleOrganizer)
	gate := RequireRole(h.creds, model.RoleStaff, model.RoleOrganizer)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/attendees", func(r chi.Router) {
		r.Post("/", h.CreateAttendee)
		r.Get("/{id}", h.GetAttendee)
		r.Get("/{id}/credential", h.IssueCredential)
		r.Get("/{id}/registrations", h.ListAttendeeRegistrations)
	})

	r.Route("/activities", func(r chi.Router) {
		r.Get("/", h.ListActivities)
		r.With(organizer).Post("/", h.CreateActivity)
		r.Get("/{id}", h.GetActivity)
		r.With(organizer).Put("/{id}/active", h.SetActivityActive)

		r.Post("/{id}/register", h.Register)
		r.Post("/{id}/checkout", h.Checkout)
		r.With(organizer).Get("/{id}/registrations", h.ListActivityRegistrations)
		r.Get("/{id}/registrations/{attendeeId}", h.GetRegistration)
		r.With(organizer).Post("/{id}/payment", h.ApplyPaymentOutcome)

		// Team mutations trust the leader_id in the request; there are no
		// attendee tokens to check it against, only staff and organizer ones.
		// TODO: require an attendee bearer token whose subject equals leader_id.
		r.Post("/{id}/team", h.CreateTeam)
		r.Post("/{id}/team/members", h.AddTeamMember)
		r.Delete("/{id}/team/members/{email}", h.RemoveTeamMember)
	})

	r.Post("/webhooks/payments/{provider}", h.PaymentWebhook)
	r.With(gate).Post("/entry/scan", h.Scan)

	return r
}
