// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the attendance engine.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/credential"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/payment"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/service"
)

const maxBodyBytes = 1 << 20

// Handler holds all HTTP handlers for the attendance API.
type Handler struct {
	svc           *service.Service
	creds         *credential.Service
	gateway       payment.Gateway
	logger        *slog.Logger
	credentialTTL time.Duration
}

// New constructs a Handler. gateway may be nil when no provider is configured.
func New(svc *service.Service, creds *credential.Service, gateway payment.Gateway, logger *slog.Logger, credentialTTL time.Duration) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, creds: creds, gateway: gateway, logger: logger, credentialTTL: credentialTTL}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: code, Description: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *Handler) badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, string(domainerr.InvalidInput), "invalid request body: "+err.Error())
}

// ─── Attendees ────────────────────────────────────────────────────────────────

// CreateAttendee handles POST /attendees
func (h *Handler) CreateAttendee(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAttendeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	a, err := h.svc.CreateAttendee(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAttendee handles GET /attendees/{id}
func (h *Handler) GetAttendee(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAttendee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// IssueCredential handles GET /attendees/{id}/credential
// Returns the signed token an attendee's QR code encodes.
func (h *Handler) IssueCredential(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAttendee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	token, expiresAt, err := h.creds.IssueAdmission(a.ID, h.credentialTTL)
	if err != nil {
		h.writeDomainError(w, r, domainerr.Wrap(err, domainerr.Internal, "sign credential"))
		return
	}
	writeJSON(w, http.StatusOK, model.CredentialResponse{AttendeeID: a.ID, Token: token, ExpiresAt: expiresAt})
}

// ListAttendeeRegistrations handles GET /attendees/{id}/registrations
func (h *Handler) ListAttendeeRegistrations(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListRegistrationsForAttendee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ─── Activities ───────────────────────────────────────────────────────────────

// CreateActivity handles POST /activities
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req model.CreateActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	a, err := h.svc.CreateActivity(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ListActivities handles GET /activities
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.svc.ListActivities(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if activities == nil {
		activities = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

// GetActivity handles GET /activities/{id}
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SetActivityActive handles PUT /activities/{id}/active
func (h *Handler) SetActivityActive(w http.ResponseWriter, r *http.Request) {
	var req model.SetActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	a, err := h.svc.SetActivityActive(r.Context(), chi.URLParam(r, "id"), req.Active)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ─── Registration ledger ──────────────────────────────────────────────────────

// Register handles POST /activities/{id}/register
// Free activities only; paid ones answer 402 and go through checkout.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	reg, err := h.svc.CreateRegistration(r.Context(), chi.URLParam(r, "id"), req.AttendeeID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// Checkout handles POST /activities/{id}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	res, err := h.svc.Checkout(r.Context(), chi.URLParam(r, "id"), req.AttendeeID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListActivityRegistrations handles GET /activities/{id}/registrations
func (h *Handler) ListActivityRegistrations(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListRegistrationsForActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetRegistration handles GET /activities/{id}/registrations/{attendeeId}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetRegistration(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "attendeeId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ApplyPaymentOutcome handles POST /activities/{id}/payment
// Manual reconciliation by an organizer; gateways use the webhook.
func (h *Handler) ApplyPaymentOutcome(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentOutcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	reg, err := h.svc.ApplyPaymentOutcome(r.Context(), chi.URLParam(r, "id"), req.AttendeeID, req.Outcome)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// PaymentWebhook handles POST /webhooks/payments/{provider}
// Redelivered outcomes answer 200 so the provider stops retrying.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil || h.gateway.Name() != chi.URLParam(r, "provider") {
		writeError(w, http.StatusNotFound, "UnknownProvider", "no such payment provider")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.badBody(w, err)
		return
	}
	note, err := h.gateway.ParseWebhook(r.Context(), body, r.Header)
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			writeError(w, http.StatusUnauthorized, "BadSignature", err.Error())
			return
		}
		h.badBody(w, err)
		return
	}

	reg, err := h.svc.ApplyPaymentOutcomeByOrder(r.Context(), note.OrderID, note.Outcome)
	if err != nil {
		if domainerr.HasReason(err, domainerr.AlreadyFinalized) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "already_finalized"})
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ─── Team formation ───────────────────────────────────────────────────────────

// CreateTeam handles POST /activities/{id}/team
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	view, err := h.svc.CreateTeam(r.Context(), chi.URLParam(r, "id"), req.LeaderID, req.TeamName, req.Members)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// AddTeamMember handles POST /activities/{id}/team/members
func (h *Handler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	var req model.TeamMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}
	view, err := h.svc.AddTeamMember(r.Context(), chi.URLParam(r, "id"), req.LeaderID, req.Email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveTeamMember handles DELETE /activities/{id}/team/members/{email}?leader_id=
// chi matches on the escaped path, so the email segment is unescaped here.
func (h *Handler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domainerr.InvalidInput), "invalid member email in path: "+err.Error())
		return
	}
	view, err := h.svc.RemoveTeamMember(r.Context(),
		chi.URLParam(r, "id"), r.URL.Query().Get("leader_id"), email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ─── Entry gate ───────────────────────────────────────────────────────────────

// Scan handles POST /entry/scan
// Both Allowed and Denied answer 200; the decision is in the body.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}

	attendeeID := req.AttendeeID
	if req.Credential != "" {
		id, err := h.creds.ParseAdmission(req.Credential)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "InvalidCredential", err.Error())
			return
		}
		attendeeID = id
	}

	claims, ok := ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "staff token required")
		return
	}
	res, err := h.svc.VerifyEntry(r.Context(), attendeeID, claims.AttendeeID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
