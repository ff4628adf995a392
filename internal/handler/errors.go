package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// statusFor maps a domain error onto an HTTP status.
func statusFor(de *domainerr.Error) int {
	if de.Reason == domainerr.PaymentRequired {
		return http.StatusPaymentRequired
	}
	switch de.Kind() {
	case domainerr.KindValidation:
		return http.StatusBadRequest
	case domainerr.KindNotFound:
		return http.StatusNotFound
	case domainerr.KindConflict:
		return http.StatusConflict
	case domainerr.KindPreconditionFailed:
		return http.StatusUnprocessableEntity
	case domainerr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err as the JSON error envelope. Internal failures are
// logged and their detail withheld from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := domainerr.As(err)
	if !ok {
		de = domainerr.Wrap(err, domainerr.Internal, "internal error")
	}
	status := statusFor(de)

	resp := model.ErrorResponse{Error: string(de.Reason), Description: de.Message, Subject: de.Subject}
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "error", err)
		resp.Description = "internal error"
		resp.Subject = ""
	case status == http.StatusServiceUnavailable:
		h.logger.WarnContext(r.Context(), "store unavailable",
			"request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}
