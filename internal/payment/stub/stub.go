// Package stub is a development payment provider. Orders resolve to a local pay
// page; webhooks are POSTed with an X-Signature HMAC-SHA256 of the raw body.
package stub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// ErrBadSignature is returned when X-Signature does not match the body.
var ErrBadSignature = errors.New("invalid webhook signature")

// ErrUnknownStatus is returned for notifications that are not a terminal outcome.
var ErrUnknownStatus = errors.New("webhook status is not terminal")

// terminalStatuses maps provider statuses onto the outcome they finalize to.
var terminalStatuses = map[string]model.PaymentOutcome{
	"paid":      model.OutcomeSucceeded,
	"failed":    model.OutcomeFailed,
	"cancelled": model.OutcomeFailed,
}

// Provider is the stub gateway.
type Provider struct {
	secret  string
	baseURL string
}

// New constructs a stub provider.
func New(secret, baseURL string) *Provider {
	return &Provider{secret: secret, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Provider) Name() string { return "stub" }

func (p *Provider) CreateOrder(_ context.Context, order model.Order) (string, error) {
	u := "/pay/stub?order=" + url.QueryEscape(order.ID) + "&amount=" + fmt.Sprint(order.Amount)
	if p.baseURL != "" {
		u = p.baseURL + u
	}
	return u, nil
}

type webhookPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // paid / failed / cancelled
}

func (p *Provider) ParseWebhook(_ context.Context, body []byte, headers http.Header) (model.PaymentNotification, error) {
	sig := headers.Get("X-Signature")
	if sig == "" || !hmac.Equal([]byte(sig), []byte(Sign(p.secret, body))) {
		return model.PaymentNotification{}, ErrBadSignature
	}

	var pl webhookPayload
	if err := json.Unmarshal(body, &pl); err != nil {
		return model.PaymentNotification{}, fmt.Errorf("decode webhook: %w", err)
	}
	if strings.TrimSpace(pl.OrderID) == "" {
		return model.PaymentNotification{}, fmt.Errorf("webhook missing order_id")
	}

	outcome, ok := terminalStatuses[strings.ToLower(strings.TrimSpace(pl.Status))]
	if !ok {
		return model.PaymentNotification{}, fmt.Errorf("%w: %q", ErrUnknownStatus, pl.Status)
	}
	return model.PaymentNotification{OrderID: pl.OrderID, Outcome: outcome}, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
