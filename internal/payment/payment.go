// Package payment is the engine's port to the external payment gateway.
package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/config"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/payment/stub"
)

//go:generate mockgen -source=payment.go -destination=mocks/mocks.go -package=mocks Gateway

// ErrBadSignature is returned when a webhook fails provider verification.
var ErrBadSignature = stub.ErrBadSignature

// Gateway creates payment orders and decodes the provider's notifications.
type Gateway interface {
	Name() string

	// CreateOrder returns the URL the attendee is redirected to for paying.
	CreateOrder(ctx context.Context, order model.Order) (payURL string, err error)

	// ParseWebhook verifies and decodes a provider callback.
	ParseWebhook(ctx context.Context, body []byte, headers http.Header) (model.PaymentNotification, error)
}

// NewGateway selects the provider named in cfg.
func NewGateway(cfg config.Payment) (Gateway, error) {
	switch cfg.Provider {
	case "stub":
		return stub.New(cfg.WebhookSecret, cfg.BasePublicURL), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.Provider)
	}
}
