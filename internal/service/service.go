// Package service implements the attendance engine: the Registration Ledger, the
// Team Formation Engine and the Entry Verification Gate, on top of the Ledger Store.
//
// The service is free of authorization concerns; the request layer decides who
// may call what and passes identifiers in.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/lock"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/metrics"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/repository"
)

var tracer = otel.Tracer("github.com/Shivanand-hulikatti/fest-attendance/internal/service")

// Service orchestrates every engine operation.
type Service struct {
	attendees     AttendeeStore
	activities    ActivityStore
	registrations RegistrationStore

	locker  lock.Locker
	gateway OrderCreator
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(s *Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocker replaces the in-process team lock, e.g. with a Redis locker.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithGateway sets the payment gateway used by Checkout.
func WithGateway(g OrderCreator) Option {
	return func(s *Service) {
		s.gateway = g
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service.
func New(attendees AttendeeStore, activities ActivityStore, registrations RegistrationStore, opts ...Option) *Service {
	s := &Service{
		attendees:     attendees,
		activities:    activities,
		registrations: registrations,
		locker:        lock.NewLocal(),
		logger:        slog.New(slog.DiscardHandler),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "service."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if de, ok := domainerr.As(err); ok {
			span.SetAttributes(attribute.String("error.reason", string(de.Reason)))
		}
	}
	span.End()
}

// storeErr translates an unexpected store failure. Connectivity problems become
// StoreUnavailable (retryable); anything else is internal.
func storeErr(err error, msg string) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return domainerr.Wrap(err, domainerr.StoreUnavailable, msg)
	}
	return domainerr.Wrap(err, domainerr.Internal, msg)
}

func reasonLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if de, ok := domainerr.As(err); ok {
		return string(de.Reason)
	}
	return string(domainerr.Internal)
}
