package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// AttendeeStore is the Attendee Directory's persistence contract.
type AttendeeStore interface {
	Create(ctx context.Context, a *model.Attendee) error
	GetByID(ctx context.Context, id string) (*model.Attendee, error)
	GetByEmail(ctx context.Context, email string) (*model.Attendee, error)
	// RecordScan flips the admission latch if unset and appends the scan, atomically.
	RecordScan(ctx context.Context, attendeeID, scannerID string, at time.Time) (*model.Attendee, model.ScanOutcome, error)
}

// ActivityStore is the Activity Catalog's persistence contract.
type ActivityStore interface {
	Create(ctx context.Context, a *model.Activity) error
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	List(ctx context.Context) ([]model.Activity, error)
	SetActive(ctx context.Context, id string, active bool) (*model.Activity, error)
}

// RegistrationStore is the Registration Ledger's persistence contract.
type RegistrationStore interface {
	// Create returns repository.ErrConflict when (activity, attendee) already exists.
	Create(ctx context.Context, reg *model.Registration) error
	Get(ctx context.Context, activityID, attendeeID string) (*model.Registration, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Registration, error)
	ListByActivity(ctx context.Context, activityID string) ([]*model.Registration, error)
	ListByAttendee(ctx context.Context, attendeeID string) ([]*model.Registration, error)
	ListTeamsWithMember(ctx context.Context, email string) ([]*model.Registration, error)
	FindTeamBinding(ctx context.Context, activityID, email string) (*model.Registration, error)
	// Finalize returns repository.ErrFinalized when the status is no longer pending.
	Finalize(ctx context.Context, activityID, attendeeID string, status model.PaymentStatus, at time.Time) (*model.Registration, error)
	Rearm(ctx context.Context, activityID, attendeeID, orderID string, amount int64, at time.Time) (*model.Registration, error)
	// SaveTeam is version-guarded and re-checks added emails against other teams.
	SaveTeam(ctx context.Context, reg *model.Registration, added []string) error
}

// OrderCreator is the slice of the payment gateway checkout needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, order model.Order) (string, error)
}
