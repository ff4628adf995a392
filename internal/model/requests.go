package model

import "time"

// CreateAttendeeRequest is the payload for signing up an attendee.
type CreateAttendeeRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Role    Role   `json:"role"`
}

// CreateActivityRequest is the payload for adding an activity to the catalog.
type CreateActivityRequest struct {
	Name        string `json:"name"`
	Shape       Shape  `json:"shape"`
	MinTeamSize int    `json:"min_team_size"`
	MaxTeamSize int    `json:"max_team_size"`
	Fee         int64  `json:"fee"`
}

// SetActiveRequest toggles an activity's availability.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// RegisterRequest is the payload for registering for an activity.
type RegisterRequest struct {
	AttendeeID string `json:"attendee_id"`
}

// PaymentOutcomeRequest reports a gateway result for (activity, attendee).
type PaymentOutcomeRequest struct {
	AttendeeID string         `json:"attendee_id"`
	Outcome    PaymentOutcome `json:"outcome"`
}

// CreateTeamRequest names the team and lists members by email.
type CreateTeamRequest struct {
	LeaderID string   `json:"leader_id"`
	TeamName string   `json:"team_name"`
	Members  []string `json:"members"`
}

// TeamMemberRequest adds a member to an existing team.
type TeamMemberRequest struct {
	LeaderID string `json:"leader_id"`
	Email    string `json:"email"`
}

// ScanRequest identifies the attendee at the gate, either by credential or raw id.
type ScanRequest struct {
	Credential string `json:"credential,omitempty"`
	AttendeeID string `json:"attendee_id,omitempty"`
}

// CheckoutResult is returned when a paid registration is handed to the gateway.
type CheckoutResult struct {
	Registration *Registration `json:"registration"`
	OrderID      string        `json:"order_id"`
	PayURL       string        `json:"pay_url"`
}

// EntryDecision is Allowed or Denied; both are successful scan outcomes.
type EntryDecision string

const (
	EntryAllowed EntryDecision = "allowed"
	EntryDenied  EntryDecision = "denied"
)

// EntryResult is what staff see after a scan.
type EntryResult struct {
	Decision     EntryDecision `json:"decision"`
	Attendee     *Attendee     `json:"attendee,omitempty"`
	ScanCount    int           `json:"scan_count"`
	FirstAllowed time.Time     `json:"first_allowed_at"`
	ScannedAt    time.Time     `json:"scanned_at"`
}

// CredentialResponse carries the token rendered into an attendee's QR code.
type CredentialResponse struct {
	AttendeeID string    `json:"attendee_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

// Order is what the engine hands the payment gateway for a pending registration.
type Order struct {
	ID         string `json:"id"`
	ActivityID string `json:"activity_id"`
	AttendeeID string `json:"attendee_id"`
	Amount     int64  `json:"amount"`
}

// PaymentNotification is a decoded gateway callback.
type PaymentNotification struct {
	OrderID string         `json:"order_id"`
	Outcome PaymentOutcome `json:"outcome"`
}
