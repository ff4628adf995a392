// Package model defines the core domain types for the attendance engine.
package model

import (
	"slices"
	"strings"
	"time"
)

// Role tags an attendee's part in the event.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleStaff       Role = "staff"
	RoleOrganizer   Role = "organizer"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleParticipant, RoleStaff, RoleOrganizer:
		return true
	}
	return false
}

// ScanOutcome is the result recorded for a single credential scan.
type ScanOutcome string

const (
	ScanAllowed ScanOutcome = "allowed"
	ScanDenied  ScanOutcome = "denied"
)

// ScanEntry is one line of an attendee's admission audit trail.
type ScanEntry struct {
	ScannerID string      `json:"scanner_id"`
	At        time.Time   `json:"at"`
	Outcome   ScanOutcome `json:"outcome"`
}

// Attendee is any registered identity: participant, staff or organizer.
type Attendee struct {
	ID                   string      `json:"id"`
	Email                string      `json:"email"`
	Name                 string      `json:"name"`
	Contact              string      `json:"contact"`
	Role                 Role        `json:"role"`
	IsAdmitted           bool        `json:"is_admitted"`
	ScanCount            int         `json:"scan_count"`
	ScanHistory          []ScanEntry `json:"scan_history"`
	RegisteredActivities []string    `json:"registered_activities"`
	CreatedAt            time.Time   `json:"created_at"`
}

// FirstAdmission returns the timestamp of the allowed scan, if any.
func (a *Attendee) FirstAdmission() (time.Time, bool) {
	for _, e := range a.ScanHistory {
		if e.Outcome == ScanAllowed {
			return e.At, true
		}
	}
	return time.Time{}, false
}

// Snapshot copies the attendee's profile into a team member record.
func (a *Attendee) Snapshot() TeamMember {
	return TeamMember{Name: a.Name, Email: a.Email, Contact: a.Contact}
}

// Shape is the capacity shape of an activity.
type Shape string

const (
	ShapeSolo Shape = "solo"
	ShapeTeam Shape = "team"
)

// Activity is a schedulable offering an attendee can register for.
type Activity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Shape       Shape     `json:"shape"`
	MinTeamSize int       `json:"min_team_size"`
	MaxTeamSize int       `json:"max_team_size"`
	Fee         int64     `json:"fee"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsFree returns true when registration bypasses the payment gateway.
func (a *Activity) IsFree() bool {
	return a.Fee == 0
}

// IsTeam returns true for team-shaped activities.
func (a *Activity) IsTeam() bool {
	return a.Shape == ShapeTeam
}

// PaymentStatus tracks a registration's charge.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentOutcome is what the gateway reports for an order.
type PaymentOutcome string

const (
	OutcomeSucceeded PaymentOutcome = "succeeded"
	OutcomeFailed    PaymentOutcome = "failed"
)

// IsValid reports whether o is a known outcome.
func (o PaymentOutcome) IsValid() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// Status maps the outcome onto the status it finalizes to.
func (o PaymentOutcome) Status() PaymentStatus {
	if o == OutcomeSucceeded {
		return PaymentPaid
	}
	return PaymentFailed
}

// TeamMember is a denormalized copy of a member's profile taken when they joined.
type TeamMember struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// Registration is the unique (activity, attendee) record. When TeamName is set the
// owning attendee is the team leader and TeamMembers is the authoritative roster.
type Registration struct {
	ID            string        `json:"id"`
	ActivityID    string        `json:"activity_id"`
	AttendeeID    string        `json:"attendee_id"`
	AttendeeEmail string        `json:"attendee_email"`
	Status        PaymentStatus `json:"status"`
	AmountCharged int64         `json:"amount_charged"`
	OrderID       string        `json:"order_id,omitempty"`
	TeamName      string        `json:"team_name,omitempty"`
	TeamMembers   []TeamMember  `json:"team_members"`
	Version       int           `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsLeader reports whether this registration owns a team.
func (r *Registration) IsLeader() bool {
	return r.TeamName != ""
}

// TeamSize counts the leader plus members.
func (r *Registration) TeamSize() int {
	return 1 + len(r.TeamMembers)
}

// HasMember reports whether email is on the roster.
func (r *Registration) HasMember(email string) bool {
	return r.memberIndex(email) >= 0
}

func (r *Registration) memberIndex(email string) int {
	email = NormalizeEmail(email)
	for i, m := range r.TeamMembers {
		if m.Email == email {
			return i
		}
	}
	return -1
}

// RemoveMember drops email from the roster, returning false if it was absent.
func (r *Registration) RemoveMember(email string) bool {
	i := r.memberIndex(email)
	if i < 0 {
		return false
	}
	members := make([]TeamMember, 0, len(r.TeamMembers)-1)
	members = append(members, r.TeamMembers[:i]...)
	members = append(members, r.TeamMembers[i+1:]...)
	r.TeamMembers = members
	return true
}

// Clone returns a deep copy safe to mutate.
func (r *Registration) Clone() *Registration {
	c := *r
	c.TeamMembers = slices.Clone(r.TeamMembers)
	if c.TeamMembers == nil {
		c.TeamMembers = []TeamMember{}
	}
	return &c
}

// TeamRole describes how an attendee relates to a registration view.
type TeamRole string

const (
	TeamRoleSolo   TeamRole = "solo"
	TeamRoleLeader TeamRole = "leader"
	TeamRoleMember TeamRole = "member"
)

// Team is the read-side shape of a formed team.
type Team struct {
	Name       string       `json:"name"`
	LeaderID   string       `json:"leader_id"`
	Leader     TeamMember   `json:"leader"`
	Members    []TeamMember `json:"members"`
	Size       int          `json:"size"`
	ActivityID string       `json:"activity_id"`
}

// RegistrationView is a registration as seen by one attendee or an organizer.
type RegistrationView struct {
	Registration *Registration `json:"registration,omitempty"`
	Role         TeamRole      `json:"role"`
	IsTeam       bool          `json:"is_team"`
	Team         *Team         `json:"team,omitempty"`
}

// NormalizeEmail lower-cases and trims an email for comparisons and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
