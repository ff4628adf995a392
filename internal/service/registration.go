package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/repository"
)

// CreateRegistration registers an attendee for a free activity. The registration
// is created already paid; paid activities go through Checkout instead.
func (s *Service) CreateRegistration(ctx context.Context, activityID, attendeeID string) (reg *model.Registration, err error) {
	ctx, span := s.startSpan(ctx, "CreateRegistration",
		attribute.String("activity.id", activityID), attribute.String("attendee.id", attendeeID))
	defer func() { endSpan(span, err) }()

	activity, attendee, err := s.registrationTargets(ctx, activityID, attendeeID)
	if err != nil {
		return nil, err
	}
	if existing, err := s.registrations.Get(ctx, activityID, attendeeID); err == nil {
		return nil, alreadyRegistered(existing)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err, "get registration")
	}
	if !activity.Active {
		return nil, domainerr.For(domainerr.ActivityUnavailable, activityID, "activity is not open for registration")
	}
	if !activity.IsFree() {
		return nil, domainerr.For(domainerr.PaymentRequired, activityID, "activity has a fee; use checkout")
	}

	now := s.now()
	reg = &model.Registration{
		ActivityID:    activityID,
		AttendeeID:    attendeeID,
		AttendeeEmail: attendee.Email,
		Status:        model.PaymentPaid,
		AmountCharged: 0,
		TeamMembers:   []model.TeamMember{},
		CreatedAt:     now,
	}
	// The store's unique key decides races; the Get above only shortens the common path.
	if err := s.registrations.Create(ctx, reg); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domainerr.For(domainerr.AlreadyRegistered, attendeeID, "already registered for this activity")
		}
		return nil, storeErr(err, "create registration")
	}

	s.metrics.IncRegistration("free")
	s.logger.InfoContext(ctx, "registration created",
		"activity_id", activityID, "attendee_id", attendeeID, "status", reg.Status)
	return reg, nil
}

// Checkout opens (or resumes) the payment flow for a paid activity. It creates the
// pending registration carrying a fresh order id before asking the gateway for a
// pay URL. A failed registration is re-armed under a new order; a pending one is
// handed back with its existing order.
func (s *Service) Checkout(ctx context.Context, activityID, attendeeID string) (res *model.CheckoutResult, err error) {
	ctx, span := s.startSpan(ctx, "Checkout",
		attribute.String("activity.id", activityID), attribute.String("attendee.id", attendeeID))
	defer func() { endSpan(span, err) }()

	activity, attendee, err := s.registrationTargets(ctx, activityID, attendeeID)
	if err != nil {
		return nil, err
	}
	if activity.IsFree() {
		return nil, domainerr.For(domainerr.InvalidInput, activityID, "activity is free; register directly")
	}
	if s.gateway == nil {
		return nil, domainerr.New(domainerr.Internal, "no payment gateway configured")
	}

	reg, err := s.pendingRegistration(ctx, activity, attendee)
	if err != nil {
		return nil, err
	}

	payURL, err := s.gateway.CreateOrder(ctx, model.Order{
		ID:         reg.OrderID,
		ActivityID: activityID,
		AttendeeID: attendeeID,
		Amount:     reg.AmountCharged,
	})
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.StoreUnavailable, "payment gateway rejected order")
	}
	s.logger.InfoContext(ctx, "checkout started",
		"activity_id", activityID, "attendee_id", attendeeID, "order_id", reg.OrderID, "amount", reg.AmountCharged)
	return &model.CheckoutResult{Registration: reg, OrderID: reg.OrderID, PayURL: payURL}, nil
}

func (s *Service) pendingRegistration(ctx context.Context, activity *model.Activity, attendee *model.Attendee) (*model.Registration, error) {
	// Two attempts: a lost insert race is resolved by re-reading the winner.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.registrations.Get(ctx, activity.ID, attendee.ID)
		switch {
		case err == nil:
			switch existing.Status {
			case model.PaymentPaid:
				return nil, alreadyRegistered(existing)
			case model.PaymentPending:
				return existing, nil
			}
			if !activity.Active {
				return nil, domainerr.For(domainerr.ActivityUnavailable, activity.ID, "activity is not open for registration")
			}
			reg, err := s.registrations.Rearm(ctx, activity.ID, attendee.ID, uuid.NewString(), activity.Fee, s.now())
			if errors.Is(err, repository.ErrFinalized) {
				continue
			}
			if err != nil {
				return nil, storeErr(err, "rearm registration")
			}
			return reg, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, storeErr(err, "get registration")
		}

		if !activity.Active {
			return nil, domainerr.For(domainerr.ActivityUnavailable, activity.ID, "activity is not open for registration")
		}
		reg := &model.Registration{
			ActivityID:    activity.ID,
			AttendeeID:    attendee.ID,
			AttendeeEmail: attendee.Email,
			Status:        model.PaymentPending,
			AmountCharged: activity.Fee,
			OrderID:       uuid.NewString(),
			TeamMembers:   []model.TeamMember{},
			CreatedAt:     s.now(),
		}
		err = s.registrations.Create(ctx, reg)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, storeErr(err, "create registration")
		}
		s.metrics.IncRegistration("checkout")
		return reg, nil
	}
	return nil, domainerr.For(domainerr.ConcurrentModification, attendee.ID, "registration changed concurrently; retry")
}

// ApplyPaymentOutcome finalizes a pending registration exactly once. Redelivery of
// any outcome after finalization returns AlreadyFinalized and changes nothing.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, activityID, attendeeID string, outcome model.PaymentOutcome) (reg *model.Registration, err error) {
	ctx, span := s.startSpan(ctx, "ApplyPaymentOutcome",
		attribute.String("activity.id", activityID), attribute.String("attendee.id", attendeeID),
		attribute.String("payment.outcome", string(outcome)))
	defer func() {
		if err != nil {
			s.metrics.IncPayment(reasonLabel(err))
		}
		endSpan(span, err)
	}()

	if !outcome.IsValid() {
		return nil, domainerr.For(domainerr.InvalidInput, string(outcome), "outcome must be succeeded or failed")
	}
	if strings.TrimSpace(activityID) == "" || strings.TrimSpace(attendeeID) == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "activity id and attendee id are required")
	}

	reg, err = s.registrations.Finalize(ctx, activityID, attendeeID, outcome.Status(), s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, domainerr.For(domainerr.NotRegistered, attendeeID, "no registration for this activity")
	case errors.Is(err, repository.ErrFinalized):
		s.logger.InfoContext(ctx, "duplicate payment outcome ignored",
			"activity_id", activityID, "attendee_id", attendeeID, "status", reg.Status, "outcome", outcome)
		return nil, domainerr.For(domainerr.AlreadyFinalized, attendeeID, "payment already "+string(reg.Status))
	case err != nil:
		return nil, storeErr(err, "finalize payment")
	}

	s.metrics.IncPayment(string(reg.Status))
	s.logger.InfoContext(ctx, "payment finalized",
		"activity_id", activityID, "attendee_id", attendeeID, "status", reg.Status, "order_id", reg.OrderID)
	return reg, nil
}

// ApplyPaymentOutcomeByOrder resolves a gateway order id and applies its outcome.
// Orders superseded by a re-armed checkout no longer resolve.
func (s *Service) ApplyPaymentOutcomeByOrder(ctx context.Context, orderID string, outcome model.PaymentOutcome) (*model.Registration, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "order id is required")
	}
	reg, err := s.registrations.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerr.For(domainerr.UnknownOrder, orderID, "order not found")
		}
		return nil, storeErr(err, "get registration by order")
	}
	return s.ApplyPaymentOutcome(ctx, reg.ActivityID, reg.AttendeeID, outcome)
}

// GetRegistration returns the attendee's registration for an activity, including
// the team they lead or belong to.
func (s *Service) GetRegistration(ctx context.Context, activityID, attendeeID string) (*model.RegistrationView, error) {
	attendee, err := s.loadAttendee(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registrations.Get(ctx, activityID, attendeeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerr.For(domainerr.NotRegistered, attendeeID, "no registration for this activity")
		}
		return nil, storeErr(err, "get registration")
	}
	if reg.IsLeader() {
		return leaderView(reg, attendee), nil
	}

	team, err := s.registrations.FindTeamBinding(ctx, activityID, attendee.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return soloView(reg), nil
	case err != nil:
		return nil, storeErr(err, "find team")
	}
	leader, err := s.attendees.GetByID(ctx, team.AttendeeID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err, "get team leader")
	}
	return memberView(reg, buildTeam(team, leader)), nil
}

// ListRegistrationsForAttendee returns every registration the attendee owns, each
// annotated with the team they lead or belong to.
func (s *Service) ListRegistrationsForAttendee(ctx context.Context, attendeeID string) ([]model.RegistrationView, error) {
	attendee, err := s.loadAttendee(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	regs, err := s.registrations.ListByAttendee(ctx, attendeeID)
	if err != nil {
		return nil, storeErr(err, "list registrations")
	}
	teams, err := s.registrations.ListTeamsWithMember(ctx, attendee.Email)
	if err != nil {
		return nil, storeErr(err, "list teams")
	}
	byActivity := make(map[string]*model.Registration, len(teams))
	for _, t := range teams {
		byActivity[t.ActivityID] = t
	}

	leaders := newAttendeeCache(s.attendees)
	views := make([]model.RegistrationView, 0, len(regs))
	for _, reg := range regs {
		switch team, member := byActivity[reg.ActivityID]; {
		case reg.IsLeader():
			views = append(views, *leaderView(reg, attendee))
		case member:
			leader, err := leaders.get(ctx, team.AttendeeID)
			if err != nil {
				return nil, err
			}
			views = append(views, *memberView(reg, buildTeam(team, leader)))
		default:
			views = append(views, *soloView(reg))
		}
	}
	return views, nil
}

// ListRegistrationsForActivity is the organizer view of an activity.
func (s *Service) ListRegistrationsForActivity(ctx context.Context, activityID string) ([]model.RegistrationView, error) {
	if _, err := s.loadActivity(ctx, activityID); err != nil {
		return nil, err
	}
	regs, err := s.registrations.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, storeErr(err, "list registrations")
	}

	leaders := newAttendeeCache(s.attendees)
	teams := make(map[string]*model.Team)
	memberOf := make(map[string]*model.Team)
	for _, reg := range regs {
		if !reg.IsLeader() {
			continue
		}
		leader, err := leaders.get(ctx, reg.AttendeeID)
		if err != nil {
			return nil, err
		}
		team := buildTeam(reg, leader)
		teams[reg.ID] = team
		for _, m := range reg.TeamMembers {
			memberOf[m.Email] = team
		}
	}

	views := make([]model.RegistrationView, 0, len(regs))
	for _, reg := range regs {
		switch {
		case reg.IsLeader():
			views = append(views, model.RegistrationView{
				Registration: reg, Role: model.TeamRoleLeader, IsTeam: true, Team: teams[reg.ID],
			})
		case memberOf[reg.AttendeeEmail] != nil:
			views = append(views, *memberView(reg, memberOf[reg.AttendeeEmail]))
		default:
			views = append(views, *soloView(reg))
		}
	}
	return views, nil
}

func (s *Service) registrationTargets(ctx context.Context, activityID, attendeeID string) (*model.Activity, *model.Attendee, error) {
	if strings.TrimSpace(activityID) == "" || strings.TrimSpace(attendeeID) == "" {
		return nil, nil, domainerr.New(domainerr.InvalidInput, "activity id and attendee id are required")
	}
	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, nil, err
	}
	attendee, err := s.loadAttendee(ctx, attendeeID)
	if err != nil {
		return nil, nil, err
	}
	return activity, attendee, nil
}

func alreadyRegistered(reg *model.Registration) error {
	return domainerr.For(domainerr.AlreadyRegistered, reg.AttendeeID, "already registered for this activity")
}

func soloView(reg *model.Registration) *model.RegistrationView {
	return &model.RegistrationView{Registration: reg, Role: model.TeamRoleSolo}
}

func leaderView(reg *model.Registration, leader *model.Attendee) *model.RegistrationView {
	return &model.RegistrationView{
		Registration: reg,
		Role:         model.TeamRoleLeader,
		IsTeam:       true,
		Team:         buildTeam(reg, leader),
	}
}

func memberView(reg *model.Registration, team *model.Team) *model.RegistrationView {
	return &model.RegistrationView{Registration: reg, Role: model.TeamRoleMember, IsTeam: true, Team: team}
}

// buildTeam renders a leader registration as a team. leader may be nil if the
// profile could not be loaded; the registration's email still identifies them.
func buildTeam(reg *model.Registration, leader *model.Attendee) *model.Team {
	t := &model.Team{
		Name:       reg.TeamName,
		LeaderID:   reg.AttendeeID,
		Leader:     model.TeamMember{Email: reg.AttendeeEmail},
		Members:    reg.TeamMembers,
		Size:       reg.TeamSize(),
		ActivityID: reg.ActivityID,
	}
	if leader != nil {
		t.Leader = leader.Snapshot()
	}
	return t
}

type attendeeCache struct {
	store AttendeeStore
	seen  map[string]*model.Attendee
}

func newAttendeeCache(store AttendeeStore) *attendeeCache {
	return &attendeeCache{store: store, seen: make(map[string]*model.Attendee)}
}

func (c *attendeeCache) get(ctx context.Context, id string) (*model.Attendee, error) {
	if a, ok := c.seen[id]; ok {
		return a, nil
	}
	a, err := c.store.GetByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err, "get attendee")
	}
	c.seen[id] = a
	return a, nil
}
