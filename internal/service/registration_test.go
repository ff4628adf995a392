package service

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/payment/mocks"
)

func (s *engineSuite) TestFreeRegistration() {
	activity := s.freeSolo()
	a := s.attendee("asha@example.com")

	reg, err := s.svc.CreateRegistration(s.ctx, activity.ID, a.ID)
	s.Require().NoError(err)
	s.Equal(model.PaymentPaid, reg.Status)
	s.Zero(reg.AmountCharged)
	s.Empty(reg.TeamName)

	_, err = s.svc.CreateRegistration(s.ctx, activity.ID, a.ID)
	s.requireReason(err, domainerr.AlreadyRegistered)

	got, err := s.svc.GetAttendee(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]string{activity.ID}, got.RegisteredActivities)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RegistrationsCreated.WithLabelValues("free")))
}

func (s *engineSuite) TestCreateRegistrationRejections() {
	a := s.attendee("asha@example.com")
	paid := s.teamActivity(1, 3, 250)
	closed := s.freeSolo()
	_, err := s.svc.SetActivityActive(s.ctx, closed.ID, false)
	s.Require().NoError(err)

	_, err = s.svc.CreateRegistration(s.ctx, paid.ID, a.ID)
	s.requireReason(err, domainerr.PaymentRequired)

	_, err = s.svc.CreateRegistration(s.ctx, closed.ID, a.ID)
	s.requireReason(err, domainerr.ActivityUnavailable)

	_, err = s.svc.CreateRegistration(s.ctx, "missing", a.ID)
	s.requireReason(err, domainerr.ActivityUnavailable)

	_, err = s.svc.CreateRegistration(s.ctx, closed.ID, "missing")
	s.requireReason(err, domainerr.UnknownAttendee)

	_, err = s.svc.CreateRegistration(s.ctx, "", a.ID)
	s.requireReason(err, domainerr.InvalidInput)
}

func (s *engineSuite) TestConcurrentRegistrationIsUnique() {
	activity := s.freeSolo()
	a := s.attendee("asha@example.com")

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.CreateRegistration(s.ctx, activity.ID, a.ID)
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domainerr.HasReason(err, domainerr.AlreadyRegistered):
			dup++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(n-1, dup)

	regs, err := s.svc.ListRegistrationsForActivity(s.ctx, activity.ID)
	s.Require().NoError(err)
	s.Len(regs, 1)
}

func (s *engineSuite) TestApplyPaymentOutcomeIsIdempotent() {
	activity := s.teamActivity(1, 3, 300)
	a := s.attendee("asha@example.com")
	s.pendingRegistration(activity, a)

	reg, err := s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, a.ID, model.OutcomeSucceeded)
	s.Require().NoError(err)
	s.Equal(model.PaymentPaid, reg.Status)

	_, err = s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, a.ID, model.OutcomeSucceeded)
	s.requireReason(err, domainerr.AlreadyFinalized)

	_, err = s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, a.ID, model.OutcomeFailed)
	s.requireReason(err, domainerr.AlreadyFinalized)

	view, err := s.svc.GetRegistration(s.ctx, activity.ID, a.ID)
	s.Require().NoError(err)
	s.Equal(model.PaymentPaid, view.Registration.Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PaymentOutcomes.WithLabelValues("paid")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.PaymentOutcomes.WithLabelValues(string(domainerr.AlreadyFinalized))))
}

func (s *engineSuite) TestConcurrentPaymentOutcomesApplyOnce() {
	activity := s.teamActivity(1, 3, 300)
	a := s.attendee("asha@example.com")
	s.pendingRegistration(activity, a)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, a.ID, model.OutcomeSucceeded)
		}()
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
			continue
		}
		s.True(domainerr.HasReason(err, domainerr.AlreadyFinalized), "unexpected error: %v", err)
	}
	s.Equal(1, applied)
}

func (s *engineSuite) TestApplyPaymentOutcomeRejections() {
	activity := s.teamActivity(1, 3, 300)
	a := s.attendee("asha@example.com")

	_, err := s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, a.ID, model.OutcomeSucceeded)
	s.requireReason(err, domainerr.NotRegistered)

	_, err = s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, a.ID, "refunded")
	s.requireReason(err, domainerr.InvalidInput)

	_, err = s.svc.ApplyPaymentOutcomeByOrder(s.ctx, "no-such-order", model.OutcomeSucceeded)
	s.requireReason(err, domainerr.UnknownOrder)
}

func (s *engineSuite) TestCheckoutFlow() {
	ctrl := gomock.NewController(s.T())
	gateway := mocks.NewMockGateway(ctrl)
	svc := New(s.store.Attendees, s.store.Activities, s.store.Registrations,
		WithGateway(gateway), WithClock(s.clock.Now))

	activity := s.teamActivity(1, 4, 499)
	a := s.attendee("asha@example.com")

	var firstOrder string
	gateway.EXPECT().
		CreateOrder(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, order model.Order) (string, error) {
			s.Equal(activity.ID, order.ActivityID)
			s.Equal(a.ID, order.AttendeeID)
			s.Equal(int64(499), order.Amount)
			firstOrder = order.ID
			return "https://pay.example/" + order.ID, nil
		}).Times(2)

	res, err := svc.Checkout(s.ctx, activity.ID, a.ID)
	s.Require().NoError(err)
	s.Equal(model.PaymentPending, res.Registration.Status)
	s.Equal(firstOrder, res.OrderID)
	s.Equal("https://pay.example/"+firstOrder, res.PayURL)

	s.Run("pending checkout resumes the same order", func() {
		again, err := svc.Checkout(s.ctx, activity.ID, a.ID)
		s.Require().NoError(err)
		s.Equal(res.OrderID, again.OrderID)
	})

	s.Run("webhook outcome resolves by order", func() {
		reg, err := svc.ApplyPaymentOutcomeByOrder(s.ctx, res.OrderID, model.OutcomeSucceeded)
		s.Require().NoError(err)
		s.Equal(model.PaymentPaid, reg.Status)
	})

	s.Run("paid registration cannot check out again", func() {
		_, err := svc.Checkout(s.ctx, activity.ID, a.ID)
		s.requireReason(err, domainerr.AlreadyRegistered)
	})
}

func (s *engineSuite) TestCheckoutRearmsFailedPayment() {
	ctrl := gomock.NewController(s.T())
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return("https://pay.example/x", nil).Times(2)
	svc := New(s.store.Attendees, s.store.Activities, s.store.Registrations, WithGateway(gateway))

	activity := s.teamActivity(1, 4, 499)
	a := s.attendee("asha@example.com")

	first, err := svc.Checkout(s.ctx, activity.ID, a.ID)
	s.Require().NoError(err)
	_, err = svc.ApplyPaymentOutcomeByOrder(s.ctx, first.OrderID, model.OutcomeFailed)
	s.Require().NoError(err)

	second, err := svc.Checkout(s.ctx, activity.ID, a.ID)
	s.Require().NoError(err)
	s.NotEqual(first.OrderID, second.OrderID)
	s.Equal(model.PaymentPending, second.Registration.Status)

	_, err = svc.ApplyPaymentOutcomeByOrder(s.ctx, first.OrderID, model.OutcomeSucceeded)
	s.requireReason(err, domainerr.UnknownOrder)

	reg, err := svc.ApplyPaymentOutcomeByOrder(s.ctx, second.OrderID, model.OutcomeSucceeded)
	s.Require().NoError(err)
	s.Equal(model.PaymentPaid, reg.Status)
}

func (s *engineSuite) TestCheckoutRejections() {
	ctrl := gomock.NewController(s.T())
	gateway := mocks.NewMockGateway(ctrl)
	svc := New(s.store.Attendees, s.store.Activities, s.store.Registrations, WithGateway(gateway))

	a := s.attendee("asha@example.com")
	free := s.freeSolo()
	_, err := svc.Checkout(s.ctx, free.ID, a.ID)
	s.requireReason(err, domainerr.InvalidInput)

	paid := s.teamActivity(1, 2, 100)
	gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return("", errors.New("gateway down"))
	_, err = svc.Checkout(s.ctx, paid.ID, a.ID)
	s.requireReason(err, domainerr.StoreUnavailable)

	noGateway := New(s.store.Attendees, s.store.Activities, s.store.Registrations)
	_, err = noGateway.Checkout(s.ctx, paid.ID, a.ID)
	s.requireReason(err, domainerr.Internal)
}

func (s *engineSuite) TestListRegistrationsForAttendee() {
	solo := s.freeSolo()
	hack := s.teamActivity(2, 3, 0)
	leader := s.attendee("lead@example.com")
	member := s.attendee("member@example.com")

	s.paidRegistration(solo, member)
	s.paidRegistration(hack, leader)
	s.paidRegistration(hack, member)
	_, err := s.svc.CreateTeam(s.ctx, hack.ID, leader.ID, "Byte Club", []string{member.Email})
	s.Require().NoError(err)

	views, err := s.svc.ListRegistrationsForAttendee(s.ctx, member.ID)
	s.Require().NoError(err)
	s.Require().Len(views, 2)

	byActivity := map[string]model.RegistrationView{}
	for _, v := range views {
		byActivity[v.Registration.ActivityID] = v
	}
	s.Equal(model.TeamRoleSolo, byActivity[solo.ID].Role)
	s.False(byActivity[solo.ID].IsTeam)

	teamView := byActivity[hack.ID]
	s.Equal(model.TeamRoleMember, teamView.Role)
	s.Require().NotNil(teamView.Team)
	s.Equal("Byte Club", teamView.Team.Name)
	s.Equal(leader.Email, teamView.Team.Leader.Email)
	s.Equal(2, teamView.Team.Size)

	leaderViews, err := s.svc.ListRegistrationsForAttendee(s.ctx, leader.ID)
	s.Require().NoError(err)
	s.Require().Len(leaderViews, 1)
	s.Equal(model.TeamRoleLeader, leaderViews[0].Role)
}

func (s *engineSuite) TestListRegistrationsForActivity() {
	hack := s.teamActivity(1, 3, 0)
	leader := s.attendee("lead@example.com")
	member := s.attendee("member@example.com")
	loner := s.attendee("loner@example.com")
	for _, a := range []*model.Attendee{leader, member, loner} {
		s.paidRegistration(hack, a)
	}
	_, err := s.svc.CreateTeam(s.ctx, hack.ID, leader.ID, "Pair", []string{member.Email})
	s.Require().NoError(err)

	views, err := s.svc.ListRegistrationsForActivity(s.ctx, hack.ID)
	s.Require().NoError(err)
	s.Require().Len(views, 3)

	roles := map[string]model.TeamRole{}
	for _, v := range views {
		roles[v.Registration.AttendeeEmail] = v.Role
	}
	s.Equal(model.TeamRoleLeader, roles[leader.Email])
	s.Equal(model.TeamRoleMember, roles[member.Email])
	s.Equal(model.TeamRoleSolo, roles[loner.Email])

	_, err = s.svc.ListRegistrationsForActivity(s.ctx, "missing")
	s.requireReason(err, domainerr.ActivityUnavailable)
}
