package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

func (s *engineSuite) TestCreateTeamSizeBounds() {
	activity := s.teamActivity(2, 5, 400)
	leader := s.attendee("lead@example.com")
	m1 := s.attendee("m1@example.com")
	m2 := s.attendee("m2@example.com")
	for _, a := range []*model.Attendee{leader, m1, m2} {
		s.paidRegistration(activity, a)
	}

	_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Solo Act", nil)
	s.requireReason(err, domainerr.TeamTooSmall)

	view, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Null Pointers", []string{"M1@example.com", m2.Email})
	s.Require().NoError(err)
	s.Equal(model.TeamRoleLeader, view.Role)
	s.True(view.IsTeam)
	s.Equal(3, view.Team.Size)
	s.Equal([]model.TeamMember{m1.Snapshot(), m2.Snapshot()}, view.Team.Members)
	s.Equal(leader.Snapshot(), view.Team.Leader)

	member, err := s.svc.GetRegistration(s.ctx, activity.ID, m1.ID)
	s.Require().NoError(err)
	s.Equal(model.TeamRoleMember, member.Role)
	s.Equal("Null Pointers", member.Team.Name)
	s.Equal(leader.ID, member.Team.LeaderID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TeamOperations.WithLabelValues("create", "ok")))
}

func (s *engineSuite) TestCreateTeamTooLarge() {
	activity := s.teamActivity(1, 2, 0)
	leader := s.attendee("lead@example.com")
	m1 := s.attendee("m1@example.com")
	m2 := s.attendee("m2@example.com")
	for _, a := range []*model.Attendee{leader, m1, m2} {
		s.paidRegistration(activity, a)
	}

	_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Crowd", []string{m1.Email, m2.Email})
	s.requireReason(err, domainerr.TeamTooLarge)
}

func (s *engineSuite) TestCreateTeamLeaderChecks() {
	activity := s.teamActivity(1, 4, 400)
	leader := s.attendee("lead@example.com")

	s.Run("leader must be registered", func() {
		_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "A", nil)
		s.requireReason(err, domainerr.LeaderNotPaid)
	})

	s.Run("leader must have paid", func() {
		s.pendingRegistration(activity, leader)
		_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "A", nil)
		s.requireReason(err, domainerr.LeaderNotPaid)
	})

	s.Run("one team per leader", func() {
		_, err := s.svc.ApplyPaymentOutcome(s.ctx, activity.ID, leader.ID, model.OutcomeSucceeded)
		s.Require().NoError(err)
		_, err = s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "A", nil)
		s.Require().NoError(err)
		_, err = s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "B", nil)
		s.requireReason(err, domainerr.TeamAlreadyExists)
	})

	s.Run("a member cannot lead", func() {
		member := s.attendee("member@example.com")
		s.paidRegistration(activity, member)
		_, err := s.svc.AddTeamMember(s.ctx, activity.ID, leader.ID, member.Email)
		s.Require().NoError(err)

		_, err = s.svc.CreateTeam(s.ctx, activity.ID, member.ID, "Breakaway", nil)
		s.requireReason(err, domainerr.AlreadyInOtherTeam)
	})

	s.Run("team name is required", func() {
		_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "   ", nil)
		s.requireReason(err, domainerr.InvalidInput)
	})

	s.Run("solo activities have no teams", func() {
		solo := s.freeSolo()
		s.paidRegistration(solo, leader)
		_, err := s.svc.CreateTeam(s.ctx, solo.ID, leader.ID, "A", nil)
		s.requireReason(err, domainerr.NotTeamActivity)
	})
}

// TestMemberAdmissionOrder pins which rule reports first when a candidate
// violates several at once.
func (s *engineSuite) TestMemberAdmissionOrder() {
	activity := s.teamActivity(1, 10, 400)
	leader := s.attendee("lead@example.com")
	s.paidRegistration(activity, leader)

	unregistered := s.attendee("unregistered@example.com")
	pending := s.attendee("pending@example.com")
	s.pendingRegistration(activity, pending)

	otherLeader := s.attendee("other-lead@example.com")
	s.paidRegistration(activity, otherLeader)
	taken := s.attendee("taken@example.com")
	s.paidRegistration(activity, taken)
	_, err := s.svc.CreateTeam(s.ctx, activity.ID, otherLeader.ID, "Others", []string{taken.Email})
	s.Require().NoError(err)

	ok := s.attendee("ok@example.com")
	s.paidRegistration(activity, ok)

	cases := []struct {
		name    string
		members []string
		reason  domainerr.Reason
		subject string
	}{
		{"self reference", []string{"LEAD@example.com"}, domainerr.SelfReference, leader.Email},
		{"self reference before duplicate", []string{ok.Email, leader.Email, ok.Email}, domainerr.SelfReference, leader.Email},
		{"duplicate in request", []string{ok.Email, " OK@example.com"}, domainerr.DuplicateInRequest, ok.Email},
		{"unknown reported on first occurrence", []string{"ghost@example.com", "ghost@example.com"}, domainerr.UnknownAttendee, "ghost@example.com"},
		{"unknown attendee", []string{ok.Email, "ghost@example.com"}, domainerr.UnknownAttendee, "ghost@example.com"},
		{"not registered", []string{unregistered.Email}, domainerr.NotRegistered, unregistered.Email},
		{"payment incomplete", []string{pending.Email}, domainerr.PaymentIncomplete, pending.Email},
		{"already leader", []string{otherLeader.Email}, domainerr.AlreadyLeader, otherLeader.Email},
		{"already in other team", []string{taken.Email}, domainerr.AlreadyInOtherTeam, taken.Email},
		{"first failing member wins", []string{pending.Email, unregistered.Email}, domainerr.PaymentIncomplete, pending.Email},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Ours", tc.members)
			s.requireReason(err, tc.reason)
			de, _ := domainerr.As(err)
			s.Equal(tc.subject, de.Subject)

			reg, err := s.store.Registrations.Get(s.ctx, activity.ID, leader.ID)
			s.Require().NoError(err)
			s.Empty(reg.TeamName)
			s.Empty(reg.TeamMembers)
		})
	}
}

func (s *engineSuite) TestCreateTeamIsAllOrNothing() {
	activity := s.teamActivity(1, 5, 0)
	leader := s.attendee("lead@example.com")
	s.paidRegistration(activity, leader)
	var emails []string
	for _, e := range []string{"a@example.com", "b@example.com"} {
		m := s.attendee(e)
		s.paidRegistration(activity, m)
		emails = append(emails, m.Email)
	}
	emails = append(emails, "nobody@example.com")

	_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Partial", emails)
	s.requireReason(err, domainerr.UnknownAttendee)

	reg, err := s.store.Registrations.Get(s.ctx, activity.ID, leader.ID)
	s.Require().NoError(err)
	s.Empty(reg.TeamName)
	s.Empty(reg.TeamMembers)

	// Members admitted before the failure stay free to join.
	_, err = s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Whole", emails[:2])
	s.Require().NoError(err)
}

func (s *engineSuite) TestAddMemberToAnotherTeam() {
	activity := s.teamActivity(1, 4, 400)
	l1 := s.attendee("l1@example.com")
	l2 := s.attendee("l2@example.com")
	a := s.attendee("a@example.com")
	for _, att := range []*model.Attendee{l1, l2, a} {
		s.paidRegistration(activity, att)
	}
	_, err := s.svc.CreateTeam(s.ctx, activity.ID, l1.ID, "One", nil)
	s.Require().NoError(err)
	_, err = s.svc.CreateTeam(s.ctx, activity.ID, l2.ID, "Two", nil)
	s.Require().NoError(err)

	_, err = s.svc.AddTeamMember(s.ctx, activity.ID, l1.ID, a.Email)
	s.Require().NoError(err)

	_, err = s.svc.AddTeamMember(s.ctx, activity.ID, l2.ID, a.Email)
	s.requireReason(err, domainerr.AlreadyInOtherTeam)

	_, err = s.svc.AddTeamMember(s.ctx, activity.ID, l1.ID, a.Email)
	s.requireReason(err, domainerr.DuplicateInRequest)

	_, err = s.svc.AddTeamMember(s.ctx, activity.ID, l1.ID, l2.Email)
	s.requireReason(err, domainerr.AlreadyLeader)
}

func (s *engineSuite) TestAddMemberLimits() {
	activity := s.teamActivity(1, 2, 0)
	leader := s.attendee("lead@example.com")
	m1 := s.attendee("m1@example.com")
	m2 := s.attendee("m2@example.com")
	for _, a := range []*model.Attendee{leader, m1, m2} {
		s.paidRegistration(activity, a)
	}

	_, err := s.svc.AddTeamMember(s.ctx, activity.ID, leader.ID, m1.Email)
	s.requireReason(err, domainerr.NoTeamYet)

	_, err = s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Duo", nil)
	s.Require().NoError(err)
	view, err := s.svc.AddTeamMember(s.ctx, activity.ID, leader.ID, m1.Email)
	s.Require().NoError(err)
	s.Equal(2, view.Team.Size)

	_, err = s.svc.AddTeamMember(s.ctx, activity.ID, leader.ID, m2.Email)
	s.requireReason(err, domainerr.TeamFull)
}

func (s *engineSuite) TestRemoveMember() {
	activity := s.teamActivity(3, 4, 0)
	leader := s.attendee("lead@example.com")
	m1 := s.attendee("m1@example.com")
	m2 := s.attendee("m2@example.com")
	for _, a := range []*model.Attendee{leader, m1, m2} {
		s.paidRegistration(activity, a)
	}
	_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Trio", []string{m1.Email, m2.Email})
	s.Require().NoError(err)

	view, err := s.svc.RemoveTeamMember(s.ctx, activity.ID, leader.ID, "M1@Example.com")
	s.Require().NoError(err)
	s.Equal(2, view.Team.Size, "removal may drop below the minimum")
	s.Equal([]model.TeamMember{m2.Snapshot()}, view.Team.Members)

	_, err = s.svc.RemoveTeamMember(s.ctx, activity.ID, leader.ID, m1.Email)
	s.requireReason(err, domainerr.NotAMember)

	solo, err := s.svc.GetRegistration(s.ctx, activity.ID, m1.ID)
	s.Require().NoError(err)
	s.Equal(model.TeamRoleSolo, solo.Role)

	// A removed member may join another team.
	other := s.attendee("other@example.com")
	s.paidRegistration(activity, other)
	_, err = s.svc.CreateTeam(s.ctx, activity.ID, other.ID, "Next", []string{m1.Email, "m2@example.com"})
	s.requireReason(err, domainerr.AlreadyInOtherTeam)
	_, err = s.svc.CreateTeam(s.ctx, activity.ID, other.ID, "Next", []string{m1.Email})
	s.requireReason(err, domainerr.TeamTooSmall)

	_, err = s.svc.RemoveTeamMember(s.ctx, activity.ID, m2.ID, leader.Email)
	s.requireReason(err, domainerr.NoTeamYet)
}

func (s *engineSuite) TestConcurrentAddsRespectMaxSize() {
	activity := s.teamActivity(1, 3, 0)
	leader := s.attendee("lead@example.com")
	s.paidRegistration(activity, leader)
	_, err := s.svc.CreateTeam(s.ctx, activity.ID, leader.ID, "Race", nil)
	s.Require().NoError(err)

	const n = 8
	emails := make([]string, n)
	for i := range n {
		m := s.attendee(string(rune('a'+i)) + "@example.com")
		s.paidRegistration(activity, m)
		emails[i] = m.Email
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.AddTeamMember(s.ctx, activity.ID, leader.ID, emails[i])
		}()
	}
	wg.Wait()

	added := 0
	for _, err := range errs {
		if err == nil {
			added++
			continue
		}
		s.True(domainerr.HasReason(err, domainerr.TeamFull), "unexpected error: %v", err)
	}
	s.Equal(2, added)

	reg, err := s.store.Registrations.Get(s.ctx, activity.ID, leader.ID)
	s.Require().NoError(err)
	s.Len(reg.TeamMembers, 2)
}

// TestConcurrentTeamsNeverShareMembers races many leaders for the same pool of
// members and checks that no email ends up bound twice.
func (s *engineSuite) TestConcurrentTeamsNeverShareMembers() {
	activity := s.teamActivity(1, 4, 0)

	const leaders = 6
	pool := make([]string, 3)
	for i := range pool {
		m := s.attendee(string(rune('p'+i)) + "@example.com")
		s.paidRegistration(activity, m)
		pool[i] = m.Email
	}
	ids := make([]string, leaders)
	emails := make([]string, leaders)
	for i := range leaders {
		l := s.attendee(string(rune('l'+i)) + "-lead@example.com")
		s.paidRegistration(activity, l)
		ids[i], emails[i] = l.ID, l.Email
	}

	var wg sync.WaitGroup
	for i := range leaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every leader also tries to recruit the next leader, exercising the
			// leader-as-member rule under contention.
			members := append([]string{pool[i%len(pool)]}, emails[(i+1)%leaders])
			_, err := s.svc.CreateTeam(s.ctx, activity.ID, ids[i], "T", members)
			if err != nil {
				s.True(domainerr.KindOf(err) == domainerr.KindConflict,
					"unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	regs, err := s.store.Registrations.ListByActivity(s.ctx, activity.ID)
	s.Require().NoError(err)
	bound := map[string]string{}
	for _, reg := range regs {
		if !reg.IsLeader() {
			continue
		}
		for _, email := range append([]string{reg.AttendeeEmail}, memberEmails(reg)...) {
			prev, dup := bound[email]
			s.False(dup, "%s bound by %s and %s", email, prev, reg.AttendeeID)
			bound[email] = reg.AttendeeID
		}
	}
}

func memberEmails(reg *model.Registration) []string {
	out := make([]string, len(reg.TeamMembers))
	for i, m := range reg.TeamMembers {
		out[i] = m.Email
	}
	return out
}
