package service

import (
	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

func (s *engineSuite) TestCreateAttendee() {
	s.Run("normalizes email and defaults role", func() {
		a, err := s.svc.CreateAttendee(s.ctx, model.CreateAttendeeRequest{Email: "  Asha@Example.COM ", Name: " Asha "})
		s.Require().NoError(err)
		s.Equal("asha@example.com", a.Email)
		s.Equal("Asha", a.Name)
		s.Equal(model.RoleParticipant, a.Role)
		s.NotEmpty(a.ID)
		s.False(a.IsAdmitted)
		s.Empty(a.ScanHistory)
	})

	s.Run("email is unique case-insensitively", func() {
		_, err := s.svc.CreateAttendee(s.ctx, model.CreateAttendeeRequest{Email: "ASHA@example.com", Name: "Other"})
		s.requireReason(err, domainerr.EmailTaken)
	})

	s.Run("rejects bad input", func() {
		cases := []model.CreateAttendeeRequest{
			{Email: "", Name: "x"},
			{Email: "not-an-email", Name: "x"},
			{Email: "x@example.com", Name: "  "},
			{Email: "y@example.com", Name: "y", Role: "admin"},
		}
		for _, req := range cases {
			_, err := s.svc.CreateAttendee(s.ctx, req)
			s.requireReason(err, domainerr.InvalidInput)
		}
	})
}

func (s *engineSuite) TestGetAttendee() {
	a := s.attendee("ravi@example.com")

	got, err := s.svc.GetAttendee(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Email, got.Email)

	_, err = s.svc.GetAttendee(s.ctx, "missing")
	s.requireReason(err, domainerr.UnknownAttendee)

	_, err = s.svc.GetAttendee(s.ctx, " ")
	s.requireReason(err, domainerr.InvalidInput)
}

func (s *engineSuite) TestCreateActivity() {
	s.Run("solo is normalized to size one", func() {
		a, err := s.svc.CreateActivity(s.ctx, model.CreateActivityRequest{
			Name: "Quiz", Shape: model.ShapeSolo, MinTeamSize: 3, MaxTeamSize: 4,
		})
		s.Require().NoError(err)
		s.Equal(1, a.MinTeamSize)
		s.Equal(1, a.MaxTeamSize)
		s.True(a.Active)
	})

	s.Run("team bounds are validated", func() {
		bad := []model.CreateActivityRequest{
			{Name: "T", Shape: model.ShapeTeam, MinTeamSize: 0, MaxTeamSize: 3},
			{Name: "T", Shape: model.ShapeTeam, MinTeamSize: 4, MaxTeamSize: 3},
			{Name: "T", Shape: model.ShapeTeam, MinTeamSize: 1, MaxTeamSize: 101},
			{Name: "T", Shape: "duo", MinTeamSize: 1, MaxTeamSize: 2},
			{Name: "", Shape: model.ShapeSolo},
			{Name: "T", Shape: model.ShapeSolo, Fee: -1},
		}
		for _, req := range bad {
			_, err := s.svc.CreateActivity(s.ctx, req)
			s.requireReason(err, domainerr.InvalidInput)
		}
	})
}

func (s *engineSuite) TestActivityCatalog() {
	first := s.freeSolo()
	s.clock.Advance(1)
	second := s.teamActivity(2, 4, 500)

	list, err := s.svc.ListActivities(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(second.ID, list[0].ID)
	s.Equal(first.ID, list[1].ID)

	closed, err := s.svc.SetActivityActive(s.ctx, first.ID, false)
	s.Require().NoError(err)
	s.False(closed.Active)

	got, err := s.svc.GetActivity(s.ctx, first.ID)
	s.Require().NoError(err)
	s.False(got.Active)

	_, err = s.svc.SetActivityActive(s.ctx, "missing", true)
	s.requireReason(err, domainerr.ActivityUnavailable)
}
