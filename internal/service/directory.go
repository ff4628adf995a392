package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/repository"
)

const maxTeamSizeLimit = 100

// CreateAttendee signs up an identity. Emails are unique case-insensitively.
func (s *Service) CreateAttendee(ctx context.Context, req model.CreateAttendeeRequest) (*model.Attendee, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "email is required")
	}
	if !isValidEmail(email) {
		return nil, domainerr.For(domainerr.InvalidInput, req.Email, "email is not a valid email address")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "name is required")
	}
	role := req.Role
	if role == "" {
		role = model.RoleParticipant
	}
	if !role.IsValid() {
		return nil, domainerr.For(domainerr.InvalidInput, string(role), "role must be participant, staff or organizer")
	}

	a := &model.Attendee{
		Email:     email,
		Name:      name,
		Contact:   strings.TrimSpace(req.Contact),
		Role:      role,
		CreatedAt: s.now(),
	}
	if err := s.attendees.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domainerr.For(domainerr.EmailTaken, email, "an attendee with this email already exists")
		}
		return nil, storeErr(err, "create attendee")
	}
	a.ScanHistory = []model.ScanEntry{}
	s.logger.InfoContext(ctx, "attendee created", "attendee_id", a.ID, "role", a.Role)
	return a, nil
}

// GetAttendee returns an attendee with scan history.
func (s *Service) GetAttendee(ctx context.Context, id string) (*model.Attendee, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "attendee id is required")
	}
	return s.loadAttendee(ctx, id)
}

// CreateActivity adds an activity to the catalog. Solo activities are normalized
// to a team size of exactly one.
func (s *Service) CreateActivity(ctx context.Context, req model.CreateActivityRequest) (*model.Activity, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "activity name is required")
	}
	if req.Fee < 0 {
		return nil, domainerr.New(domainerr.InvalidInput, "fee cannot be negative")
	}
	shape := req.Shape
	if shape == "" {
		shape = model.ShapeSolo
	}

	a := &model.Activity{
		Name:      name,
		Shape:     shape,
		Fee:       req.Fee,
		Active:    true,
		CreatedAt: s.now(),
	}
	switch shape {
	case model.ShapeSolo:
		a.MinTeamSize, a.MaxTeamSize = 1, 1
	case model.ShapeTeam:
		if req.MinTeamSize < 1 {
			return nil, domainerr.New(domainerr.InvalidInput, "min_team_size must be at least 1")
		}
		if req.MaxTeamSize < req.MinTeamSize {
			return nil, domainerr.New(domainerr.InvalidInput, "max_team_size must be at least min_team_size")
		}
		if req.MaxTeamSize > maxTeamSizeLimit {
			return nil, domainerr.Newf(domainerr.InvalidInput, "max_team_size cannot exceed %d", maxTeamSizeLimit)
		}
		a.MinTeamSize, a.MaxTeamSize = req.MinTeamSize, req.MaxTeamSize
	default:
		return nil, domainerr.For(domainerr.InvalidInput, string(shape), "shape must be solo or team")
	}

	if err := s.activities.Create(ctx, a); err != nil {
		return nil, storeErr(err, "create activity")
	}
	s.logger.InfoContext(ctx, "activity created", "activity_id", a.ID, "shape", a.Shape, "fee", a.Fee)
	return a, nil
}

// GetActivity returns an activity, active or not.
func (s *Service) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "activity id is required")
	}
	return s.loadActivity(ctx, id)
}

// ListActivities returns the whole catalog.
func (s *Service) ListActivities(ctx context.Context) ([]model.Activity, error) {
	activities, err := s.activities.List(ctx)
	if err != nil {
		return nil, storeErr(err, "list activities")
	}
	return activities, nil
}

// SetActivityActive opens or closes an activity for registration.
func (s *Service) SetActivityActive(ctx context.Context, id string, active bool) (*model.Activity, error) {
	a, err := s.activities.SetActive(ctx, id, active)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerr.For(domainerr.ActivityUnavailable, id, "activity not found")
		}
		return nil, storeErr(err, "set activity active")
	}
	s.logger.InfoContext(ctx, "activity availability changed", "activity_id", id, "active", active)
	return a, nil
}

func (s *Service) loadAttendee(ctx context.Context, id string) (*model.Attendee, error) {
	a, err := s.attendees.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerr.For(domainerr.UnknownAttendee, id, "attendee not found")
		}
		return nil, storeErr(err, "get attendee")
	}
	return a, nil
}

func (s *Service) loadActivity(ctx context.Context, id string) (*model.Activity, error) {
	a, err := s.activities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerr.For(domainerr.ActivityUnavailable, id, "activity not found")
		}
		return nil, storeErr(err, "get activity")
	}
	return a, nil
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
