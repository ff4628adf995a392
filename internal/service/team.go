package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/repository"
)

const maxTeamNameLength = 80

// CreateTeam makes a paid, team-less registrant the leader of a new team.
//
// Checks run in a fixed order so callers always see the same first failure:
// leader paid, no existing team, leader not bound elsewhere, then each member in
// input order, then team size. Nothing is written unless every check passes.
func (s *Service) CreateTeam(ctx context.Context, activityID, leaderID, teamName string, members []string) (view *model.RegistrationView, err error) {
	ctx, span := s.startSpan(ctx, "CreateTeam",
		attribute.String("activity.id", activityID), attribute.String("leader.id", leaderID),
		attribute.Int("team.requested_members", len(members)))
	defer func() {
		s.metrics.IncTeam("create", reasonLabel(err))
		endSpan(span, err)
	}()

	teamName = strings.TrimSpace(teamName)
	if teamName == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "team_name is required")
	}
	if len(teamName) > maxTeamNameLength {
		return nil, domainerr.Newf(domainerr.InvalidInput, "team_name cannot exceed %d characters", maxTeamNameLength)
	}
	activity, leader, err := s.teamTargets(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}

	release, err := s.lockTeam(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	defer release()

	reg, err := s.registrations.Get(ctx, activityID, leaderID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, domainerr.For(domainerr.LeaderNotPaid, leader.Email, "leader is not registered for this activity")
	case err != nil:
		return nil, storeErr(err, "get leader registration")
	}
	if reg.Status != model.PaymentPaid {
		return nil, domainerr.For(domainerr.LeaderNotPaid, leader.Email, "leader has not completed payment")
	}
	if reg.IsLeader() {
		return nil, domainerr.For(domainerr.TeamAlreadyExists, reg.TeamName, "leader already has a team")
	}
	if err := s.ensureUnbound(ctx, activityID, leader.Email, leaderID); err != nil {
		return nil, err
	}

	snapshots, err := s.admitMembers(ctx, activityID, leader, nil, members)
	if err != nil {
		s.logger.DebugContext(ctx, "team creation rejected",
			"activity_id", activityID, "leader_id", leaderID, "error", err)
		return nil, err
	}

	size := 1 + len(snapshots)
	if size < activity.MinTeamSize {
		return nil, domainerr.Newf(domainerr.TeamTooSmall,
			"team of %d is below the minimum of %d", size, activity.MinTeamSize)
	}
	if size > activity.MaxTeamSize {
		return nil, domainerr.Newf(domainerr.TeamTooLarge,
			"team of %d exceeds the maximum of %d", size, activity.MaxTeamSize)
	}

	reg.TeamName = teamName
	reg.TeamMembers = snapshots
	added := make([]string, 0, size)
	added = append(added, leader.Email)
	for _, m := range snapshots {
		added = append(added, m.Email)
	}
	if err := s.saveTeam(ctx, reg, added); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "team created",
		"activity_id", activityID, "leader_id", leaderID, "team_name", teamName, "size", size)
	return leaderView(reg, leader), nil
}

// AddTeamMember appends one member to the leader's team.
func (s *Service) AddTeamMember(ctx context.Context, activityID, leaderID, email string) (view *model.RegistrationView, err error) {
	ctx, span := s.startSpan(ctx, "AddTeamMember",
		attribute.String("activity.id", activityID), attribute.String("leader.id", leaderID))
	defer func() {
		s.metrics.IncTeam("add", reasonLabel(err))
		endSpan(span, err)
	}()

	activity, leader, err := s.teamTargets(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	release, err := s.lockTeam(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	defer release()

	reg, err := s.leaderRegistration(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	if reg.TeamSize()+1 > activity.MaxTeamSize {
		return nil, domainerr.Newf(domainerr.TeamFull,
			"team already has %d of %d members", reg.TeamSize(), activity.MaxTeamSize)
	}

	snapshots, err := s.admitMembers(ctx, activityID, leader, reg.TeamMembers, []string{email})
	if err != nil {
		return nil, err
	}
	reg.TeamMembers = append(reg.TeamMembers, snapshots...)
	if err := s.saveTeam(ctx, reg, []string{snapshots[0].Email}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "team member added",
		"activity_id", activityID, "leader_id", leaderID, "size", reg.TeamSize())
	return leaderView(reg, leader), nil
}

// RemoveTeamMember drops a member from the leader's team. A team may shrink below
// the activity's minimum; the minimum is only enforced at creation.
func (s *Service) RemoveTeamMember(ctx context.Context, activityID, leaderID, email string) (view *model.RegistrationView, err error) {
	ctx, span := s.startSpan(ctx, "RemoveTeamMember",
		attribute.String("activity.id", activityID), attribute.String("leader.id", leaderID))
	defer func() {
		s.metrics.IncTeam("remove", reasonLabel(err))
		endSpan(span, err)
	}()

	_, leader, err := s.teamTargets(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	release, err := s.lockTeam(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	defer release()

	reg, err := s.leaderRegistration(ctx, activityID, leaderID)
	if err != nil {
		return nil, err
	}
	if !reg.RemoveMember(email) {
		return nil, domainerr.For(domainerr.NotAMember, model.NormalizeEmail(email), "not a member of this team")
	}
	if err := s.saveTeam(ctx, reg, nil); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "team member removed",
		"activity_id", activityID, "leader_id", leaderID, "size", reg.TeamSize())
	return leaderView(reg, leader), nil
}

// admitMembers runs the member-admission check for each candidate, in input order,
// stopping at the first failure. existing seeds the duplicate check so an add
// cannot re-add a current member. It returns snapshots for the candidates only.
func (s *Service) admitMembers(ctx context.Context, activityID string, leader *model.Attendee, existing []model.TeamMember, candidates []string) ([]model.TeamMember, error) {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, m := range existing {
		seen[m.Email] = struct{}{}
	}

	snapshots := make([]model.TeamMember, 0, len(candidates))
	for _, raw := range candidates {
		email := model.NormalizeEmail(raw)
		if email == "" {
			return nil, domainerr.For(domainerr.InvalidInput, raw, "member email is required")
		}
		if email == leader.Email {
			return nil, domainerr.For(domainerr.SelfReference, email, "leader cannot be their own team member")
		}
		if _, dup := seen[email]; dup {
			return nil, domainerr.For(domainerr.DuplicateInRequest, email, "member listed more than once")
		}

		candidate, err := s.attendees.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, domainerr.For(domainerr.UnknownAttendee, email, "no attendee with this email")
		case err != nil:
			return nil, storeErr(err, "get member")
		}

		reg, err := s.registrations.Get(ctx, activityID, candidate.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, domainerr.For(domainerr.NotRegistered, email, "member is not registered for this activity")
		case err != nil:
			return nil, storeErr(err, "get member registration")
		}
		if reg.Status != model.PaymentPaid {
			return nil, domainerr.For(domainerr.PaymentIncomplete, email, "member has not completed payment")
		}
		if reg.IsLeader() {
			return nil, domainerr.For(domainerr.AlreadyLeader, email, "member already leads a team")
		}
		if err := s.ensureUnbound(ctx, activityID, email, leader.ID); err != nil {
			return nil, err
		}

		seen[email] = struct{}{}
		snapshots = append(snapshots, candidate.Snapshot())
	}
	return snapshots, nil
}

// ensureUnbound rejects email if a team other than ownerID's already binds it.
func (s *Service) ensureUnbound(ctx context.Context, activityID, email, ownerID string) error {
	bound, err := s.registrations.FindTeamBinding(ctx, activityID, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return storeErr(err, "find team binding")
	}
	if bound.AttendeeID == ownerID {
		return nil
	}
	return domainerr.For(domainerr.AlreadyInOtherTeam, email, "already in team "+bound.TeamName)
}

func (s *Service) saveTeam(ctx context.Context, reg *model.Registration, added []string) error {
	err := s.registrations.SaveTeam(ctx, reg, added)
	var bound *repository.MemberConflictError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &bound):
		return domainerr.For(domainerr.AlreadyInOtherTeam, bound.Email, "joined another team concurrently")
	case errors.Is(err, repository.ErrStale):
		return domainerr.For(domainerr.ConcurrentModification, reg.AttendeeID, "team changed concurrently; retry")
	case errors.Is(err, repository.ErrNotFound):
		return domainerr.For(domainerr.NoTeamYet, reg.AttendeeID, "leader registration disappeared")
	default:
		return storeErr(err, "save team")
	}
}

func (s *Service) teamTargets(ctx context.Context, activityID, leaderID string) (*model.Activity, *model.Attendee, error) {
	activity, leader, err := s.registrationTargets(ctx, activityID, leaderID)
	if err != nil {
		return nil, nil, err
	}
	if !activity.IsTeam() {
		return nil, nil, domainerr.For(domainerr.NotTeamActivity, activityID, "activity does not allow teams")
	}
	return activity, leader, nil
}

func (s *Service) leaderRegistration(ctx context.Context, activityID, leaderID string) (*model.Registration, error) {
	reg, err := s.registrations.Get(ctx, activityID, leaderID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, domainerr.For(domainerr.NoTeamYet, leaderID, "no team for this leader")
	case err != nil:
		return nil, storeErr(err, "get leader registration")
	}
	if !reg.IsLeader() {
		return nil, domainerr.For(domainerr.NoTeamYet, leaderID, "no team for this leader")
	}
	return reg, nil
}

// lockTeam serializes mutations of one leader registration. The store's version
// check still guards the write if the lock is lost to expiry.
func (s *Service) lockTeam(ctx context.Context, activityID, leaderID string) (func(), error) {
	release, err := s.locker.Acquire(ctx, "team:"+activityID+":"+leaderID)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.StoreUnavailable, "team is busy; retry")
	}
	return release, nil
}
