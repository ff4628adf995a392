package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// RegistrationRepository handles persistence for registrations and team rosters.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, activity_id, attendee_id, attendee_email, status, amount_charged,
	COALESCE(order_id, ''), COALESCE(team_name, ''), team_members, version, created_at, updated_at`

// bindingPredicate matches a registration that binds email ($2) as a team member,
// or as the leader of a named team. team_members is GIN-indexed.
const bindingPredicate = `(team_members @> jsonb_build_array(jsonb_build_object('email', $2::text))
	OR (team_name IS NOT NULL AND attendee_email = $2))`

// Create inserts a registration.
//
// Uniqueness of (activity_id, attendee_id) is enforced by the table's unique
// constraint rather than a prior SELECT, so two concurrent inserts for the same pair
// produce exactly one row; the loser receives ErrConflict. A registration created as
// paid joins the attendee's registered-activities set in the same transaction.
func (r *RegistrationRepository) Create(ctx context.Context, reg *model.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	if reg.TeamMembers == nil {
		reg.TeamMembers = []model.TeamMember{}
	}
	members, err := json.Marshal(reg.TeamMembers)
	if err != nil {
		return fmt.Errorf("encode team members: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classify("begin registration", err)
	}
	defer rollback(ctx, tx)

	_, err = tx.Exec(ctx,
		`INSERT INTO registrations
		 (id, activity_id, attendee_id, attendee_email, status, amount_charged, order_id, team_name, team_members, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, 0, $10, $10)`,
		reg.ID, reg.ActivityID, reg.AttendeeID, reg.AttendeeEmail, string(reg.Status), reg.AmountCharged,
		reg.OrderID, reg.TeamName, string(members), reg.CreatedAt,
	)
	if err != nil {
		return classify("insert registration", err)
	}
	if reg.Status == model.PaymentPaid {
		if err := markRegistered(ctx, tx, reg.AttendeeID, reg.ActivityID); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit registration", err)
	}
	reg.UpdatedAt = reg.CreatedAt
	return nil
}

// Get returns the registration for (activityID, attendeeID) or ErrNotFound.
func (r *RegistrationRepository) Get(ctx context.Context, activityID, attendeeID string) (*model.Registration, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE activity_id = $1 AND attendee_id = $2`,
		activityID, attendeeID,
	)
	return scanRegistration(row)
}

// GetByOrderID resolves the registration a gateway order belongs to.
func (r *RegistrationRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Registration, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE order_id = $1`,
		orderID,
	)
	return scanRegistration(row)
}

// ListByActivity returns all registrations for an activity.
func (r *RegistrationRepository) ListByActivity(ctx context.Context, activityID string) ([]*model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE activity_id = $1 ORDER BY created_at ASC`,
		activityID)
}

// ListByAttendee returns the registrations an attendee owns.
func (r *RegistrationRepository) ListByAttendee(ctx context.Context, attendeeID string) ([]*model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE attendee_id = $1 ORDER BY created_at ASC`,
		attendeeID)
}

// ListTeamsWithMember returns every leader registration whose roster holds email.
func (r *RegistrationRepository) ListTeamsWithMember(ctx context.Context, email string) ([]*model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE team_members @> jsonb_build_array(jsonb_build_object('email', $1::text))
		 ORDER BY created_at ASC`,
		email)
}

// FindTeamBinding returns the leader registration that binds email, as member or
// leader, for the activity. ErrNotFound when the email is free.
func (r *RegistrationRepository) FindTeamBinding(ctx context.Context, activityID, email string) (*model.Registration, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE activity_id = $1 AND `+bindingPredicate+`
		 ORDER BY created_at ASC LIMIT 1`,
		activityID, email,
	)
	return scanRegistration(row)
}

// Finalize moves a pending registration to status with a conditional update.
// ErrFinalized is returned, with the current record, when it was no longer pending.
func (r *RegistrationRepository) Finalize(ctx context.Context, activityID, attendeeID string, status model.PaymentStatus, at time.Time) (*model.Registration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, classify("begin finalize", err)
	}
	defer rollback(ctx, tx)

	row := tx.QueryRow(ctx,
		`UPDATE registrations SET status = $3, updated_at = $4
		 WHERE activity_id = $1 AND attendee_id = $2 AND status = 'pending'
		 RETURNING `+registrationColumns,
		activityID, attendeeID, string(status), at,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, ErrNotFound) {
		current, getErr := scanRegistration(tx.QueryRow(ctx,
			`SELECT `+registrationColumns+` FROM registrations WHERE activity_id = $1 AND attendee_id = $2`,
			activityID, attendeeID))
		if getErr != nil {
			return nil, getErr
		}
		return current, ErrFinalized
	}
	if err != nil {
		return nil, err
	}
	if status == model.PaymentPaid {
		if err := markRegistered(ctx, tx, attendeeID, activityID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify("commit finalize", err)
	}
	return reg, nil
}

// Rearm returns a failed registration to pending under a fresh order id.
func (r *RegistrationRepository) Rearm(ctx context.Context, activityID, attendeeID, orderID string, amount int64, at time.Time) (*model.Registration, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE registrations SET status = 'pending', order_id = $3, amount_charged = $4, updated_at = $5
		 WHERE activity_id = $1 AND attendee_id = $2 AND status = 'failed'
		 RETURNING `+registrationColumns,
		activityID, attendeeID, orderID, amount, at,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, activityID, attendeeID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrFinalized
	}
	return reg, err
}

// SaveTeam writes reg's team name and roster.
//
// Writes are serialized per activity with a transaction-scoped advisory lock, so the
// closure re-check on added emails observes every committed roster. The update is
// guarded by reg.Version; a concurrent writer on the same registration yields
// ErrStale. Emails another team already binds yield a *MemberConflictError.
func (r *RegistrationRepository) SaveTeam(ctx context.Context, reg *model.Registration, added []string) error {
	members, err := json.Marshal(reg.TeamMembers)
	if err != nil {
		return fmt.Errorf("encode team members: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classify("begin team", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, reg.ActivityID); err != nil {
		return classify("lock activity", err)
	}

	for _, email := range added {
		var leaderID string
		err := tx.QueryRow(ctx,
			`SELECT attendee_id FROM registrations
			 WHERE activity_id = $1 AND id <> $3 AND `+bindingPredicate+`
			 LIMIT 1`,
			reg.ActivityID, email, reg.ID,
		).Scan(&leaderID)
		if err == nil {
			return &MemberConflictError{Email: email, LeaderID: leaderID}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return classify("check team binding", err)
		}
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE registrations
		 SET team_name = NULLIF($3, ''), team_members = $4, version = version + 1, updated_at = $5
		 WHERE id = $1 AND version = $2`,
		reg.ID, reg.Version, reg.TeamName, string(members), now,
	)
	if err != nil {
		return classify("update team", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit team", err)
	}
	reg.Version++
	reg.UpdatedAt = now
	return nil
}

func (r *RegistrationRepository) list(ctx context.Context, sql string, args ...any) ([]*model.Registration, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("list registrations", err)
	}
	defer rows.Close()

	var regs []*model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, classify("list registrations", rows.Err())
}

func markRegistered(ctx context.Context, tx pgx.Tx, attendeeID, activityID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE attendees SET registered_activities = array_append(registered_activities, $2)
		 WHERE id = $1 AND NOT ($2 = ANY(registered_activities))`,
		attendeeID, activityID,
	)
	return classify("mark registered", err)
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var reg model.Registration
	var status string
	var members []byte
	err := row.Scan(
		&reg.ID, &reg.ActivityID, &reg.AttendeeID, &reg.AttendeeEmail, &status, &reg.AmountCharged,
		&reg.OrderID, &reg.TeamName, &members, &reg.Version, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, classify("scan registration", err)
	}
	reg.Status = model.PaymentStatus(status)
	reg.TeamMembers = []model.TeamMember{}
	if len(members) > 0 {
		if err := json.Unmarshal(members, &reg.TeamMembers); err != nil {
			return nil, fmt.Errorf("decode team members: %w", err)
		}
	}
	return &reg, nil
}
