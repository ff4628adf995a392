package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// AttendeeRepository handles persistence for attendees and their scan trail.
type AttendeeRepository struct {
	db *pgxpool.Pool
}

// NewAttendeeRepository constructs an AttendeeRepository.
func NewAttendeeRepository(db *pgxpool.Pool) *AttendeeRepository {
	return &AttendeeRepository{db: db}
}

const attendeeColumns = `id, email, name, contact, role, is_admitted, scan_count, registered_activities, created_at`

// Create inserts a new attendee. The lower(email) unique index rejects
// case-insensitive duplicates with ErrConflict.
func (r *AttendeeRepository) Create(ctx context.Context, a *model.Attendee) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.RegisteredActivities == nil {
		a.RegisteredActivities = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO attendees (id, email, name, contact, role, is_admitted, scan_count, registered_activities, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, 0, $6, $7)`,
		a.ID, a.Email, a.Name, a.Contact, string(a.Role), a.RegisteredActivities, a.CreatedAt,
	)
	return classify("insert attendee", err)
}

// GetByID returns an attendee with its scan history, or ErrNotFound.
func (r *AttendeeRepository) GetByID(ctx context.Context, id string) (*model.Attendee, error) {
	return loadAttendee(ctx, r.db, `WHERE id = $1`, id)
}

// GetByEmail looks an attendee up case-insensitively.
func (r *AttendeeRepository) GetByEmail(ctx context.Context, email string) (*model.Attendee, error) {
	return loadAttendee(ctx, r.db, `WHERE lower(email) = lower($1)`, email)
}

// RecordScan applies one gate scan atomically.
//
// The first statement is a conditional update: only a row with is_admitted = FALSE
// flips to TRUE. A concurrent scan blocks on the row lock, re-evaluates the predicate
// against the committed row, matches nothing, and falls through to the denied branch.
// Two gates scanning the same attendee therefore yield exactly one allowed scan.
func (r *AttendeeRepository) RecordScan(ctx context.Context, attendeeID, scannerID string, at time.Time) (*model.Attendee, model.ScanOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", classify("begin scan", err)
	}
	defer rollback(ctx, tx)

	outcome := model.ScanAllowed
	var id string
	err = tx.QueryRow(ctx,
		`UPDATE attendees SET is_admitted = TRUE, scan_count = 1
		 WHERE id = $1 AND NOT is_admitted
		 RETURNING id`,
		attendeeID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		outcome = model.ScanDenied
		err = tx.QueryRow(ctx,
			`UPDATE attendees SET scan_count = scan_count + 1
			 WHERE id = $1
			 RETURNING id`,
			attendeeID,
		).Scan(&id)
	}
	if err != nil {
		return nil, "", classify("update admission", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO scan_history (attendee_id, scanner_id, outcome, scanned_at)
		 VALUES ($1, $2, $3, $4)`,
		attendeeID, scannerID, string(outcome), at,
	)
	if err != nil {
		return nil, "", classify("insert scan", err)
	}

	a, err := loadAttendee(ctx, tx, `WHERE id = $1`, attendeeID)
	if err != nil {
		return nil, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", classify("commit scan", err)
	}
	return a, outcome, nil
}

func loadAttendee(ctx context.Context, q querier, where string, arg any) (*model.Attendee, error) {
	var a model.Attendee
	var role string
	err := q.QueryRow(ctx, `SELECT `+attendeeColumns+` FROM attendees `+where, arg).Scan(
		&a.ID, &a.Email, &a.Name, &a.Contact, &role, &a.IsAdmitted, &a.ScanCount, &a.RegisteredActivities, &a.CreatedAt,
	)
	if err != nil {
		return nil, classify("get attendee", err)
	}
	a.Role = model.Role(role)

	rows, err := q.Query(ctx,
		`SELECT scanner_id, outcome, scanned_at FROM scan_history
		 WHERE attendee_id = $1
		 ORDER BY seq ASC`,
		a.ID,
	)
	if err != nil {
		return nil, classify("list scans", err)
	}
	defer rows.Close()

	a.ScanHistory = []model.ScanEntry{}
	for rows.Next() {
		var e model.ScanEntry
		var outcome string
		if err := rows.Scan(&e.ScannerID, &outcome, &e.At); err != nil {
			return nil, classify("scan history row", err)
		}
		e.Outcome = model.ScanOutcome(outcome)
		a.ScanHistory = append(a.ScanHistory, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("scan history rows", err)
	}
	return &a, nil
}
