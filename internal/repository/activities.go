package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// ActivityRepository handles persistence for the activity catalog.
type ActivityRepository struct {
	db *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, name, shape, min_team_size, max_team_size, fee, active, created_at`

// Create inserts a new activity, generating its id when absent.
func (r *ActivityRepository) Create(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Name, string(a.Shape), a.MinTeamSize, a.MaxTeamSize, a.Fee, a.Active, a.CreatedAt,
	)
	return classify("insert activity", err)
}

// GetByID returns a single activity or ErrNotFound.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id)
	return scanActivity(row)
}

// List returns all activities ordered by creation time descending.
func (r *ActivityRepository) List(ctx context.Context) ([]model.Activity, error) {
	rows, err := r.db.Query(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY created_at DESC`)
	if err != nil {
		return nil, classify("list activities", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, classify("list activities", rows.Err())
}

// SetActive flips the active flag, the only field this engine mutates.
func (r *ActivityRepository) SetActive(ctx context.Context, id string, active bool) (*model.Activity, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE activities SET active = $2 WHERE id = $1 RETURNING `+activityColumns,
		id, active,
	)
	return scanActivity(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*model.Activity, error) {
	var a model.Activity
	var shape string
	if err := row.Scan(&a.ID, &a.Name, &shape, &a.MinTeamSize, &a.MaxTeamSize, &a.Fee, &a.Active, &a.CreatedAt); err != nil {
		return nil, classify("scan activity", err)
	}
	a.Shape = model.Shape(shape)
	return &a, nil
}
