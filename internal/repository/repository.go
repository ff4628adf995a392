// Package repository implements the Ledger Store for the attendance engine.
// It uses pgx directly (no ORM); an in-memory implementation with the same
// guarantees backs unit tests and single-instance demos.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique key is already taken.
var ErrConflict = errors.New("conflict")

// ErrFinalized is returned when a registration's payment status is no longer pending.
var ErrFinalized = errors.New("payment already finalized")

// ErrStale is returned when an optimistic version check fails.
var ErrStale = errors.New("stale version")

// ErrUnavailable is returned when the store cannot be reached; safe to retry.
var ErrUnavailable = errors.New("store unavailable")

// ErrMemberBound is the target for MemberConflictError.
var ErrMemberBound = errors.New("email already bound to a team")

// MemberConflictError reports an email that another team already binds.
type MemberConflictError struct {
	Email    string
	LeaderID string
}

func (e *MemberConflictError) Error() string {
	return fmt.Sprintf("%s bound to team led by %s", e.Email, e.LeaderID)
}

func (e *MemberConflictError) Is(target error) bool { return target == ErrMemberBound }

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classify maps driver errors onto repository sentinels, annotating with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rollback resolves tx when the caller returns early; commit errors surface separately.
func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}
