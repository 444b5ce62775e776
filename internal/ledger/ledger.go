// Package ledger tracks affiliates created by Stage A until they are finalized,
// so abandoned records can be found and cleaned up.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
)

// QB is the query builder with PostgreSQL placeholder format.
var QB = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

//go:embed migrations/*.sql
var migrations embed.FS

const table = "pending_affiliates"

// Entry statuses.
const (
	StatusPending   = "pending"
	StatusFinalized = "finalized"
	StatusDeleted   = "deleted"
	StatusFlagged   = "flagged"
)

// Entry is one staged affiliate.
type Entry struct {
	AffiliateID string
	Email       string
	ParentID    string
	Status      string
	ProgramID   string
	CreatedAt   time.Time
}

// Age reports how long the entry has been waiting.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Migrate applies the embedded goose migrations.
func (l *Ledger) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, l.db, "migrations"); err != nil {
		return fmt.Errorf("apply ledger migrations: %w", err)
	}
	return nil
}

// RecordPending stores a freshly staged affiliate. Repeated calls are no-ops.
func (l *Ledger) RecordPending(ctx context.Context, affiliateID, email, parentID string) error {
	query, args, err := QB.
		Insert(table).
		Columns("affiliate_id", "email", "parent_id", "status").
		Values(affiliateID, email, parentID, StatusPending).
		Suffix("ON CONFLICT (affiliate_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build record pending query: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record pending affiliate: %w", err)
	}
	return nil
}

// MarkFinalized closes a pending entry once the affiliate is being enrolled.
// Entries the reaper has already flagged or deleted are left alone; the
// returned bool reports whether the entry was claimed.
func (l *Ledger) MarkFinalized(ctx context.Context, affiliateID, programID string) (bool, error) {
	query, args, err := QB.
		Update(table).
		Set("status", StatusFinalized).
		Set("program_id", programID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"affiliate_id": affiliateID, "status": StatusPending}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark finalized query: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark affiliate finalized: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Status returns the current status of an entry. found is false when the
// affiliate was never recorded.
func (l *Ledger) Status(ctx context.Context, affiliateID string) (status string, found bool, err error) {
	query, args, err := QB.
		Select("status").
		From(table).
		Where(sq.Eq{"affiliate_id": affiliateID}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build status query: %w", err)
	}

	err = l.db.QueryRowContext(ctx, query, args...).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query affiliate status: %w", err)
	}
	return status, true, nil
}

// ListStale returns pending entries older than olderThan, oldest first.
func (l *Ledger) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := l.now().Add(-olderThan)

	query, args, err := QB.
		Select("affiliate_id", "email", "parent_id", "status", "program_id", "created_at").
		From(table).
		Where(sq.Eq{"status": StatusPending}).
		Where(sq.Lt{"created_at": cutoff}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale entries query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AffiliateID, &e.Email, &e.ParentID, &e.Status, &e.ProgramID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stale entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale entries: %w", err)
	}

	return entries, nil
}

// Transition moves an entry from one status to another. Entries no longer in
// from are left alone; the returned bool reports whether a row changed.
func (l *Ledger) Transition(ctx context.Context, affiliateID, from, to string) (bool, error) {
	query, args, err := QB.
		Update(table).
		Set("status", to).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"affiliate_id": affiliateID, "status": from}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition query: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("move affiliate %s from %s to %s: %w", affiliateID, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
