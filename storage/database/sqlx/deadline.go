package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeportal/core/deadline"
)

const deadlineColumns = "id, fee_type, branch, deadline, lead_hours, notified_at, created_by, created_at"

type deadlineRow struct {
	ID         string      `db:"id"`
	FeeType    string      `db:"fee_type"`
	Branch     string      `db:"branch"`
	Deadline   time.Time   `db:"deadline"`
	LeadHours  int         `db:"lead_hours"`
	NotifiedAt null.Time   `db:"notified_at"`
	CreatedBy  null.String `db:"created_by"`
	CreatedAt  time.Time   `db:"created_at"`
}

func (r deadlineRow) toDeadline() deadline.Deadline {
	d := deadline.Deadline{
		ID:        r.ID,
		FeeType:   r.FeeType,
		Branch:    r.Branch,
		Deadline:  r.Deadline.UTC(),
		LeadHours: r.LeadHours,
		CreatedBy: r.CreatedBy.String,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.NotifiedAt.Valid {
		d.NotifiedAt = r.NotifiedAt.Time.UTC()
	}
	return d
}

type deadlineRepository struct {
	db *sqlx.DB
}

var _ deadline.Repository = (*deadlineRepository)(nil) // interface compliance check

func NewDeadlineRepository(db *sqlx.DB) deadline.Repository {
	return &deadlineRepository{db: db}
}

func (repo *deadlineRepository) CreateDeadline(ctx context.Context, d deadline.Deadline) (deadline.Deadline, error) {
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO fee_deadlines ("+deadlineColumns+") VALUES "+
			"(:id, :fee_type, :branch, :deadline, :lead_hours, :notified_at, :created_by, :created_at)",
		deadlineRow{
			ID:         d.ID,
			FeeType:    d.FeeType,
			Branch:     d.Branch,
			Deadline:   d.Deadline,
			LeadHours:  d.LeadHours,
			NotifiedAt: null.NewTime(d.NotifiedAt, d.Notified()),
			CreatedBy:  null.NewString(d.CreatedBy, d.CreatedBy != ""),
			CreatedAt:  d.CreatedAt,
		},
	)
	if err != nil {
		return deadline.Deadline{}, errors.Wrap(err, "inserting deadline")
	}
	return d, nil
}

func (repo *deadlineRepository) GetDeadline(ctx context.Context, id string) (deadline.Deadline, error) {
	var row deadlineRow
	q := repo.db.Rebind("SELECT " + deadlineColumns + " FROM fee_deadlines WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return deadline.Deadline{}, deadline.ErrNotFound
		}
		return deadline.Deadline{}, errors.Wrap(err, "selecting deadline")
	}
	return row.toDeadline(), nil
}

func (repo *deadlineRepository) QueryDeadlines(ctx context.Context) ([]deadline.Deadline, error) {
	var rows []deadlineRow
	q := "SELECT " + deadlineColumns + " FROM fee_deadlines ORDER BY deadline, id"
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting deadlines")
	}
	deadlines := make([]deadline.Deadline, 0, len(rows))
	for _, r := range rows {
		deadlines = append(deadlines, r.toDeadline())
	}
	return deadlines, nil
}

func (repo *deadlineRepository) DeleteDeadline(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM fee_deadlines WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting deadline")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting deadline")
	}
	if n == 0 {
		return deadline.ErrNotFound
	}
	return nil
}

// MarkNotified only succeeds for the first caller: the row is updated while notified_at is still NULL.
func (repo *deadlineRepository) MarkNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	q := repo.db.Rebind("UPDATE fee_deadlines SET notified_at = ? WHERE id = ? AND notified_at IS NULL")
	res, err := repo.db.ExecContext(ctx, q, at, id)
	if err != nil {
		return false, errors.Wrap(err, "marking deadline notified")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "marking deadline notified")
	}
	return n == 1, nil
}
