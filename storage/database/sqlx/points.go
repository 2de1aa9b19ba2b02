package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/points"
)

type entryRow struct {
	ID        int       `db:"id"`
	ChildID   int       `db:"child_id"`
	Points    int       `db:"points"`
	Reason    string    `db:"reason"`
	CreatedBy null.Int  `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`

	ChildName     string      `db:"child_name"`
	ClassGroup    string      `db:"class_group"`
	CreatedByName null.String `db:"created_by_name"`
}

func (r entryRow) entry() points.Entry {
	return points.Entry{
		ID:            r.ID,
		ChildID:       r.ChildID,
		Points:        r.Points,
		Reason:        r.Reason,
		CreatedBy:     r.CreatedBy.Int,
		CreatedAt:     r.CreatedAt.UTC(),
		ChildName:     r.ChildName,
		ClassGroup:    r.ClassGroup,
		CreatedByName: r.CreatedByName.String,
	}
}

type pointsRepository struct {
	base
}

var _ points.Repository = (*pointsRepository)(nil) // interface compliance check

func NewPointsRepository(db *sqlx.DB) *pointsRepository {
	return &pointsRepository{base{db: db}}
}

func (repo pointsRepository) CreateEntry(ctx context.Context, e points.Entry, exec ...core.DBExecutor) (points.Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var id int
	q := psql.Insert("points_ledger").
		Columns("child_id", "points", "reason", "created_by", "created_at").
		Values(e.ChildID, e.Points, e.Reason, nullID(e.CreatedBy), e.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, repo.getExec(exec), &id, q); err != nil {
		return points.Entry{}, errors.Wrap(err, "inserting points entry")
	}
	e.ID = id
	return e, nil
}

func (repo pointsRepository) QueryEntries(ctx context.Context, filter *points.Filter) ([]points.Entry, error) {
	q := psql.Select(
		"p.id", "p.child_id", "p.points", "p.reason", "p.created_by", "p.created_at",
		"c.name AS child_name", "c.class_group",
		"NULLIF(TRIM(u.first_name || ' ' || u.last_name), '') AS created_by_name",
	).
		From("points_ledger p").
		Join("children c ON c.id = p.child_id").
		LeftJoin("users u ON u.id = p.created_by").
		OrderBy("p.created_at DESC", "p.id DESC")
	if filter != nil {
		if filter.ClassGroup != "" {
			q = q.Where(sq.Eq{"c.class_group": filter.ClassGroup})
		}
		if filter.ChildID != 0 {
			q = q.Where(sq.Eq{"p.child_id": filter.ChildID})
		}
		if len(filter.ChildIDs) > 0 {
			q = q.Where(sq.Eq{"p.child_id": filter.ChildIDs})
		}
		if !filter.From.IsZero() {
			q = q.Where(sq.GtOrEq{"p.created_at": filter.From.Time})
		}
		if !filter.To.IsZero() {
			q = q.Where(sq.Lt{"p.created_at": filter.To.AddDays(1).Time})
		}
		if filter.GuardianID != 0 {
			q = q.Join("guardian_children gc ON gc.child_id = p.child_id").Where(sq.Eq{"gc.guardian_id": filter.GuardianID})
		}
		if filter.Limit > 0 {
			q = q.Limit(uint64(filter.Limit))
		}
	}

	var rows []entryRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying points")
	}
	entries := make([]points.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (repo pointsRepository) SumPoints(ctx context.Context) (int, error) {
	var total int
	if err := repo.get(ctx, repo.db, &total, psql.Select("COALESCE(SUM(points), 0)").From("points_ledger")); err != nil {
		return 0, errors.Wrap(err, "summing points")
	}
	return total, nil
}
