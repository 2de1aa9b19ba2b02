// Package sqlxrepos implements the domain repositories over PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// base is embedded by every repository.
type base struct {
	db *sqlx.DB
}

// getExec returns the transaction handed over by the service, or the pool.
// Transactions opened by database.Transactor are *sqlx.Tx.
func (b base) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return b.db
}

func (b base) get(ctx context.Context, exec sqlx.ExtContext, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, exec, dest, q, args...)
}

func (b base) selectAll(ctx context.Context, exec sqlx.ExtContext, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, exec, dest, q, args...)
}

func (b base) exec(ctx context.Context, exec sqlx.ExtContext, query sq.Sqlizer) (sql.Result, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return exec.ExecContext(ctx, q, args...)
}

// trapNoRowsErr maps psql "no rows" err to the domain's not found err
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// orderBy renders orderings for squirrel's OrderBy.
func orderBy(ords ...core.DBOrdering) []string {
	clauses := make([]string, len(ords))
	for i, ord := range ords {
		clauses[i] = ord.String()
	}
	return clauses
}

func like(s string) string {
	return "%" + s + "%"
}

// nullID stores 0 as NULL.
func nullID(id int) null.Int {
	return null.NewInt(id, id != 0)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullDate(d *core.Date) null.Time {
	if d == nil || d.IsZero() {
		return null.Time{}
	}
	return null.TimeFrom(d.Time)
}

func datePtr(t null.Time) *core.Date {
	if !t.Valid {
		return nil
	}
	d := core.DateOf(t.Time.UTC())
	return &d
}

func intPtr(i null.Int) *int {
	if !i.Valid {
		return nil
	}
	v := i.Int
	return &v
}

func ptrInt(p *int) null.Int {
	return null.IntFromPtr(p)
}

// prefixed qualifies columns with a table alias.
func prefixed(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return out
}
