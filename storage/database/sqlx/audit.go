package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core/audit"
)

type logRow struct {
	ID         int       `db:"id"`
	UserID     null.Int  `db:"user_id"`
	Method     string    `db:"method"`
	Path       string    `db:"path"`
	ViewName   string    `db:"view_name"`
	Referer    string    `db:"referer"`
	IP         string    `db:"ip"`
	UserAgent  string    `db:"user_agent"`
	StatusCode int       `db:"status_code"`
	Success    bool      `db:"success"`
	DurationMS int       `db:"duration_ms"`
	Message    string    `db:"message"`
	Payload    null.JSON `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`

	UserName null.String `db:"user_name"`
}

func (r logRow) log() audit.Log {
	l := audit.Log{
		ID:         r.ID,
		UserID:     intPtr(r.UserID),
		Method:     r.Method,
		Path:       r.Path,
		ViewName:   r.ViewName,
		Referer:    r.Referer,
		IP:         r.IP,
		UserAgent:  r.UserAgent,
		StatusCode: r.StatusCode,
		Success:    r.Success,
		DurationMS: r.DurationMS,
		Message:    r.Message,
		CreatedAt:  r.CreatedAt.UTC(),
		UserName:   r.UserName.String,
	}
	if r.Payload.Valid {
		_ = json.Unmarshal(r.Payload.JSON, &l.Payload)
	}
	return l
}

type auditRepository struct {
	base
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) *auditRepository {
	return &auditRepository{base{db: db}}
}

func (repo auditRepository) CreateLog(ctx context.Context, l audit.Log) (audit.Log, error) {
	payload := []byte("{}")
	if len(l.Payload) > 0 {
		b, err := json.Marshal(l.Payload)
		if err != nil {
			return audit.Log{}, errors.Wrap(err, "encoding payload")
		}
		payload = b
	}

	var id int
	q := psql.Insert("activity_logs").
		Columns(
			"user_id", "method", "path", "view_name", "referer", "ip", "user_agent",
			"status_code", "success", "duration_ms", "message", "payload", "created_at",
		).
		Values(
			null.IntFromPtr(l.UserID), l.Method, l.Path, l.ViewName, l.Referer, l.IP, l.UserAgent,
			l.StatusCode, l.Success, l.DurationMS, l.Message, string(payload), l.CreatedAt.UTC(),
		).
		Suffix("RETURNING id")
	if err := repo.get(ctx, repo.db, &id, q); err != nil {
		return audit.Log{}, errors.Wrap(err, "inserting activity log")
	}
	l.ID = id
	return l, nil
}

func (repo auditRepository) QueryLogs(ctx context.Context, filter *audit.Filter) ([]audit.Log, error) {
	q := psql.Select(
		"l.id", "l.user_id", "l.method", "l.path", "l.view_name", "l.referer", "l.ip", "l.user_agent",
		"l.status_code", "l.success", "l.duration_ms", "l.message", "l.payload", "l.created_at",
		"NULLIF(COALESCE(TRIM(u.first_name || ' ' || u.last_name), ''), '') AS user_name",
	).
		From("activity_logs l").
		LeftJoin("users u ON u.id = l.user_id").
		OrderBy("l.created_at DESC", "l.id DESC")
	if filter != nil {
		if filter.UserID != 0 {
			q = q.Where(sq.Eq{"l.user_id": filter.UserID})
		}
		if filter.PathPrefix != "" {
			q = q.Where(sq.Like{"l.path": filter.PathPrefix + "%"})
		}
		if filter.Success != nil {
			q = q.Where(sq.Eq{"l.success": *filter.Success})
		}
		if !filter.From.IsZero() {
			q = q.Where(sq.GtOrEq{"l.created_at": filter.From.UTC()})
		}
		if !filter.To.IsZero() {
			q = q.Where(sq.Lt{"l.created_at": filter.To.UTC()})
		}
		if filter.Limit > 0 {
			q = q.Limit(uint64(filter.Limit))
		}
	}

	var rows []logRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying activity logs")
	}
	logs := make([]audit.Log, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.log())
	}
	return logs, nil
}
