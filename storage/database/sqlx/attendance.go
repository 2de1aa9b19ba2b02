package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
)

var sessionColumns = []string{"id", "date", "type", "class_group", "created_by", "created_at"}

type sessionRow struct {
	ID         int       `db:"id"`
	Date       core.Date `db:"date"`
	Type       string    `db:"type"`
	ClassGroup string    `db:"class_group"`
	CreatedBy  null.Int  `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r sessionRow) session() attendance.Session {
	return attendance.Session{
		ID:         r.ID,
		Date:       r.Date,
		Type:       r.Type,
		ClassGroup: r.ClassGroup,
		CreatedBy:  r.CreatedBy.Int,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type recordRow struct {
	ID        int       `db:"id"`
	SessionID int       `db:"session_id"`
	ChildID   int       `db:"child_id"`
	Present   bool      `db:"present"`
	Note      string    `db:"note"`
	MarkedBy  null.Int  `db:"marked_by"`
	MarkedAt  time.Time `db:"marked_at"`

	ChildName   string    `db:"child_name"`
	SessionDate core.Date `db:"session_date"`
	SessionType string    `db:"session_type"`
}

func (r recordRow) record() attendance.Record {
	return attendance.Record{
		ID:          r.ID,
		SessionID:   r.SessionID,
		ChildID:     r.ChildID,
		Present:     r.Present,
		Note:        r.Note,
		MarkedBy:    r.MarkedBy.Int,
		MarkedAt:    r.MarkedAt.UTC(),
		ChildName:   r.ChildName,
		SessionDate: r.SessionDate,
		SessionType: r.SessionType,
	}
}

type attendanceRepository struct {
	base
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{base{db: db}}
}

func (repo attendanceRepository) CreateSession(ctx context.Context, s attendance.Session) (attendance.Session, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	var row sessionRow
	q := psql.Insert("attendance_sessions").
		Columns("date", "type", "class_group", "created_by", "created_at").
		Values(s.Date, s.Type, s.ClassGroup, nullID(s.CreatedBy), s.CreatedAt.UTC()).
		Suffix("RETURNING " + strings.Join(sessionColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return attendance.Session{}, errors.Wrap(err, "inserting attendance session")
	}
	return row.session(), nil
}

func (repo attendanceRepository) GetSession(ctx context.Context, id int) (attendance.Session, error) {
	var row sessionRow
	q := psql.Select(sessionColumns...).From("attendance_sessions").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return attendance.Session{}, trapNoRowsErr(err, attendance.ErrNotFound, "getting attendance session")
	}
	return row.session(), nil
}

func (repo attendanceRepository) QuerySessions(ctx context.Context) ([]attendance.Session, error) {
	var rows []sessionRow
	q := psql.Select(sessionColumns...).From("attendance_sessions").OrderBy("date DESC", "id DESC")
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying attendance sessions")
	}
	sessions := make([]attendance.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo attendanceRepository) SaveRecord(ctx context.Context, r attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	if r.MarkedAt.IsZero() {
		r.MarkedAt = time.Now().UTC()
	}
	var id int
	q := psql.Insert("attendance_records").
		Columns("session_id", "child_id", "present", "note", "marked_by", "marked_at").
		Values(r.SessionID, r.ChildID, r.Present, r.Note, nullID(r.MarkedBy), r.MarkedAt.UTC()).
		Suffix(`ON CONFLICT (session_id, child_id) DO UPDATE SET
			present = EXCLUDED.present,
			note = EXCLUDED.note,
			marked_by = EXCLUDED.marked_by,
			marked_at = EXCLUDED.marked_at
			RETURNING id`)
	if err := repo.get(ctx, repo.getExec(exec), &id, q); err != nil {
		return attendance.Record{}, errors.Wrap(err, "saving attendance record")
	}
	r.ID = id
	return r, nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.RecordFilter) ([]attendance.Record, error) {
	q := psql.Select(
		"r.id", "r.session_id", "r.child_id", "r.present", "r.note", "r.marked_by", "r.marked_at",
		"c.name AS child_name", "s.date AS session_date", "s.type AS session_type",
	).
		From("attendance_records r").
		Join("attendance_sessions s ON s.id = r.session_id").
		Join("children c ON c.id = r.child_id").
		OrderBy("s.date DESC", "c.name", "r.id")
	if filter != nil {
		if filter.SessionID != 0 {
			q = q.Where(sq.Eq{"r.session_id": filter.SessionID})
		}
		if filter.ChildID != 0 {
			q = q.Where(sq.Eq{"r.child_id": filter.ChildID})
		}
		if filter.GuardianID != 0 {
			q = q.Join("guardian_children gc ON gc.child_id = r.child_id").Where(sq.Eq{"gc.guardian_id": filter.GuardianID})
		}
		if filter.Limit > 0 {
			q = q.Limit(uint64(filter.Limit))
		}
	}

	var rows []recordRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

func (repo attendanceRepository) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := repo.get(ctx, repo.db, &n, psql.Select("COUNT(*)").From(table)); err != nil {
		return 0, errors.Wrapf(err, "counting %s", table)
	}
	return n, nil
}

func (repo attendanceRepository) CountSessions(ctx context.Context) (int, error) {
	return repo.count(ctx, "attendance_sessions")
}

func (repo attendanceRepository) CountRecords(ctx context.Context) (int, error) {
	return repo.count(ctx, "attendance_records")
}
