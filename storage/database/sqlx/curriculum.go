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
	"github.com/pinhaljunior/aventureiros/core/curriculum"
)

var contentColumns = []string{"id", "title", "description", "sort_order", "module", "active"}

type contentRow struct {
	ID          int    `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Order       int    `db:"sort_order"`
	Module      string `db:"module"`
	Active      bool   `db:"active"`
}

type scheduleRow struct {
	ID            int       `db:"id"`
	ClassGroup    string    `db:"class_group"`
	ContentItemID int       `db:"content_item_id"`
	PlannedDate   core.Date `db:"planned_date"`
	Status        string    `db:"status"`
	CreatedBy     null.Int  `db:"created_by"`
	CreatedAt     time.Time `db:"created_at"`

	ContentTitle null.String `db:"content_title"`
}

func (r scheduleRow) schedule() curriculum.ClassSchedule {
	return curriculum.ClassSchedule{
		ID:            r.ID,
		ClassGroup:    r.ClassGroup,
		ContentItemID: r.ContentItemID,
		PlannedDate:   r.PlannedDate,
		Status:        r.Status,
		CreatedBy:     r.CreatedBy.Int,
		CreatedAt:     r.CreatedAt.UTC(),
		ContentTitle:  r.ContentTitle.String,
	}
}

type progressRow struct {
	ID            int       `db:"id"`
	ChildID       int       `db:"child_id"`
	ContentItemID int       `db:"content_item_id"`
	Status        string    `db:"status"`
	Note          string    `db:"note"`
	MarkedBy      null.Int  `db:"marked_by"`
	MarkedAt      time.Time `db:"marked_at"`

	ChildName    string `db:"child_name"`
	ContentTitle string `db:"content_title"`
	ContentOrder int    `db:"content_order"`
}

func (r progressRow) progress() curriculum.ChildProgress {
	return curriculum.ChildProgress{
		ID:            r.ID,
		ChildID:       r.ChildID,
		ContentItemID: r.ContentItemID,
		Status:        r.Status,
		Note:          r.Note,
		MarkedBy:      r.MarkedBy.Int,
		MarkedAt:      r.MarkedAt.UTC(),
		ChildName:     r.ChildName,
		ContentTitle:  r.ContentTitle,
		ContentOrder:  r.ContentOrder,
	}
}

type curriculumRepository struct {
	base
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *sqlx.DB) *curriculumRepository {
	return &curriculumRepository{base{db: db}}
}

func (repo curriculumRepository) CreateContent(ctx context.Context, item curriculum.ContentItem) (curriculum.ContentItem, error) {
	var row contentRow
	q := psql.Insert("content_items").
		Columns("title", "description", "sort_order", "module", "active").
		Values(item.Title, item.Description, item.Order, item.Module, item.Active).
		Suffix("RETURNING " + strings.Join(contentColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return curriculum.ContentItem{}, errors.Wrap(err, "inserting content item")
	}
	return curriculum.ContentItem(row), nil
}

func (repo curriculumRepository) UpdateContent(ctx context.Context, item curriculum.ContentItem) (curriculum.ContentItem, error) {
	var row contentRow
	q := psql.Update("content_items").
		Set("title", item.Title).
		Set("description", item.Description).
		Set("sort_order", item.Order).
		Set("module", item.Module).
		Set("active", item.Active).
		Where(sq.Eq{"id": item.ID}).
		Suffix("RETURNING " + strings.Join(contentColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return curriculum.ContentItem{}, trapNoRowsErr(err, curriculum.ErrNotFound, "updating content item")
	}
	return curriculum.ContentItem(row), nil
}

func (repo curriculumRepository) GetContent(ctx context.Context, id int) (curriculum.ContentItem, error) {
	var row contentRow
	q := psql.Select(contentColumns...).From("content_items").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return curriculum.ContentItem{}, trapNoRowsErr(err, curriculum.ErrNotFound, "getting content item")
	}
	return curriculum.ContentItem(row), nil
}

func (repo curriculumRepository) QueryContent(ctx context.Context, filter *curriculum.ContentFilter) ([]curriculum.ContentItem, error) {
	q := psql.Select(contentColumns...).From("content_items").OrderBy("sort_order", "title")
	if filter != nil && filter.Active != nil {
		q = q.Where(sq.Eq{"active": *filter.Active})
	}

	var rows []contentRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying content items")
	}
	items := make([]curriculum.ContentItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, curriculum.ContentItem(r))
	}
	return items, nil
}

func (repo curriculumRepository) CreateSchedule(ctx context.Context, s curriculum.ClassSchedule) (curriculum.ClassSchedule, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	var id int
	q := psql.Insert("class_schedules").
		Columns("class_group", "content_item_id", "planned_date", "status", "created_by", "created_at").
		Values(s.ClassGroup, s.ContentItemID, s.PlannedDate, s.Status, nullID(s.CreatedBy), s.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, repo.db, &id, q); err != nil {
		if isUniqueViolation(err) {
			return curriculum.ClassSchedule{}, curriculum.ErrScheduleExists
		}
		return curriculum.ClassSchedule{}, errors.Wrap(err, "inserting class schedule")
	}
	s.ID = id
	return s, nil
}

func (repo curriculumRepository) QuerySchedules(ctx context.Context, filter *curriculum.ScheduleFilter) ([]curriculum.ClassSchedule, error) {
	q := psql.Select(
		"s.id", "s.class_group", "s.content_item_id", "s.planned_date", "s.status", "s.created_by", "s.created_at",
		"ci.title AS content_title",
	).
		From("class_schedules s").
		LeftJoin("content_items ci ON ci.id = s.content_item_id").
		OrderBy("s.planned_date", "s.class_group", "s.id")
	if filter != nil && filter.ClassGroup != "" {
		q = q.Where(sq.Eq{"s.class_group": filter.ClassGroup})
	}

	var rows []scheduleRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying class schedules")
	}
	schedules := make([]curriculum.ClassSchedule, 0, len(rows))
	for _, r := range rows {
		schedules = append(schedules, r.schedule())
	}
	return schedules, nil
}

func (repo curriculumRepository) SaveProgress(ctx context.Context, p curriculum.ChildProgress, exec ...core.DBExecutor) (curriculum.ChildProgress, error) {
	if p.MarkedAt.IsZero() {
		p.MarkedAt = time.Now().UTC()
	}
	var id int
	q := psql.Insert("child_progress").
		Columns("child_id", "content_item_id", "status", "note", "marked_by", "marked_at").
		Values(p.ChildID, p.ContentItemID, p.Status, p.Note, nullID(p.MarkedBy), p.MarkedAt.UTC()).
		Suffix(`ON CONFLICT (child_id, content_item_id) DO UPDATE SET
			status = EXCLUDED.status,
			note = EXCLUDED.note,
			marked_by = EXCLUDED.marked_by,
			marked_at = EXCLUDED.marked_at
			RETURNING id`)
	if err := repo.get(ctx, repo.getExec(exec), &id, q); err != nil {
		return curriculum.ChildProgress{}, errors.Wrap(err, "saving child progress")
	}
	p.ID = id
	return p, nil
}

func (repo curriculumRepository) QueryProgress(ctx context.Context, filter *curriculum.ProgressFilter) ([]curriculum.ChildProgress, error) {
	q := psql.Select(
		"p.id", "p.child_id", "p.content_item_id", "p.status", "p.note", "p.marked_by", "p.marked_at",
		"c.name AS child_name", "ci.title AS content_title", "ci.sort_order AS content_order",
	).
		From("child_progress p").
		Join("children c ON c.id = p.child_id").
		Join("content_items ci ON ci.id = p.content_item_id")
	if filter != nil {
		if len(filter.ChildIDs) > 0 {
			q = q.Where(sq.Eq{"p.child_id": filter.ChildIDs})
		}
		if filter.ContentItemID != 0 {
			q = q.Where(sq.Eq{"p.content_item_id": filter.ContentItemID})
		}
		if filter.Limit > 0 {
			q = q.Limit(uint64(filter.Limit))
		}
	}
	if filter != nil && filter.LatestFirst {
		q = q.OrderBy("p.marked_at DESC", "p.id DESC")
	} else {
		q = q.OrderBy("c.name", "ci.sort_order", "ci.title")
	}

	var rows []progressRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying child progress")
	}
	progress := make([]curriculum.ChildProgress, 0, len(rows))
	for _, r := range rows {
		progress = append(progress, r.progress())
	}
	return progress, nil
}
