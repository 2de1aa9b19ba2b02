// Package curriculum plans the class contents and tracks each child's progress on them.
package curriculum

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

var (
	ErrNotFound       = core.NewNotFoundError("content item")
	ErrScheduleExists = core.NewValidationError(errors.New("este conteúdo já está planejado para esta classe nesta data"))

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateContent(ctx context.Context, item ContentItem) (ContentItem, error)
		UpdateContent(ctx context.Context, item ContentItem) (ContentItem, error)
		GetContent(ctx context.Context, id int) (ContentItem, error)
		// QueryContent is ordered by order then title.
		QueryContent(ctx context.Context, filter *ContentFilter) ([]ContentItem, error)
		// CreateSchedule returns ErrScheduleExists when (class group, content, date) is taken.
		CreateSchedule(ctx context.Context, s ClassSchedule) (ClassSchedule, error)
		// QuerySchedules is ordered by planned date then class group.
		QuerySchedules(ctx context.Context, filter *ScheduleFilter) ([]ClassSchedule, error)
		// SaveProgress creates the progress of (child, content) or updates it.
		SaveProgress(ctx context.Context, p ChildProgress, exec ...core.DBExecutor) (ChildProgress, error)
		QueryProgress(ctx context.Context, filter *ProgressFilter) ([]ChildProgress, error)
	}

	Service interface {
		Contents(ctx context.Context, filter *ContentFilter) ([]ContentItem, error)
		Content(ctx context.Context, id int) (ContentItem, error)
		CreateContent(ctx context.Context, cf ContentForm) (ContentItem, error)
		UpdateContent(ctx context.Context, id int, cf ContentForm) (ContentItem, error)
		Schedules(ctx context.Context, filter *ScheduleFilter) ([]ClassSchedule, error)
		CreateSchedule(ctx context.Context, sf ScheduleForm, createdBy int) (ClassSchedule, error)
		// Sheet lists the active children of a class group with their progress on a content item.
		Sheet(ctx context.Context, classGroup string, contentID int) (Sheet, error)
		// Mark saves the progress of the children of the sheet that were given a status.
		Mark(ctx context.Context, pf ProgressForm, markedBy int) (int, error)
		ChildProgress(ctx context.Context, childID, limit int) ([]ChildProgress, error)
		GuardianProgress(ctx context.Context, guardianID int) ([]ChildSheet, error)
	}

	service struct {
		repo     Repository
		children child.Service
		tx       core.Transactor
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, children child.Service, tx core.Transactor, logger core.Logger) Service {
	return &service{repo: repo, children: children, tx: tx, logger: logger}
}

func (svc *service) Contents(ctx context.Context, filter *ContentFilter) ([]ContentItem, error) {
	return svc.repo.QueryContent(ctx, filter)
}

func (svc *service) Content(ctx context.Context, id int) (ContentItem, error) {
	return svc.repo.GetContent(ctx, id)
}

func (svc *service) CreateContent(ctx context.Context, cf ContentForm) (ContentItem, error) {
	item := ContentItem{Order: 1, Active: true}
	cf.apply(&item)
	item, err := svc.repo.CreateContent(ctx, item)
	if err != nil {
		return ContentItem{}, errors.Wrap(err, "creating content item")
	}
	return item, nil
}

func (svc *service) UpdateContent(ctx context.Context, id int, cf ContentForm) (ContentItem, error) {
	item, err := svc.repo.GetContent(ctx, id)
	if err != nil {
		return ContentItem{}, err
	}
	cf.apply(&item)
	if item, err = svc.repo.UpdateContent(ctx, item); err != nil {
		return ContentItem{}, errors.Wrap(err, "updating content item")
	}
	return item, nil
}

func (svc *service) Schedules(ctx context.Context, filter *ScheduleFilter) ([]ClassSchedule, error) {
	if filter != nil {
		filter.ClassGroup = core.CleanString(filter.ClassGroup)
	}
	return svc.repo.QuerySchedules(ctx, filter)
}

func (svc *service) CreateSchedule(ctx context.Context, sf ScheduleForm, createdBy int) (ClassSchedule, error) {
	item, err := svc.repo.GetContent(ctx, sf.ContentItemID)
	if err != nil {
		return ClassSchedule{}, err
	}
	status := sf.Status
	if status == "" {
		status = SchedulePlanejado
	}
	s, err := svc.repo.CreateSchedule(ctx, ClassSchedule{
		ClassGroup:    sf.ClassGroup,
		ContentItemID: item.ID,
		PlannedDate:   sf.PlannedDate,
		Status:        status,
		CreatedBy:     createdBy,
		CreatedAt:     NowFunc().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrScheduleExists) {
			return ClassSchedule{}, err
		}
		return ClassSchedule{}, errors.Wrap(err, "creating schedule")
	}
	s.ContentTitle = item.Title
	return s, nil
}

func (svc *service) classChildren(ctx context.Context, classGroup string) ([]child.Child, error) {
	active := true
	kids, err := svc.children.Query(ctx, &child.QueryFilter{ClassGroup: classGroup, Active: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	return kids, nil
}

func (svc *service) Sheet(ctx context.Context, classGroup string, contentID int) (Sheet, error) {
	item, err := svc.repo.GetContent(ctx, contentID)
	if err != nil {
		return Sheet{}, err
	}
	kids, err := svc.classChildren(ctx, classGroup)
	if err != nil {
		return Sheet{}, err
	}
	ids := make([]int, len(kids))
	for i, c := range kids {
		ids[i] = c.ID
	}
	byChild := map[int]ChildProgress{}
	if len(ids) > 0 {
		progress, err := svc.repo.QueryProgress(ctx, &ProgressFilter{ChildIDs: ids, ContentItemID: item.ID})
		if err != nil {
			return Sheet{}, errors.Wrap(err, "querying progress")
		}
		for _, p := range progress {
			byChild[p.ChildID] = p
		}
	}

	sheet := Sheet{Content: item, ClassGroup: classGroup, Entries: make([]SheetEntry, 0, len(kids))}
	for _, c := range kids {
		entry := SheetEntry{Child: c, Status: ProgressNaoIniciado}
		if p, ok := byChild[c.ID]; ok {
			entry.Status, entry.Note = p.Status, p.Note
		}
		sheet.Entries = append(sheet.Entries, entry)
	}
	return sheet, nil
}

func (svc *service) Mark(ctx context.Context, pf ProgressForm, markedBy int) (int, error) {
	item, err := svc.repo.GetContent(ctx, pf.ContentItemID)
	if err != nil {
		return 0, err
	}
	kids, err := svc.classChildren(ctx, pf.ClassGroup)
	if err != nil {
		return 0, err
	}
	inClass := make(map[int]bool, len(kids))
	for _, c := range kids {
		inClass[c.ID] = true
	}

	updated := 0
	now := NowFunc().UTC()
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, m := range pf.Marks {
			if m.Status == "" || !inClass[m.ChildID] {
				continue
			}
			_, err := svc.repo.SaveProgress(ctx, ChildProgress{
				ChildID:       m.ChildID,
				ContentItemID: item.ID,
				Status:        m.Status,
				Note:          core.Truncate(core.CleanString(m.Note), 255),
				MarkedBy:      markedBy,
				MarkedAt:      now,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "saving progress of child %d", m.ChildID)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (svc *service) ChildProgress(ctx context.Context, childID, limit int) ([]ChildProgress, error) {
	return svc.repo.QueryProgress(ctx, &ProgressFilter{ChildIDs: []int{childID}, Limit: limit, LatestFirst: limit > 0})
}

func (svc *service) GuardianProgress(ctx context.Context, guardianID int) ([]ChildSheet, error) {
	kids, err := svc.children.GuardianChildren(ctx, guardianID)
	if err != nil {
		return nil, errors.Wrap(err, "querying guardian children")
	}
	sheets := make([]ChildSheet, 0, len(kids))
	for _, c := range kids {
		progress, err := svc.repo.QueryProgress(ctx, &ProgressFilter{ChildIDs: []int{c.ID}})
		if err != nil {
			return nil, errors.Wrapf(err, "querying progress of child %d", c.ID)
		}
		sheets = append(sheets, ChildSheet{Child: c, Progress: progress})
	}
	return sheets, nil
}
