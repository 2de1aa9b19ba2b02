// Package attendance keeps the club's meeting sessions and who was present at each of them.
package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

const maxNoteLength = 255

var (
	ErrNotFound = core.NewNotFoundError("attendance session")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id int) (Session, error)
		// QuerySessions returns the sessions newest first.
		QuerySessions(ctx context.Context) ([]Session, error)
		// SaveRecord creates the record of (session, child) or updates it.
		SaveRecord(ctx context.Context, r Record, exec ...core.DBExecutor) (Record, error)
		// QueryRecords is ordered by session date (newest first) then child name.
		QueryRecords(ctx context.Context, filter *RecordFilter) ([]Record, error)
		CountSessions(ctx context.Context) (int, error)
		CountRecords(ctx context.Context) (int, error)
	}

	Service interface {
		Sessions(ctx context.Context) ([]Session, error)
		CreateSession(ctx context.Context, sf SessionForm, createdBy int) (Session, error)
		// Sheet lists the active children expected at the session, with their current marks.
		Sheet(ctx context.Context, sessionID int) (Sheet, error)
		// Mark saves one record per child of the sheet; children left out are marked absent.
		Mark(ctx context.Context, sessionID int, marks []Mark, markedBy int) (int, error)
		ChildRecords(ctx context.Context, childID, limit int) ([]Record, error)
		GuardianRecords(ctx context.Context, guardianID int) ([]Record, error)
		Counts(ctx context.Context) (sessions int, records int, err error)
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

func (svc *service) Sessions(ctx context.Context) ([]Session, error) {
	return svc.repo.QuerySessions(ctx)
}

func (svc *service) CreateSession(ctx context.Context, sf SessionForm, createdBy int) (Session, error) {
	s, err := svc.repo.CreateSession(ctx, Session{
		Date:       sf.Date,
		Type:       sf.Type,
		ClassGroup: sf.ClassGroup,
		CreatedBy:  createdBy,
		CreatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	return s, nil
}

func (svc *service) sheetChildren(ctx context.Context, s Session) ([]child.Child, error) {
	active := true
	kids, err := svc.children.Query(ctx, &child.QueryFilter{ClassGroup: s.ClassGroup, Active: &active})
	if err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	return kids, nil
}

func (svc *service) Sheet(ctx context.Context, sessionID int) (Sheet, error) {
	s, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Sheet{}, err
	}
	kids, err := svc.sheetChildren(ctx, s)
	if err != nil {
		return Sheet{}, err
	}
	records, err := svc.repo.QueryRecords(ctx, &RecordFilter{SessionID: s.ID})
	if err != nil {
		return Sheet{}, errors.Wrap(err, "querying records")
	}
	byChild := make(map[int]Record, len(records))
	for _, r := range records {
		byChild[r.ChildID] = r
	}

	sheet := Sheet{Session: s, Entries: make([]SheetEntry, 0, len(kids))}
	for _, c := range kids {
		entry := SheetEntry{Child: c}
		if r, ok := byChild[c.ID]; ok {
			entry.Present, entry.Note, entry.Marked = r.Present, r.Note, true
		}
		sheet.Entries = append(sheet.Entries, entry)
	}
	return sheet, nil
}

func (svc *service) Mark(ctx context.Context, sessionID int, marks []Mark, markedBy int) (int, error) {
	s, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	kids, err := svc.sheetChildren(ctx, s)
	if err != nil {
		return 0, err
	}
	byChild := make(map[int]Mark, len(marks))
	for _, m := range marks {
		byChild[m.ChildID] = m
	}

	now := NowFunc().UTC()
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, c := range kids {
			m := byChild[c.ID]
			_, err := svc.repo.SaveRecord(ctx, Record{
				SessionID: s.ID,
				ChildID:   c.ID,
				Present:   m.Present,
				Note:      core.Truncate(core.CleanString(m.Note), maxNoteLength),
				MarkedBy:  markedBy,
				MarkedAt:  now,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "saving attendance of child %d", c.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(kids), nil
}

func (svc *service) ChildRecords(ctx context.Context, childID, limit int) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, &RecordFilter{ChildID: childID, Limit: limit})
}

func (svc *service) GuardianRecords(ctx context.Context, guardianID int) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, &RecordFilter{GuardianID: guardianID})
}

func (svc *service) Counts(ctx context.Context) (int, int, error) {
	sessions, err := svc.repo.CountSessions(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting sessions")
	}
	records, err := svc.repo.CountRecords(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting records")
	}
	return sessions, records, nil
}
