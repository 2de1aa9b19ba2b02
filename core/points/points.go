// Package points is the merit points ledger of the children.
package points

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

const RecentLimit = 20

var (
	ErrNoChildren = core.NewFieldError("children", "Selecione pelo menos um aventureiro.")

	NowFunc = time.Now // mockable
)

type (
	Entry struct {
		ID        int       `json:"id"`
		ChildID   int       `json:"child_id"`
		Points    int       `json:"points"`
		Reason    string    `json:"reason"`
		CreatedBy int       `json:"created_by,omitempty"`
		CreatedAt time.Time `json:"created_at"`

		// read only
		ChildName     string `json:"child_name,omitempty"`
		ClassGroup    string `json:"class_group,omitempty"`
		CreatedByName string `json:"created_by_name,omitempty"`
	}

	EntryForm struct {
		ChildID int    `json:"child_id" validate:"required"`
		Points  int    `json:"points" validate:"required"`
		Reason  string `json:"reason" validate:"max=255"`
	}

	// BatchForm gives the same points to the selected children of a class group (any class when empty).
	BatchForm struct {
		ClassGroup string `json:"class_group" validate:"omitempty,classgroup"`
		ChildIDs   []int  `json:"children"`
		Points     int    `json:"points" validate:"required"`
		Reason     string `json:"reason" validate:"required,max=255"`
	}

	Filter struct {
		ClassGroup string    `query:"class_group"`
		ChildID    int       `query:"child_id"`
		From       core.Date `query:"from"`
		To         core.Date `query:"to"`
		ChildIDs   []int
		GuardianID int
		Limit      int
	}

	Statement struct {
		Child   child.Child `json:"child"`
		Entries []Entry     `json:"entries"`
		Total   int         `json:"total"`
	}

	ChildTotal struct {
		ChildID    int    `json:"child_id"`
		ChildName  string `json:"child_name"`
		ClassGroup string `json:"class_group"`
		Total      int    `json:"total"`
	}

	Extract struct {
		Entries []Entry      `json:"entries"`
		Totals  []ChildTotal `json:"totals"`
		Total   int          `json:"total"`
	}

	Repository interface {
		CreateEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		// QueryEntries is ordered newest first.
		QueryEntries(ctx context.Context, filter *Filter) ([]Entry, error)
		SumPoints(ctx context.Context) (int, error)
	}

	Service interface {
		Recent(ctx context.Context) ([]Entry, error)
		Add(ctx context.Context, ef EntryForm, createdBy int) (Entry, error)
		AddBatch(ctx context.Context, bf BatchForm, createdBy int) (int, error)
		Statement(ctx context.Context, childID, limit int) (Statement, error)
		GuardianStatements(ctx context.Context, guardianID int) ([]Statement, error)
		Extract(ctx context.Context, filter *Filter) (Extract, error)
		Total(ctx context.Context) (int, error)
	}

	service struct {
		repo     Repository
		children child.Service
		tx       core.Transactor
		logger   core.Logger
	}
)

func (ef *EntryForm) Validate(validate *validator.Validate) error {
	ef.Reason = core.CleanString(ef.Reason)
	return validate.Struct(ef)
}

func (bf *BatchForm) Validate(validate *validator.Validate) error {
	bf.ClassGroup = core.CleanString(bf.ClassGroup)
	bf.Reason = core.CleanString(bf.Reason)
	if err := validate.Struct(bf); err != nil {
		return err
	}
	if len(bf.ChildIDs) == 0 {
		return ErrNoChildren
	}
	return nil
}

var _ Service = (*service)(nil)

func NewService(repo Repository, children child.Service, tx core.Transactor, logger core.Logger) Service {
	return &service{repo: repo, children: children, tx: tx, logger: logger}
}

func (svc *service) Recent(ctx context.Context) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, &Filter{Limit: RecentLimit})
}

func (svc *service) Add(ctx context.Context, ef EntryForm, createdBy int) (Entry, error) {
	c, err := svc.children.Get(ctx, ef.ChildID)
	if err != nil {
		return Entry{}, err
	}
	e, err := svc.repo.CreateEntry(ctx, Entry{
		ChildID:   c.ID,
		Points:    ef.Points,
		Reason:    ef.Reason,
		CreatedBy: createdBy,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Entry{}, errors.Wrap(err, "creating points entry")
	}
	e.ChildName = c.Name
	return e, nil
}

// AddBatch creates one entry per selected child. Selected ids outside the class group (or inactive) are skipped.
func (svc *service) AddBatch(ctx context.Context, bf BatchForm, createdBy int) (int, error) {
	if len(bf.ChildIDs) == 0 {
		return 0, ErrNoChildren
	}
	active := true
	kids, err := svc.children.Query(ctx, &child.QueryFilter{ClassGroup: bf.ClassGroup, Active: &active, IDs: bf.ChildIDs})
	if err != nil {
		return 0, errors.Wrap(err, "querying children")
	}
	if len(kids) == 0 {
		return 0, ErrNoChildren
	}

	now := NowFunc().UTC()
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, c := range kids {
			_, err := svc.repo.CreateEntry(ctx, Entry{
				ChildID:   c.ID,
				Points:    bf.Points,
				Reason:    bf.Reason,
				CreatedBy: createdBy,
				CreatedAt: now,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "creating points entry of child %d", c.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(kids), nil
}

// Statement returns the child's entries (the latest `limit` ones when limit > 0) and the child's total.
func (svc *service) Statement(ctx context.Context, childID, limit int) (Statement, error) {
	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		return Statement{}, err
	}
	entries, err := svc.repo.QueryEntries(ctx, &Filter{ChildID: c.ID})
	if err != nil {
		return Statement{}, errors.Wrap(err, "querying points")
	}
	st := Statement{Child: c, Entries: entries}
	for _, e := range entries {
		st.Total += e.Points
	}
	if limit > 0 && len(st.Entries) > limit {
		st.Entries = st.Entries[:limit]
	}
	return st, nil
}

func (svc *service) GuardianStatements(ctx context.Context, guardianID int) ([]Statement, error) {
	kids, err := svc.children.GuardianChildren(ctx, guardianID)
	if err != nil {
		return nil, errors.Wrap(err, "querying guardian children")
	}
	statements := make([]Statement, 0, len(kids))
	for _, c := range kids {
		st, err := svc.Statement(ctx, c.ID, 0)
		if err != nil {
			return nil, err
		}
		statements = append(statements, st)
	}
	return statements, nil
}

func (svc *service) Extract(ctx context.Context, filter *Filter) (Extract, error) {
	if filter == nil {
		filter = &Filter{}
	}
	filter.ClassGroup = core.CleanString(filter.ClassGroup)
	entries, err := svc.repo.QueryEntries(ctx, filter)
	if err != nil {
		return Extract{}, errors.Wrap(err, "querying points")
	}
	return Extract{Entries: entries, Totals: totalsByChild(entries), Total: sum(entries)}, nil
}

func (svc *service) Total(ctx context.Context) (int, error) {
	return svc.repo.SumPoints(ctx)
}

// totalsByChild sums the entries per child, highest total first (ties by child name).
func totalsByChild(entries []Entry) []ChildTotal {
	byChild := map[int]*ChildTotal{}
	var totals []*ChildTotal
	for _, e := range entries {
		ct, ok := byChild[e.ChildID]
		if !ok {
			ct = &ChildTotal{ChildID: e.ChildID, ChildName: e.ChildName, ClassGroup: e.ClassGroup}
			byChild[e.ChildID] = ct
			totals = append(totals, ct)
		}
		ct.Total += e.Points
	}
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].ChildName < totals[j].ChildName
	})

	res := make([]ChildTotal, len(totals))
	for i, ct := range totals {
		res[i] = *ct
	}
	return res
}

func sum(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Points
	}
	return total
}
