// Package report builds the read-only views that span several domains: director reports,
// the child overview and the per-role dashboards.
package report

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/user"
)

const (
	overviewFees  = 6
	overviewItems = 5
)

var dashboardTitles = map[string]string{
	user.RoleADM:         "Configurações",
	user.RoleDiretoria:   "Diretoria",
	user.RoleSecretaria:  "Secretaria",
	user.RoleTesoureiro:  "Tesoureiro",
	user.RoleProfessor:   "Professor",
	user.RoleResponsavel: "Responsável",
}

type (
	Count struct {
		Key   string `json:"key"`
		Total int    `json:"total"`
	}

	FeeTotals struct {
		Amount   decimal.Decimal `json:"total_amount"`
		Discount decimal.Decimal `json:"total_discount"`
		Final    decimal.Decimal `json:"total_final"`
	}

	DirectorReport struct {
		UsersCount       int       `json:"users_count"`
		UsersByRole      []Count   `json:"users_by_role"`
		ChildrenCount    int       `json:"children_count"`
		ChildrenByClass  []Count   `json:"children_by_class"`
		FeeCounts        []Count   `json:"fee_counts"`
		FeeTotals        FeeTotals `json:"fee_totals"`
		PointsTotal      int       `json:"points_total"`
		SessionsCount    int       `json:"sessions_count"`
		AttendanceMarked int       `json:"attendance_marked"`
	}

	ChildOverview struct {
		Child       child.Child                `json:"child"`
		Fees        []finance.Fee              `json:"fees"`
		PointsLast  []points.Entry             `json:"points_last"`
		PointsTotal int                        `json:"points_total"`
		Attendance  []attendance.Record        `json:"attendance_last"`
		Documents   []document.Document        `json:"documents"`
		Progress    []curriculum.ChildProgress `json:"progress_records"`
		Guardians   []child.GuardianLink       `json:"guardians"`
	}

	Dashboard struct {
		Role     string                 `json:"role"`
		Title    string                 `json:"title"`
		Redirect string                 `json:"redirect"`
		Counters map[string]interface{} `json:"counters"`
	}

	ConfigView struct {
		AppName string      `json:"app_name"`
		Env     string      `json:"env"`
		Build   string      `json:"build"`
		Roles   []user.Role `json:"roles"`
	}

	Service interface {
		Director(ctx context.Context) (DirectorReport, error)
		// ChildOverview gathers the latest records of a child. A non-zero guardianID must be linked to the child.
		ChildOverview(ctx context.Context, childID, guardianID int) (ChildOverview, error)
		Dashboard(ctx context.Context, usr user.User, role string) (Dashboard, error)
		Config() ConfigView
	}

	service struct {
		users      user.Service
		children   child.Service
		fees       finance.Service
		points     points.Service
		attendance attendance.Service
		curriculum curriculum.Service
		documents  document.Service
		conf       *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	users user.Service,
	children child.Service,
	fees finance.Service,
	pointsSvc points.Service,
	attendanceSvc attendance.Service,
	curriculumSvc curriculum.Service,
	documents document.Service,
	conf *core.Config,
) Service {
	return &service{
		users:      users,
		children:   children,
		fees:       fees,
		points:     pointsSvc,
		attendance: attendanceSvc,
		curriculum: curriculumSvc,
		documents:  documents,
		conf:       conf,
	}
}

func (svc *service) Director(ctx context.Context) (DirectorReport, error) {
	var rep DirectorReport

	users, err := svc.users.Query(ctx, nil)
	if err != nil {
		return rep, errors.Wrap(err, "querying users")
	}
	rep.UsersCount = len(users)
	rep.UsersByRole = countBy(len(users), func(i int) string { return users[i].Role })

	kids, err := svc.children.Query(ctx, nil)
	if err != nil {
		return rep, errors.Wrap(err, "querying children")
	}
	rep.ChildrenCount = len(kids)
	rep.ChildrenByClass = countBy(len(kids), func(i int) string { return kids[i].ClassGroup })

	fees, err := svc.fees.Query(ctx, nil)
	if err != nil {
		return rep, errors.Wrap(err, "querying fees")
	}
	rep.FeeCounts = countBy(len(fees), func(i int) string { return fees[i].Status })
	for _, f := range fees {
		rep.FeeTotals.Amount = rep.FeeTotals.Amount.Add(f.Amount)
		rep.FeeTotals.Discount = rep.FeeTotals.Discount.Add(f.DiscountAmount)
		rep.FeeTotals.Final = rep.FeeTotals.Final.Add(f.FinalAmount)
	}

	if rep.PointsTotal, err = svc.points.Total(ctx); err != nil {
		return rep, errors.Wrap(err, "summing points")
	}
	if rep.SessionsCount, rep.AttendanceMarked, err = svc.attendance.Counts(ctx); err != nil {
		return rep, err
	}
	return rep, nil
}

// countBy counts n items by key, ordered by key.
func countBy(n int, key func(i int) string) []Count {
	totals := map[string]int{}
	for i := 0; i < n; i++ {
		totals[key(i)]++
	}
	counts := make([]Count, 0, len(totals))
	for k, total := range totals {
		counts = append(counts, Count{Key: k, Total: total})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Key < counts[j].Key })
	return counts
}

func (svc *service) ChildOverview(ctx context.Context, childID, guardianID int) (ChildOverview, error) {
	if guardianID != 0 {
		if err := svc.children.CheckGuardian(ctx, guardianID, childID); err != nil {
			return ChildOverview{}, err
		}
	}
	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		return ChildOverview{}, err
	}
	ov := ChildOverview{Child: c}

	if ov.Fees, err = svc.fees.ChildFees(ctx, c.ID); err != nil {
		return ChildOverview{}, err
	}
	if len(ov.Fees) > overviewFees {
		ov.Fees = ov.Fees[:overviewFees]
	}
	st, err := svc.points.Statement(ctx, c.ID, overviewItems)
	if err != nil {
		return ChildOverview{}, err
	}
	ov.PointsLast, ov.PointsTotal = st.Entries, st.Total

	if ov.Attendance, err = svc.attendance.ChildRecords(ctx, c.ID, overviewItems); err != nil {
		return ChildOverview{}, errors.Wrap(err, "querying attendance")
	}
	if ov.Documents, err = svc.documents.Recent(ctx, c.ID, overviewItems); err != nil {
		return ChildOverview{}, errors.Wrap(err, "querying documents")
	}
	if ov.Progress, err = svc.curriculum.ChildProgress(ctx, c.ID, overviewItems); err != nil {
		return ChildOverview{}, errors.Wrap(err, "querying progress")
	}
	if ov.Guardians, err = svc.children.Guardians(ctx, c.ID); err != nil {
		return ChildOverview{}, errors.Wrap(err, "querying guardians")
	}
	return ov, nil
}

func (svc *service) Dashboard(ctx context.Context, usr user.User, role string) (Dashboard, error) {
	d := Dashboard{
		Role:     role,
		Title:    dashboardTitles[role],
		Redirect: user.RedirectFor(role),
		Counters: map[string]interface{}{},
	}
	active := true

	switch role {
	case user.RoleDiretoria:
		inactive := false
		pending, err := svc.users.Query(ctx, &user.QueryFilter{IsActive: &inactive})
		if err != nil {
			return d, err
		}
		kids, err := svc.children.Query(ctx, &child.QueryFilter{Active: &active})
		if err != nil {
			return d, err
		}
		sum, err := svc.fees.Summary(ctx)
		if err != nil {
			return d, err
		}
		d.Counters["pending_activation"] = len(pending)
		d.Counters["active_children"] = len(kids)
		d.Counters["overdue_fees"] = sum.Overdue

	case user.RoleSecretaria:
		kids, err := svc.children.Query(ctx, &child.QueryFilter{Active: &active})
		if err != nil {
			return d, err
		}
		ov, err := svc.documents.Overview(ctx)
		if err != nil {
			return d, err
		}
		pending := 0
		for _, n := range ov.Pending {
			pending += n
		}
		d.Counters["active_children"] = len(kids)
		d.Counters["pending_documents"] = pending

	case user.RoleTesoureiro:
		sum, err := svc.fees.Summary(ctx)
		if err != nil {
			return d, err
		}
		d.Counters["pagos"] = sum.Paid
		d.Counters["pendentes"] = sum.Pending
		d.Counters["atrasados"] = sum.Overdue
		d.Counters["outstanding_total"] = sum.OutstandingTotal

	case user.RoleProfessor:
		sessions, _, err := svc.attendance.Counts(ctx)
		if err != nil {
			return d, err
		}
		items, err := svc.curriculum.Contents(ctx, &curriculum.ContentFilter{Active: &active})
		if err != nil {
			return d, err
		}
		d.Counters["sessions"] = sessions
		d.Counters["content_items"] = len(items)

	case user.RoleResponsavel:
		finances, err := svc.fees.GuardianFinances(ctx, usr.ID)
		if err != nil {
			return d, err
		}
		statements, err := svc.points.GuardianStatements(ctx, usr.ID)
		if err != nil {
			return d, err
		}
		open := decimal.Zero
		for _, cf := range finances {
			open = open.Add(cf.OpenTotal)
		}
		total := 0
		for _, st := range statements {
			total += st.Total
		}
		d.Counters["children"] = len(finances)
		d.Counters["open_total"] = open
		d.Counters["points_total"] = total
	}
	return d, nil
}

func (svc *service) Config() ConfigView {
	return ConfigView{
		AppName: svc.conf.AppName,
		Env:     svc.conf.Env,
		Build:   svc.conf.Build,
		Roles:   user.Roles,
	}
}
