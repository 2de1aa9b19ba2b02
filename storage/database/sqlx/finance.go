package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/finance"
)

var (
	feeColumns = []string{
		"id", "child_id", "reference_month", "amount", "discount_amount", "final_amount",
		"due_date", "status", "created_at", "updated_at",
	}
	paymentColumns = []string{"id", "fee_id", "amount", "method", "paid_at", "note", "provider_payment_id"}
)

type feeRow struct {
	ID             int             `db:"id"`
	ChildID        int             `db:"child_id"`
	ReferenceMonth string          `db:"reference_month"`
	Amount         decimal.Decimal `db:"amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	FinalAmount    decimal.Decimal `db:"final_amount"`
	DueDate        core.Date       `db:"due_date"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`

	ChildName  null.String `db:"child_name"`
	ClassGroup null.String `db:"class_group"`
}

func (r feeRow) fee() finance.Fee {
	return finance.Fee{
		ID:             r.ID,
		ChildID:        r.ChildID,
		ReferenceMonth: r.ReferenceMonth,
		Amount:         r.Amount,
		DiscountAmount: r.DiscountAmount,
		FinalAmount:    r.FinalAmount,
		DueDate:        r.DueDate,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		ChildName:      r.ChildName.String,
		ClassGroup:     r.ClassGroup.String,
	}
}

type paymentRow struct {
	ID                int             `db:"id"`
	FeeID             int             `db:"fee_id"`
	Amount            decimal.Decimal `db:"amount"`
	Method            string          `db:"method"`
	PaidAt            time.Time       `db:"paid_at"`
	Note              string          `db:"note"`
	ProviderPaymentID null.String     `db:"provider_payment_id"`
}

func (r paymentRow) payment() finance.Payment {
	return finance.Payment{
		ID:                r.ID,
		FeeID:             r.FeeID,
		Amount:            r.Amount,
		Method:            r.Method,
		PaidAt:            r.PaidAt.UTC(),
		Note:              r.Note,
		ProviderPaymentID: r.ProviderPaymentID.String,
	}
}

type financeRepository struct {
	base
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *sqlx.DB) *financeRepository {
	return &financeRepository{base{db: db}}
}

func (repo financeRepository) feeQuery() sq.SelectBuilder {
	cols := append(prefixed("f", feeColumns), "c.name AS child_name", "c.class_group")
	return psql.Select(cols...).From("fees f").Join("children c ON c.id = f.child_id")
}

func (repo financeRepository) GetOrCreateFee(ctx context.Context, f finance.Fee, exec ...core.DBExecutor) (finance.Fee, bool, error) {
	now := time.Now().UTC()
	ext := repo.getExec(exec)

	var ids []int
	ins := psql.Insert("fees").
		Columns("child_id", "reference_month", "amount", "discount_amount", "final_amount", "due_date", "status", "created_at", "updated_at").
		Values(f.ChildID, f.ReferenceMonth, f.Amount, f.DiscountAmount, f.FinalAmount, f.DueDate, f.Status, now, now).
		Suffix("ON CONFLICT (child_id, reference_month) DO NOTHING RETURNING id")
	if err := repo.selectAll(ctx, ext, &ids, ins); err != nil {
		return finance.Fee{}, false, errors.Wrap(err, "inserting fee")
	}

	q := repo.feeQuery()
	if len(ids) > 0 {
		q = q.Where(sq.Eq{"f.id": ids[0]})
	} else {
		q = q.Where(sq.Eq{"f.child_id": f.ChildID, "f.reference_month": f.ReferenceMonth})
	}
	var row feeRow
	if err := repo.get(ctx, ext, &row, q); err != nil {
		return finance.Fee{}, false, trapNoRowsErr(err, finance.ErrNotFound, "getting fee")
	}
	return row.fee(), len(ids) > 0, nil
}

func (repo financeRepository) GetFee(ctx context.Context, id int, exec ...core.DBExecutor) (finance.Fee, error) {
	var row feeRow
	if err := repo.get(ctx, repo.getExec(exec), &row, repo.feeQuery().Where(sq.Eq{"f.id": id})); err != nil {
		return finance.Fee{}, trapNoRowsErr(err, finance.ErrNotFound, "getting fee")
	}
	return row.fee(), nil
}

func (repo financeRepository) filtered(filter *finance.QueryFilter) sq.SelectBuilder {
	q := repo.feeQuery()
	if filter == nil {
		return q.OrderBy("c.name", "f.reference_month DESC", "f.id")
	}
	if filter.ReferenceMonth != "" {
		q = q.Where(sq.Eq{"f.reference_month": filter.ReferenceMonth})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"f.status": filter.Status})
	}
	if filter.ClassGroup != "" {
		q = q.Where(sq.Eq{"c.class_group": filter.ClassGroup})
	}
	if filter.ChildID != 0 {
		q = q.Where(sq.Eq{"f.child_id": filter.ChildID})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(sq.Eq{"f.status": filter.Statuses})
	}
	if len(filter.IDs) > 0 {
		q = q.Where(sq.Eq{"f.id": filter.IDs})
	}
	if filter.OrderByRef {
		return q.OrderBy("f.reference_month DESC", "f.id")
	}
	return q.OrderBy("c.name", "f.reference_month DESC", "f.id")
}

func (repo financeRepository) queryFees(ctx context.Context, exec sqlx.ExtContext, q sq.SelectBuilder) ([]finance.Fee, error) {
	var rows []feeRow
	if err := repo.selectAll(ctx, exec, &rows, q); err != nil {
		return nil, err
	}
	fees := make([]finance.Fee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, r.fee())
	}
	return fees, nil
}

func (repo financeRepository) QueryFees(ctx context.Context, filter *finance.QueryFilter, exec ...core.DBExecutor) ([]finance.Fee, error) {
	fees, err := repo.queryFees(ctx, repo.getExec(exec), repo.filtered(filter))
	return fees, errors.Wrap(err, "querying fees")
}

func (repo financeRepository) LockFees(ctx context.Context, filter *finance.QueryFilter, exec ...core.DBExecutor) ([]finance.Fee, error) {
	fees, err := repo.queryFees(ctx, repo.getExec(exec), repo.filtered(filter).Suffix("FOR UPDATE OF f"))
	return fees, errors.Wrap(err, "locking fees")
}

func (repo financeRepository) UpdateFee(ctx context.Context, f finance.Fee, exec ...core.DBExecutor) (finance.Fee, error) {
	ext := repo.getExec(exec)
	q := psql.Update("fees").
		Set("amount", f.Amount).
		Set("discount_amount", f.DiscountAmount).
		Set("final_amount", f.FinalAmount).
		Set("due_date", f.DueDate).
		Set("status", f.Status).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": f.ID})
	res, err := repo.exec(ctx, ext, q)
	if err != nil {
		return finance.Fee{}, errors.Wrap(err, "updating fee")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return finance.Fee{}, finance.ErrNotFound
	}
	return repo.GetFee(ctx, f.ID, exec...)
}

func (repo financeRepository) CreatePayment(ctx context.Context, p finance.Payment, exec ...core.DBExecutor) (finance.Payment, error) {
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	var row paymentRow
	q := psql.Insert("payments").
		Columns("fee_id", "amount", "method", "paid_at", "note", "provider_payment_id").
		Values(p.FeeID, p.Amount, p.Method, p.PaidAt.UTC(), p.Note, nullString(p.ProviderPaymentID)).
		Suffix("RETURNING " + strings.Join(paymentColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return finance.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return row.payment(), nil
}

func (repo financeRepository) QueryPayments(ctx context.Context, feeID int) ([]finance.Payment, error) {
	var rows []paymentRow
	q := psql.Select(paymentColumns...).From("payments").Where(sq.Eq{"fee_id": feeID}).OrderBy("paid_at DESC", "id DESC")
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]finance.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.payment())
	}
	return payments, nil
}
