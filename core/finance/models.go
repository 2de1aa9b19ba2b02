package finance

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/payment"
)

// Fee statuses
const (
	StatusPendente   = "PENDENTE"
	StatusPago       = "PAGO"
	StatusAtrasado   = "ATRASADO"
	StatusIsento     = "ISENTO"
	StatusNegociacao = "EM_NEGOCIACAO"
)

const MethodPix = "PIX"

var (
	Statuses = []string{StatusPendente, StatusPago, StatusAtrasado, StatusIsento, StatusNegociacao}

	// DiscountableStatuses are the statuses a discount may still be applied to.
	DiscountableStatuses = []string{StatusPendente, StatusAtrasado, StatusNegociacao}

	StatusLabels = map[string]string{
		StatusPendente:   "Pendente",
		StatusPago:       "Pago",
		StatusAtrasado:   "Atrasado",
		StatusIsento:     "Isento",
		StatusNegociacao: "Em negociação",
	}

	hundred = decimal.NewFromInt(100)
)

type Fee struct {
	ID             int             `json:"id"`
	ChildID        int             `json:"child_id"`
	ReferenceMonth string          `json:"reference_month"` // YYYY-MM
	Amount         decimal.Decimal `json:"amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	DueDate        core.Date       `json:"due_date"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// read only
	ChildName       string `json:"child_name,omitempty"`
	ClassGroup      string `json:"class_group,omitempty"`
	EffectiveStatus string `json:"effective_status,omitempty"`
	IsOpen          bool   `json:"is_open"`
}

// Effective returns the status shown to users: a pending fee past its due date is overdue.
func (f Fee) Effective(today core.Date) string {
	if f.Status == StatusPendente && f.DueDate.Before(today) {
		return StatusAtrasado
	}
	return f.Status
}

// Open reports whether the fee can be paid now: unpaid, pending or overdue, and not from a future month.
func (f Fee) Open(today core.Date) bool {
	effective := f.Effective(today)
	return f.Status != StatusPago &&
		(effective == StatusPendente || effective == StatusAtrasado) &&
		f.ReferenceMonth <= today.RefMonth()
}

func (f *Fee) annotate(today core.Date) {
	f.EffectiveStatus = f.Effective(today)
	f.IsOpen = f.Open(today)
}

type Payment struct {
	ID                int             `json:"id"`
	FeeID             int             `json:"fee_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            string          `json:"method"`
	PaidAt            time.Time       `json:"paid_at"`
	Note              string          `json:"note"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
}

// ComputeFeeAmount applies the child's standing discounts to a base amount.
func ComputeFeeAmount(c child.Child, base decimal.Decimal) (discount, final decimal.Decimal) {
	discount = c.FeeDiscountAmount
	if !c.FeeDiscountPercent.IsZero() {
		discount = discount.Add(base.Mul(c.FeeDiscountPercent).Div(hundred))
	}
	final = base.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return discount.Round(2), final.Round(2)
}

// ApplyDiscount computes a one-off discount of `percent`% plus `fixed` over `amount`.
func ApplyDiscount(amount, percent, fixed decimal.Decimal) (total, final decimal.Decimal) {
	total = amount.Mul(percent).Div(hundred).Add(fixed)
	if total.IsNegative() {
		total = decimal.Zero
	}
	final = amount.Sub(total)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return total.Round(2), final.Round(2)
}

// DueDate returns day `day` of the month, or its last day for shorter months.
func DueDate(year int, month time.Month, day int) core.Date {
	if last := core.LastDayOfMonth(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return core.NewDate(year, month, day)
}

func RefMonth(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// GenerateForm creates the fees of one reference month, for a whole class group or a single child.
type GenerateForm struct {
	ReferenceMonth string          `json:"reference_month" validate:"required,refmonth"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        core.Date       `json:"due_date"`
	ClassGroup     string          `json:"class_group" validate:"omitempty,classgroup"`
	ChildID        int             `json:"child_id"`
}

func (gf *GenerateForm) Validate(validate *validator.Validate) error {
	gf.ReferenceMonth = core.CleanString(gf.ReferenceMonth)
	gf.ClassGroup = core.CleanString(gf.ClassGroup)
	if err := validate.Struct(gf); err != nil {
		return err
	}

	var flds []core.FieldError
	if !gf.Amount.IsPositive() {
		flds = append(flds, core.FieldError{Field: "amount", Error: "o valor deve ser maior que zero"})
	}
	if gf.DueDate.IsZero() {
		flds = append(flds, core.FieldError{Field: "due_date", Error: "este campo é obrigatório"})
	}
	if gf.ClassGroup == "" && gf.ChildID == 0 {
		flds = append(flds, core.FieldError{Field: "class_group", Error: "Informe uma turma ou uma criança."})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// DiscountForm applies a one-off discount to the open fees of a child, or to one of them.
type DiscountForm struct {
	FeeID   int             `json:"fee_id"`
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

type QueryFilter struct {
	ReferenceMonth string `query:"ref"`
	Status         string `query:"status"`
	ClassGroup     string `query:"class_group"`
	ChildID        int    `query:"child_id"`
	Statuses       []string
	IDs            []int
	// OrderByRef orders by reference month (newest first) instead of child name.
	OrderByRef bool
}

func (qf *QueryFilter) Clean() {
	qf.ReferenceMonth = core.CleanString(qf.ReferenceMonth)
	qf.Status = core.CleanString(qf.Status)
	qf.ClassGroup = core.CleanString(qf.ClassGroup)
}

// Summary aggregates fees by effective status.
type Summary struct {
	Total            int             `json:"total"`
	Paid             int             `json:"pagos"`
	Pending          int             `json:"pendentes"`
	Overdue          int             `json:"atrasados"`
	ByStatus         map[string]int  `json:"by_status"`
	AmountTotal      decimal.Decimal `json:"amount_total"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	FinalTotal       decimal.Decimal `json:"final_total"`
	PaidTotal        decimal.Decimal `json:"paid_total"`
	OutstandingTotal decimal.Decimal `json:"outstanding_total"`
}

// ChildFinance is the guardian's view of one child's fees.
type ChildFinance struct {
	Child     child.Child     `json:"child"`
	Fees      []Fee           `json:"fees"`
	OpenFees  []Fee           `json:"open_fees"`
	OpenTotal decimal.Decimal `json:"open_total"`
}

// Checkout is what a guardian needs to pay one or more fees by PIX.
type Checkout struct {
	Child       child.Child     `json:"child"`
	Fees        []Fee           `json:"fees"`
	Total       decimal.Decimal `json:"total"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	PixCode     string          `json:"pix_code"`
	Charge      *payment.Charge `json:"charge,omitempty"`
}
