package finance

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/payment"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("fee")
	ErrNothingOpen     = core.NewValidationError(errors.New("Não há mensalidades em aberto para pagar no momento."))
	ErrNotPayable      = core.NewValidationError(errors.New("esta mensalidade não pode ser paga agora"))
	ErrInvalidDiscount = core.NewValidationError(errors.New("informe um percentual ou valor de desconto"))

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// GetOrCreateFee inserts the fee unless the child already has one for the month; the bool reports a creation.
		GetOrCreateFee(ctx context.Context, f Fee, exec ...core.DBExecutor) (Fee, bool, error)
		GetFee(ctx context.Context, id int, exec ...core.DBExecutor) (Fee, error)
		// QueryFees applies AND operation on the QueryFilter fields, ordered by child name
		// (or by reference month, newest first, when filter.OrderByRef is set).
		QueryFees(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Fee, error)
		// LockFees is QueryFees with the rows locked until the end of the transaction `exec` belongs to.
		LockFees(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Fee, error)
		UpdateFee(ctx context.Context, f Fee, exec ...core.DBExecutor) (Fee, error)
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, feeID int) ([]Payment, error)
	}

	Service interface {
		payment.FeeSettler

		// GenerateSchedule creates the fees of an active child from the current month to December.
		GenerateSchedule(ctx context.Context, c child.Child, exec ...core.DBExecutor) (int, error)
		Generate(ctx context.Context, gf GenerateForm) (int, error)
		ApplyDiscount(ctx context.Context, childID int, df DiscountForm) (int, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Fee, error)
		ChildFees(ctx context.Context, childID int) ([]Fee, error)
		Payments(ctx context.Context, feeID int) ([]Payment, error)
		Summary(ctx context.Context) (Summary, error)
		Export(ctx context.Context, filter *QueryFilter, w io.Writer) (int, error)

		GuardianFinances(ctx context.Context, guardianID int) ([]ChildFinance, error)
		FeeCheckout(ctx context.Context, guardian user.User, childID, feeID int) (Checkout, error)
		ChildCheckout(ctx context.Context, guardian user.User, childID int) (Checkout, error)
		ConfirmFee(ctx context.Context, guardian user.User, childID, feeID int) (Fee, error)
		ConfirmChildFees(ctx context.Context, guardian user.User, childID int) ([]Fee, error)
	}

	service struct {
		repo     Repository
		children child.Service
		tx       core.Transactor
		provider payment.Provider
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

// NewService creates the finance service. `provider` may be nil: PIX codes are then generated locally.
func NewService(
	repo Repository,
	children child.Service,
	tx core.Transactor,
	provider payment.Provider,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:     repo,
		children: children,
		tx:       tx,
		provider: provider,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
	}
}

func (svc *service) today() core.Date {
	return core.Today(NowFunc(), svc.conf.Finance.Location)
}

func (svc *service) GenerateSchedule(ctx context.Context, c child.Child, exec ...core.DBExecutor) (int, error) {
	if !c.Active {
		return 0, nil
	}
	today := svc.today()
	base := svc.conf.Finance.DefaultFeeAmount
	discount, final := ComputeFeeAmount(c, base)

	created := 0
	for month := today.Month(); month <= time.December; month++ {
		_, ok, err := svc.repo.GetOrCreateFee(ctx, Fee{
			ChildID:        c.ID,
			ReferenceMonth: RefMonth(today.Year(), month),
			Amount:         base,
			DiscountAmount: discount,
			FinalAmount:    final,
			DueDate:        DueDate(today.Year(), month, svc.conf.Finance.DueDay),
			Status:         StatusPendente,
		}, exec...)
		if err != nil {
			return created, errors.Wrapf(err, "creating fee %d-%02d of child %d", today.Year(), month, c.ID)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (svc *service) Generate(ctx context.Context, gf GenerateForm) (int, error) {
	var kids []child.Child
	if gf.ClassGroup != "" {
		active := true
		var err error
		if kids, err = svc.children.Query(ctx, &child.QueryFilter{ClassGroup: gf.ClassGroup, Active: &active}); err != nil {
			return 0, errors.Wrap(err, "querying children")
		}
	} else {
		c, err := svc.children.Get(ctx, gf.ChildID)
		if err != nil {
			return 0, err
		}
		kids = []child.Child{c}
	}

	created := 0
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, c := range kids {
			discount, final := ComputeFeeAmount(c, gf.Amount)
			_, ok, err := svc.repo.GetOrCreateFee(ctx, Fee{
				ChildID:        c.ID,
				ReferenceMonth: gf.ReferenceMonth,
				Amount:         gf.Amount,
				DiscountAmount: discount,
				FinalAmount:    final,
				DueDate:        gf.DueDate,
				Status:         StatusPendente,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "creating fee %s of child %d", gf.ReferenceMonth, c.ID)
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// ApplyDiscount overwrites the discount of the child's discountable fees (or of df.FeeID only).
func (svc *service) ApplyDiscount(ctx context.Context, childID int, df DiscountForm) (int, error) {
	if df.Percent.IsZero() && df.Amount.IsZero() {
		return 0, ErrInvalidDiscount
	}
	if _, err := svc.children.Get(ctx, childID); err != nil {
		return 0, err
	}

	filter := &QueryFilter{ChildID: childID, Statuses: DiscountableStatuses}
	if df.FeeID != 0 {
		filter.IDs = []int{df.FeeID}
	}
	updated := 0
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		fees, err := svc.repo.LockFees(ctx, filter, exec)
		if err != nil {
			return errors.Wrap(err, "locking fees")
		}
		now := NowFunc().UTC()
		for _, f := range fees {
			f.DiscountAmount, f.FinalAmount = ApplyDiscount(f.Amount, df.Percent, df.Amount)
			f.UpdatedAt = now
			if _, err := svc.repo.UpdateFee(ctx, f, exec); err != nil {
				return errors.Wrapf(err, "updating fee %d", f.ID)
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

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Fee, error) {
	if filter != nil {
		filter.Clean()
	}
	fees, err := svc.repo.QueryFees(ctx, filter)
	if err != nil {
		return nil, err
	}
	svc.annotate(fees)
	return fees, nil
}

func (svc *service) ChildFees(ctx context.Context, childID int) ([]Fee, error) {
	if _, err := svc.children.Get(ctx, childID); err != nil {
		return nil, err
	}
	fees, err := svc.repo.QueryFees(ctx, &QueryFilter{ChildID: childID, OrderByRef: true})
	if err != nil {
		return nil, err
	}
	svc.annotate(fees)
	return fees, nil
}

func (svc *service) Payments(ctx context.Context, feeID int) ([]Payment, error) {
	if _, err := svc.repo.GetFee(ctx, feeID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, feeID)
}

func (svc *service) Summary(ctx context.Context) (Summary, error) {
	fees, err := svc.repo.QueryFees(ctx, nil)
	if err != nil {
		return Summary{}, err
	}
	return summarize(fees, svc.today()), nil
}

func summarize(fees []Fee, today core.Date) Summary {
	sum := Summary{ByStatus: make(map[string]int, len(Statuses))}
	for _, s := range Statuses {
		sum.ByStatus[s] = 0
	}
	for _, f := range fees {
		sum.Total++
		effective := f.Effective(today)
		sum.ByStatus[effective]++
		switch effective {
		case StatusPago:
			sum.Paid++
			sum.PaidTotal = sum.PaidTotal.Add(f.FinalAmount)
		case StatusPendente:
			sum.Pending++
			sum.OutstandingTotal = sum.OutstandingTotal.Add(f.FinalAmount)
		case StatusAtrasado:
			sum.Overdue++
			sum.OutstandingTotal = sum.OutstandingTotal.Add(f.FinalAmount)
		}
		sum.AmountTotal = sum.AmountTotal.Add(f.Amount)
		sum.DiscountTotal = sum.DiscountTotal.Add(f.DiscountAmount)
		sum.FinalTotal = sum.FinalTotal.Add(f.FinalAmount)
	}
	return sum
}

func (svc *service) GuardianFinances(ctx context.Context, guardianID int) ([]ChildFinance, error) {
	kids, err := svc.children.GuardianChildren(ctx, guardianID)
	if err != nil {
		return nil, errors.Wrap(err, "querying guardian children")
	}
	today := svc.today()
	finances := make([]ChildFinance, 0, len(kids))
	for _, c := range kids {
		fees, err := svc.repo.QueryFees(ctx, &QueryFilter{ChildID: c.ID, OrderByRef: true})
		if err != nil {
			return nil, err
		}
		cf := ChildFinance{Child: c, Fees: fees, OpenFees: []Fee{}}
		for i := range cf.Fees {
			cf.Fees[i].annotate(today)
			if cf.Fees[i].IsOpen {
				cf.OpenFees = append(cf.OpenFees, cf.Fees[i])
				cf.OpenTotal = cf.OpenTotal.Add(cf.Fees[i].FinalAmount)
			}
		}
		finances = append(finances, cf)
	}
	return finances, nil
}

// guardianFee loads a fee of one of the guardian's children.
func (svc *service) guardianFee(ctx context.Context, guardianID, childID, feeID int) (child.Child, Fee, error) {
	if err := svc.children.CheckGuardian(ctx, guardianID, childID); err != nil {
		return child.Child{}, Fee{}, err
	}
	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		return child.Child{}, Fee{}, err
	}
	f, err := svc.repo.GetFee(ctx, feeID)
	if err != nil {
		return child.Child{}, Fee{}, err
	}
	if f.ChildID != childID {
		return child.Child{}, Fee{}, ErrNotFound
	}
	f.annotate(svc.today())
	return c, f, nil
}

// openFees lists the fees of the guardian's child that can be paid now.
func (svc *service) openFees(ctx context.Context, guardianID, childID int) (child.Child, []Fee, decimal.Decimal, error) {
	if err := svc.children.CheckGuardian(ctx, guardianID, childID); err != nil {
		return child.Child{}, nil, decimal.Zero, err
	}
	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		return child.Child{}, nil, decimal.Zero, err
	}
	fees, err := svc.repo.QueryFees(ctx, &QueryFilter{ChildID: childID, OrderByRef: true})
	if err != nil {
		return child.Child{}, nil, decimal.Zero, err
	}
	today := svc.today()
	open := make([]Fee, 0, len(fees))
	total := decimal.Zero
	for _, f := range fees {
		f.annotate(today)
		if f.IsOpen {
			open = append(open, f)
			total = total.Add(f.FinalAmount)
		}
	}
	return c, open, total, nil
}

func (svc *service) FeeCheckout(ctx context.Context, guardian user.User, childID, feeID int) (Checkout, error) {
	c, f, err := svc.guardianFee(ctx, guardian.ID, childID, feeID)
	if err != nil {
		return Checkout{}, err
	}
	co := Checkout{
		Child:       c,
		Fees:        []Fee{f},
		Total:       f.FinalAmount,
		Description: "Mensalidade " + f.ReferenceMonth,
		Reference:   payment.FeeReference(f.ID),
		PixCode:     payment.LocalPixCode(payment.RefFee, strconv.Itoa(f.ID), f.FinalAmount, NowFunc()),
	}
	return co, svc.charge(ctx, guardian, &co)
}

func (svc *service) ChildCheckout(ctx context.Context, guardian user.User, childID int) (Checkout, error) {
	c, open, total, err := svc.openFees(ctx, guardian.ID, childID)
	if err != nil {
		return Checkout{}, err
	}
	if len(open) == 0 {
		return Checkout{}, ErrNothingOpen
	}
	co := Checkout{
		Child:       c,
		Fees:        open,
		Total:       total,
		Description: "Mensalidades em aberto de " + c.Name,
		Reference:   payment.ChildFeesReference(c.ID),
		PixCode:     payment.LocalPixCode(payment.RefAll, strconv.Itoa(c.ID), total, NowFunc()),
	}
	return co, svc.charge(ctx, guardian, &co)
}

// charge creates the provider PIX charge of a checkout, when a provider is configured.
func (svc *service) charge(ctx context.Context, guardian user.User, co *Checkout) error {
	if svc.provider == nil || !svc.conf.MercadoPago.Enabled() || !co.Total.IsPositive() {
		return nil
	}
	charge, err := svc.provider.CreatePixCharge(ctx, payment.ChargeRequest{
		Amount:            co.Total,
		Description:       co.Description,
		ExternalReference: co.Reference,
		Payer: payment.Payer{
			Email:     guardian.Email,
			Whatsapp:  guardian.WhatsappNumber,
			FirstName: guardian.FirstName,
			LastName:  guardian.LastName,
		},
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("creating PIX charge %s: %v", co.Reference, err), err, guardian)
		return payment.ErrProviderUnavailable
	}
	co.Charge = &charge
	if charge.QRCode != "" {
		co.PixCode = charge.QRCode
	}
	return nil
}

func (svc *service) ConfirmFee(ctx context.Context, guardian user.User, childID, feeID int) (Fee, error) {
	if _, _, err := svc.guardianFee(ctx, guardian.ID, childID, feeID); err != nil {
		return Fee{}, err
	}
	paid, err := svc.settle(ctx, &QueryFilter{IDs: []int{feeID}}, false, payment.Settlement{PaidAt: NowFunc().UTC()})
	if err != nil {
		return Fee{}, err
	}
	if len(paid) == 0 {
		// already paid
		return svc.repo.GetFee(ctx, feeID)
	}
	return paid[0], nil
}

func (svc *service) ConfirmChildFees(ctx context.Context, guardian user.User, childID int) ([]Fee, error) {
	_, open, _, err := svc.openFees(ctx, guardian.ID, childID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, ErrNothingOpen
	}
	return svc.settle(ctx, &QueryFilter{ChildID: childID, OrderByRef: true}, true, payment.Settlement{PaidAt: NowFunc().UTC()})
}

func (svc *service) SettleFee(ctx context.Context, feeID int, s payment.Settlement) error {
	_, err := svc.settle(ctx, &QueryFilter{IDs: []int{feeID}}, false, s)
	return err
}

func (svc *service) SettleChildFees(ctx context.Context, childID int, s payment.Settlement) error {
	if _, err := svc.children.Get(ctx, childID); err != nil {
		return err
	}
	_, err := svc.settle(ctx, &QueryFilter{ChildID: childID, OrderByRef: true}, true, s)
	return err
}

// settle records a payment for every locked fee that is still unpaid (only the open ones when
// `onlyOpen` is set) and marks them PAGO, in one transaction. Fees paid earlier are skipped, so
// repeated confirmations are harmless. When s.Amount is set it must match the settled total.
func (svc *service) settle(ctx context.Context, filter *QueryFilter, onlyOpen bool, s payment.Settlement) ([]Fee, error) {
	today := svc.today()
	var paid []Fee
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		fees, err := svc.repo.LockFees(ctx, filter, exec)
		if err != nil {
			return errors.Wrap(err, "locking fees")
		}
		if len(filter.IDs) > 0 && len(fees) == 0 {
			return ErrNotFound
		}

		var due []Fee
		total := decimal.Zero
		for _, f := range fees {
			if f.Status == StatusPago || (onlyOpen && !f.Open(today)) {
				continue
			}
			if f.Status == StatusIsento {
				return ErrNotPayable
			}
			total = total.Add(f.FinalAmount)
			due = append(due, f)
		}
		if !s.Amount.IsZero() && len(due) > 0 && !s.Amount.Round(2).Equal(total.Round(2)) {
			return errors.Wrapf(payment.ErrAmountMismatch, "paid %s, expected %s", s.Amount.StringFixed(2), total.StringFixed(2))
		}

		for _, f := range due {
			if _, err := svc.repo.CreatePayment(ctx, Payment{
				FeeID:             f.ID,
				Amount:            f.FinalAmount,
				Method:            MethodPix,
				PaidAt:            s.PaidAt,
				ProviderPaymentID: s.ProviderPaymentID,
			}, exec); err != nil {
				return errors.Wrapf(err, "creating payment of fee %d", f.ID)
			}
			f.Status = StatusPago
			f.UpdatedAt = NowFunc().UTC()
			if f, err = svc.repo.UpdateFee(ctx, f, exec); err != nil {
				return errors.Wrapf(err, "updating fee %d", f.ID)
			}
			paid = append(paid, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range paid {
		paid[i].annotate(today)
	}
	if len(paid) > 0 {
		svc.sendReceipt(ctx, paid, s.PaidAt)
	}
	return paid, nil
}

// sendReceipt emails the guardians of the child that have an email address.
func (svc *service) sendReceipt(ctx context.Context, paid []Fee, paidAt time.Time) {
	childID := paid[0].ChildID
	links, err := svc.children.Guardians(ctx, childID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding guardians of child %d: %v", childID, err), err)
		return
	}
	to := make([]mail.Address, 0, len(links))
	for _, l := range links {
		if l.GuardianEmail != "" {
			to = append(to, mail.Address{Name: l.GuardianName, Address: l.GuardianEmail})
		}
	}
	if len(to) == 0 {
		return
	}

	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding child %d: %v", childID, err), err)
		return
	}
	total := decimal.Zero
	desc := "Mensalidade " + paid[0].ReferenceMonth
	for _, f := range paid {
		total = total.Add(f.FinalAmount)
	}
	if len(paid) > 1 {
		desc = fmt.Sprintf("%d mensalidades", len(paid))
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Pagamento recebido: " + desc,
		TemplateName: "payment_receipt",
		TemplateData: map[string]string{
			"Description": desc,
			"ChildName":   c.Name,
			"Amount":      total.StringFixed(2),
			"PaidAt":      paidAt.In(svc.conf.Finance.Location).Format("02/01/2006 15:04"),
		},
	})
}

func (svc *service) annotate(fees []Fee) {
	today := svc.today()
	for i := range fees {
		fees[i].annotate(today)
	}
}
