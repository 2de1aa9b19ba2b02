package inmemdb

import (
	"context"
	"sort"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/finance"
)

type financeRepository struct {
	db *DB
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *DB) *financeRepository {
	return &financeRepository{db: db}
}

// fee must be called with the lock held.
func (repo *financeRepository) fee(f *finance.Fee) finance.Fee {
	fee := *f
	if c, ok := repo.db.children[f.ChildID]; ok {
		fee.ChildName = c.Name
		fee.ClassGroup = c.ClassGroup
	}
	return fee
}

func (repo *financeRepository) GetOrCreateFee(_ context.Context, f finance.Fee, _ ...core.DBExecutor) (finance.Fee, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.fees {
		if existing.ChildID == f.ChildID && existing.ReferenceMonth == f.ReferenceMonth {
			return repo.fee(existing), false, nil
		}
	}
	f.ID = repo.db.nextPK()
	f.ChildName, f.ClassGroup, f.EffectiveStatus, f.IsOpen = "", "", "", false
	stored := f
	repo.db.fees[f.ID] = &stored
	return repo.fee(&stored), true, nil
}

func (repo *financeRepository) GetFee(_ context.Context, id int, _ ...core.DBExecutor) (finance.Fee, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if f, ok := repo.db.fees[id]; ok {
		return repo.fee(f), nil
	}
	return finance.Fee{}, finance.ErrNotFound
}

func (repo *financeRepository) QueryFees(_ context.Context, filter *finance.QueryFilter, _ ...core.DBExecutor) ([]finance.Fee, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fees := make([]finance.Fee, 0, len(repo.db.fees))
	for _, stored := range repo.db.fees {
		f := repo.fee(stored)
		if filter != nil {
			if filter.ReferenceMonth != "" && f.ReferenceMonth != filter.ReferenceMonth {
				continue
			}
			if filter.Status != "" && f.Status != filter.Status {
				continue
			}
			if filter.ClassGroup != "" && f.ClassGroup != filter.ClassGroup {
				continue
			}
			if filter.ChildID != 0 && f.ChildID != filter.ChildID {
				continue
			}
			if len(filter.Statuses) > 0 && !containsString(filter.Statuses, f.Status) {
				continue
			}
			if len(filter.IDs) > 0 && !containsInt(filter.IDs, f.ID) {
				continue
			}
		}
		fees = append(fees, f)
	}

	byRef := filter != nil && filter.OrderByRef
	sort.Slice(fees, func(i, j int) bool {
		if !byRef && fees[i].ChildName != fees[j].ChildName {
			return fees[i].ChildName < fees[j].ChildName
		}
		if fees[i].ReferenceMonth != fees[j].ReferenceMonth {
			return fees[i].ReferenceMonth > fees[j].ReferenceMonth
		}
		return fees[i].ID < fees[j].ID
	})
	return fees, nil
}

func (repo *financeRepository) LockFees(ctx context.Context, filter *finance.QueryFilter, exec ...core.DBExecutor) ([]finance.Fee, error) {
	return repo.QueryFees(ctx, filter, exec...)
}

func (repo *financeRepository) UpdateFee(_ context.Context, f finance.Fee, _ ...core.DBExecutor) (finance.Fee, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.fees[f.ID]
	if !ok {
		return finance.Fee{}, finance.ErrNotFound
	}
	stored.Amount = f.Amount
	stored.DiscountAmount = f.DiscountAmount
	stored.FinalAmount = f.FinalAmount
	stored.DueDate = f.DueDate
	stored.Status = f.Status
	stored.UpdatedAt = f.UpdatedAt
	return repo.fee(stored), nil
}

func (repo *financeRepository) CreatePayment(_ context.Context, p finance.Payment, _ ...core.DBExecutor) (finance.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = repo.db.nextPK()
	stored := p
	repo.db.payments[p.ID] = &stored
	return p, nil
}

func (repo *financeRepository) QueryPayments(_ context.Context, feeID int) ([]finance.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payments := make([]finance.Payment, 0)
	for _, p := range repo.db.payments {
		if p.FeeID == feeID {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].PaidAt.Equal(payments[j].PaidAt) {
			return payments[i].PaidAt.After(payments[j].PaidAt)
		}
		return payments[i].ID > payments[j].ID
	})
	return payments, nil
}
