package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeFeeAmount(t *testing.T) {
	tests := []struct {
		name         string
		percent      string
		fixed        string
		base         string
		wantDiscount string
		wantFinal    string
	}{
		{name: "no discount", percent: "0", fixed: "0", base: "30.00", wantDiscount: "0", wantFinal: "30"},
		{name: "percent only", percent: "10", fixed: "0", base: "30.00", wantDiscount: "3", wantFinal: "27"},
		{name: "fixed only", percent: "0", fixed: "5", base: "30.00", wantDiscount: "5", wantFinal: "25"},
		{name: "percent and fixed", percent: "50", fixed: "2.50", base: "30.00", wantDiscount: "17.5", wantFinal: "12.5"},
		{name: "never negative", percent: "100", fixed: "10", base: "30.00", wantDiscount: "40", wantFinal: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := child.Child{FeeDiscountPercent: dec(tt.percent), FeeDiscountAmount: dec(tt.fixed)}
			discount, final := ComputeFeeAmount(c, dec(tt.base))
			assert.True(t, dec(tt.wantDiscount).Equal(discount), "discount = %s", discount)
			assert.True(t, dec(tt.wantFinal).Equal(final), "final = %s", final)
		})
	}
}

func TestApplyDiscount(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		percent   string
		fixed     string
		wantTotal string
		wantFinal string
	}{
		{name: "percent", amount: "30", percent: "20", fixed: "0", wantTotal: "6", wantFinal: "24"},
		{name: "fixed", amount: "30", percent: "0", fixed: "7.25", wantTotal: "7.25", wantFinal: "22.75"},
		{name: "both", amount: "40", percent: "25", fixed: "5", wantTotal: "15", wantFinal: "25"},
		{name: "negative total is zero", amount: "30", percent: "0", fixed: "-10", wantTotal: "0", wantFinal: "30"},
		{name: "final floored at zero", amount: "30", percent: "90", fixed: "10", wantTotal: "37", wantFinal: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, final := ApplyDiscount(dec(tt.amount), dec(tt.percent), dec(tt.fixed))
			assert.True(t, dec(tt.wantTotal).Equal(total), "total = %s", total)
			assert.True(t, dec(tt.wantFinal).Equal(final), "final = %s", final)
		})
	}
}

func TestFee_EffectiveAndOpen(t *testing.T) {
	today := core.NewDate(2024, time.May, 15)

	tests := []struct {
		name          string
		fee           Fee
		wantEffective string
		wantOpen      bool
	}{
		{
			name:          "pending, not due yet",
			fee:           Fee{Status: StatusPendente, ReferenceMonth: "2024-05", DueDate: core.NewDate(2024, time.May, 20)},
			wantEffective: StatusPendente, wantOpen: true,
		},
		{
			name:          "pending past due is overdue",
			fee:           Fee{Status: StatusPendente, ReferenceMonth: "2024-04", DueDate: core.NewDate(2024, time.April, 10)},
			wantEffective: StatusAtrasado, wantOpen: true,
		},
		{
			name:          "due today is not overdue",
			fee:           Fee{Status: StatusPendente, ReferenceMonth: "2024-05", DueDate: today},
			wantEffective: StatusPendente, wantOpen: true,
		},
		{
			name:          "future month is not open",
			fee:           Fee{Status: StatusPendente, ReferenceMonth: "2024-06", DueDate: core.NewDate(2024, time.June, 10)},
			wantEffective: StatusPendente,
		},
		{
			name:          "paid",
			fee:           Fee{Status: StatusPago, ReferenceMonth: "2024-03", DueDate: core.NewDate(2024, time.March, 10)},
			wantEffective: StatusPago,
		},
		{
			name:          "exempt",
			fee:           Fee{Status: StatusIsento, ReferenceMonth: "2024-03", DueDate: core.NewDate(2024, time.March, 10)},
			wantEffective: StatusIsento,
		},
		{
			name:          "in negotiation is not open",
			fee:           Fee{Status: StatusNegociacao, ReferenceMonth: "2024-03", DueDate: core.NewDate(2024, time.March, 10)},
			wantEffective: StatusNegociacao,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEffective, tt.fee.Effective(today))
			assert.Equal(t, tt.wantOpen, tt.fee.Open(today))
		})
	}
}

func TestDueDate(t *testing.T) {
	assert.Equal(t, core.NewDate(2024, time.March, 10), DueDate(2024, time.March, 10))
	assert.Equal(t, core.NewDate(2024, time.February, 29), DueDate(2024, time.February, 31))
	assert.Equal(t, core.NewDate(2023, time.February, 28), DueDate(2023, time.February, 30))
	assert.Equal(t, "2024-03", RefMonth(2024, time.March))
}

func TestSummarize(t *testing.T) {
	today := core.NewDate(2024, time.May, 15)
	fees := []Fee{
		{Status: StatusPago, Amount: dec("30"), FinalAmount: dec("30"), DueDate: core.NewDate(2024, time.March, 10)},
		{Status: StatusPendente, Amount: dec("30"), DiscountAmount: dec("3"), FinalAmount: dec("27"), DueDate: core.NewDate(2024, time.April, 10)},
		{Status: StatusPendente, Amount: dec("30"), FinalAmount: dec("30"), DueDate: core.NewDate(2024, time.May, 20)},
		{Status: StatusIsento, Amount: dec("30"), DiscountAmount: dec("30"), FinalAmount: dec("0"), DueDate: core.NewDate(2024, time.May, 10)},
	}
	sum := summarize(fees, today)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 1, sum.Paid)
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 1, sum.Overdue)
	assert.Equal(t, 1, sum.ByStatus[StatusIsento])
	assert.True(t, dec("120").Equal(sum.AmountTotal))
	assert.True(t, dec("33").Equal(sum.DiscountTotal))
	assert.True(t, dec("87").Equal(sum.FinalTotal))
	assert.True(t, dec("57").Equal(sum.OutstandingTotal))
}
