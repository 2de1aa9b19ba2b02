package tests

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pinhaljunior/aventureiros/apps/api/echo"
	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/payment"
	"github.com/pinhaljunior/aventureiros/core/user"
	"github.com/pinhaljunior/aventureiros/services/mercadopago"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

type financeEnv struct {
	*env
	treasurer user.User
	guardian  user.User
	kid       child.Child
	refMonth  string
}

func setupFinance(t *testing.T) *financeEnv {
	e := setup(t)
	fe := &financeEnv{
		env:       e,
		treasurer: e.createUser("Zeca", "+5511966660001", user.RoleTesoureiro),
		guardian:  testutil.CreateUser(t, e.usrRepo, "Ana", "+5511966660002", "ana@example.com", testPassword, user.RoleResponsavel, true),
		refMonth:  core.Today(time.Now(), e.conf.Finance.Location).RefMonth(),
	}
	fe.kid = e.createChild("Bruno", child.ClassLuminares, fe.guardian)
	return fe
}

// generate creates this month's fee for the Luminares class and returns the kid's fee.
func (fe *financeEnv) generate(amount int64) finance.Fee {
	today := core.Today(time.Now(), fe.conf.Finance.Location)
	rec := fe.do(http.MethodPost, "/v1/fees/generate", fe.token(fe.treasurer), finance.GenerateForm{
		ReferenceMonth: fe.refMonth,
		Amount:         decimal.NewFromInt(amount),
		DueDate:        today.AddDays(5),
		ClassGroup:     child.ClassLuminares,
	})
	require.Equal(fe.t, http.StatusOK, rec.Code, rec.Body.String())

	fees, err := fe.fees.ChildFees(fe.ctx(), fe.kid.ID)
	require.NoError(fe.t, err)
	require.NotEmpty(fe.t, fees)
	return fees[0]
}

func Test_financeApi_generate(t *testing.T) {
	fe := setupFinance(t)
	director := fe.createUser("Caio", "+5511966660003", user.RoleDiretoria)
	fe.createChild("Duda", child.ClassMaos)

	form := finance.GenerateForm{ReferenceMonth: fe.refMonth, Amount: decimal.NewFromInt(30), DueDate: core.NewDate(2030, time.January, 10)}
	runCodeTests(t, fe.env, []httpTest{
		{name: "director cannot generate", method: http.MethodPost, path: "/v1/fees/generate", token: fe.token(director), body: form, wantCode: http.StatusForbidden},
		{name: "no class nor child", method: http.MethodPost, path: "/v1/fees/generate", token: fe.token(fe.treasurer), body: form, wantCode: http.StatusBadRequest},
		{
			name: "bad month", method: http.MethodPost, path: "/v1/fees/generate", token: fe.token(fe.treasurer),
			body: finance.GenerateForm{ReferenceMonth: "2025-13", Amount: decimal.NewFromInt(30), DueDate: form.DueDate, ChildID: fe.kid.ID},
			wantCode: http.StatusBadRequest,
		},
	})

	fee := fe.generate(30)
	assert.Equal(t, fe.refMonth, fee.ReferenceMonth)
	assert.True(t, fee.FinalAmount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, finance.StatusPendente, fee.Status)

	// idempotent per child and month
	rec := fe.do(http.MethodPost, "/v1/fees/generate", fe.token(fe.treasurer), finance.GenerateForm{
		ReferenceMonth: fe.refMonth, Amount: decimal.NewFromInt(30), DueDate: fee.DueDate, ClassGroup: child.ClassLuminares,
	})
	var res echoapi.CountResponse
	decode(t, rec, &res)
	assert.Equal(t, 0, res.Count)

	rec = fe.do(http.MethodGet, "/v1/fees?ref="+fe.refMonth, fe.token(director), nil)
	var fees []finance.Fee
	decode(t, rec, &fees)
	require.Len(t, fees, 1)
	assert.Equal(t, "Bruno", fees[0].ChildName)
	assert.True(t, fees[0].IsOpen)

	rec = fe.do(http.MethodGet, "/v1/fees/summary", fe.token(director), nil)
	var sum finance.Summary
	decode(t, rec, &sum)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Pending)
	assert.True(t, sum.OutstandingTotal.Equal(decimal.NewFromInt(30)))

	rec = fe.do(http.MethodGet, "/v1/fees/export?ref="+fe.refMonth, fe.token(director), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mensalidades-"+fe.refMonth+".xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx files are zip archives")
}

func Test_financeApi_discount(t *testing.T) {
	fe := setupFinance(t)
	fee := fe.generate(40)
	path := fmt.Sprintf("/v1/children/%d/discount", fe.kid.ID)

	rec := fe.do(http.MethodPost, path, fe.token(fe.treasurer), finance.DiscountForm{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fe.do(http.MethodPost, path, fe.token(fe.treasurer), finance.DiscountForm{Percent: decimal.NewFromInt(25)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.CountResponse
	decode(t, rec, &res)
	assert.Equal(t, 1, res.Count)

	rec = fe.do(http.MethodGet, fmt.Sprintf("/v1/children/%d/fees", fe.kid.ID), fe.token(fe.treasurer), nil)
	var fees []finance.Fee
	decode(t, rec, &fees)
	require.Len(t, fees, 1)
	assert.Equal(t, fee.ID, fees[0].ID)
	assert.True(t, fees[0].DiscountAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, fees[0].FinalAmount.Equal(decimal.NewFromInt(30)))
}

func Test_financeApi_guardianCheckout(t *testing.T) {
	fe := setupFinance(t)
	fee := fe.generate(30)
	other := fe.createUser("Edna", "+5511966660004", user.RoleResponsavel)
	token := fe.token(fe.guardian)
	payURL := fmt.Sprintf("/v1/my/children/%d/fees/%d/pay", fe.kid.ID, fee.ID)

	runCodeTests(t, fe.env, []httpTest{
		{name: "other guardian", path: payURL, token: fe.token(other), wantCode: http.StatusNotFound},
		{name: "unknown fee", path: fmt.Sprintf("/v1/my/children/%d/fees/9999/pay", fe.kid.ID), token: token, wantCode: http.StatusNotFound},
		{name: "staff cannot pay", path: payURL, token: fe.token(fe.treasurer), wantCode: http.StatusForbidden},
	})

	rec := fe.do(http.MethodGet, "/v1/my/finances", token, nil)
	var fins []finance.ChildFinance
	decode(t, rec, &fins)
	require.Len(t, fins, 1)
	require.Len(t, fins[0].OpenFees, 1)
	assert.True(t, fins[0].OpenTotal.Equal(decimal.NewFromInt(30)))

	rec = fe.do(http.MethodGet, payURL, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var co finance.Checkout
	decode(t, rec, &co)
	assert.Equal(t, payment.FeeReference(fee.ID), co.Reference)
	assert.True(t, strings.HasPrefix(co.PixCode, fmt.Sprintf("PIX-FEE-%d-", fee.ID)), co.PixCode)
	assert.True(t, strings.HasSuffix(co.PixCode, "-3000"), co.PixCode)
	assert.Nil(t, co.Charge)

	rec = fe.do(http.MethodPost, payURL, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid finance.Fee
	decode(t, rec, &paid)
	assert.Equal(t, finance.StatusPago, paid.Status)

	// confirming twice is harmless
	rec = fe.do(http.MethodPost, payURL, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fe.do(http.MethodGet, fmt.Sprintf("/v1/fees/%d/payments", fee.ID), fe.token(fe.treasurer), nil)
	var pmts []finance.Payment
	decode(t, rec, &pmts)
	require.Len(t, pmts, 1)
	assert.Equal(t, finance.MethodPix, pmts[0].Method)

	rec = fe.do(http.MethodGet, fmt.Sprintf("/v1/my/children/%d/fees/pay-all", fe.kid.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing open")

	sent := fe.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To[0].Address)
}

func Test_financeApi_payAll(t *testing.T) {
	fe := setupFinance(t)
	fe.generate(30)
	token := fe.token(fe.guardian)
	url := fmt.Sprintf("/v1/my/children/%d/fees/pay-all", fe.kid.ID)

	rec := fe.do(http.MethodGet, url, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var co finance.Checkout
	decode(t, rec, &co)
	assert.Equal(t, payment.ChildFeesReference(fe.kid.ID), co.Reference)
	assert.Len(t, co.Fees, 1)

	rec = fe.do(http.MethodPost, url, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fees []finance.Fee
	decode(t, rec, &fees)
	require.Len(t, fees, 1)
	assert.Equal(t, finance.StatusPago, fees[0].Status)
}

func Test_webhookApi_mercadopago(t *testing.T) {
	fe := setupFinance(t)
	fee := fe.generate(30)
	secret := fe.conf.MercadoPago.WebhookSecret

	notify := func(paymentID string) []byte {
		return []byte(fmt.Sprintf(`{"type":"payment","action":"payment.updated","data":{"id":"%s"}}`, paymentID))
	}
	feeStatus := func() string {
		fees, err := fe.fees.ChildFees(fe.ctx(), fe.kid.ID)
		require.NoError(t, err)
		return fees[0].Status
	}

	fe.provider.charges["101"] = payment.Charge{
		ID: "101", Status: payment.StatusPending, Amount: fee.FinalAmount, ExternalReference: payment.FeeReference(fee.ID),
	}
	fe.provider.charges["102"] = payment.Charge{
		ID: "102", Status: payment.StatusApproved, Amount: decimal.NewFromInt(1), ExternalReference: payment.FeeReference(fee.ID),
	}
	fe.provider.charges["103"] = payment.Charge{
		ID: "103", Status: payment.StatusApproved, Amount: fee.FinalAmount, ExternalReference: payment.FeeReference(fee.ID),
	}

	t.Run("invalid signature", func(t *testing.T) {
		body := notify("103")
		rec := fe.webhook(body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		rec = fe.webhook(body, mercadopago.Sign("wrong-secret", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, finance.StatusPendente, feeStatus())
	})

	tests := []struct {
		name    string
		body    []byte
		want    payment.Outcome
		wantFee string
	}{
		{
			name: "other topic", body: []byte(`{"type":"merchant_order","data":{"id":"1"}}`),
			want: payment.Outcome{Ignored: "topic merchant_order"}, wantFee: finance.StatusPendente,
		},
		{
			name: "pending payment", body: notify("101"),
			want: payment.Outcome{PaymentID: "101", Status: payment.StatusPending, Reference: payment.FeeReference(fee.ID), Ignored: "status pending"},
			wantFee: finance.StatusPendente,
		},
		{
			name: "approved", body: notify("103"),
			want:    payment.Outcome{PaymentID: "103", Status: payment.StatusApproved, Reference: payment.FeeReference(fee.ID), Settled: true},
			wantFee: finance.StatusPago,
		},
		{
			name: "retried notification", body: notify("103"),
			want:    payment.Outcome{PaymentID: "103", Status: payment.StatusApproved, Reference: payment.FeeReference(fee.ID), Duplicate: true},
			wantFee: finance.StatusPago,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fe.webhook(tt.body, mercadopago.Sign(secret, tt.body))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var out payment.Outcome
			decode(t, rec, &out)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.wantFee, feeStatus())
		})
	}

	t.Run("amount mismatch", func(t *testing.T) {
		fe2 := setupFinance(t)
		fee2 := fe2.generate(30)
		fe2.provider.charges["102"] = payment.Charge{
			ID: "102", Status: payment.StatusApproved, Amount: decimal.NewFromInt(1), ExternalReference: payment.FeeReference(fee2.ID),
		}
		body := notify("102")
		rec := fe2.webhook(body, mercadopago.Sign(fe2.conf.MercadoPago.WebhookSecret, body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out payment.Outcome
		decode(t, rec, &out)
		assert.False(t, out.Settled)
		assert.NotEmpty(t, out.Ignored)

		fees, err := fe2.fees.ChildFees(fe2.ctx(), fe2.kid.ID)
		require.NoError(t, err)
		assert.Equal(t, finance.StatusPendente, fees[0].Status)
	})
}
