package payment

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/services/cache"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

const goodSignature = "ok"

type fakeProvider struct {
	charges map[string]Charge
	err     error
}

func (p *fakeProvider) CreatePixCharge(context.Context, ChargeRequest) (Charge, error) {
	return Charge{}, errors.New("not implemented")
}

func (p *fakeProvider) GetPayment(_ context.Context, id string) (Charge, error) {
	if p.err != nil {
		return Charge{}, p.err
	}
	c, ok := p.charges[id]
	if !ok {
		return Charge{}, errors.New("payment not found")
	}
	return c, nil
}

func (p *fakeProvider) VerifySignature(header string, _ []byte) bool {
	return header == goodSignature
}

type settled struct {
	kind string
	id   int
	s    Settlement
}

type fakeSettler struct {
	calls []settled
	err   error
}

func (f *fakeSettler) record(kind string, id int, s Settlement) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, settled{kind, id, s})
	return nil
}

func (f *fakeSettler) SettleFee(_ context.Context, id int, s Settlement) error {
	return f.record(RefFee, id, s)
}

func (f *fakeSettler) SettleChildFees(_ context.Context, id int, s Settlement) error {
	return f.record(RefAll, id, s)
}

func (f *fakeSettler) SettleOrder(_ context.Context, id int, s Settlement) error {
	return f.record(RefOrder, id, s)
}

func notification(id string) []byte {
	return []byte(`{"type":"payment","action":"payment.updated","data":{"id":` + id + `}}`)
}

func TestReconciler_HandleWebhook(t *testing.T) {
	provider := &fakeProvider{charges: map[string]Charge{
		"101": {ID: "101", Status: StatusApproved, Amount: decimal.NewFromInt(30), ExternalReference: "FEE:4"},
		"102": {ID: "102", Status: StatusPending, Amount: decimal.NewFromInt(30), ExternalReference: "FEE:5"},
		"103": {ID: "103", Status: StatusApproved, Amount: decimal.NewFromInt(60), ExternalReference: "ALL:2"},
		"104": {ID: "104", Status: StatusApproved, Amount: decimal.NewFromInt(25), ExternalReference: "ORDER:9"},
		"105": {ID: "105", Status: StatusApproved, Amount: decimal.NewFromInt(25), ExternalReference: "GIFT:9"},
	}}
	settler := new(fakeSettler)
	rec := NewReconciler(provider, cache.NewMemoryCache(), settler, settler, new(testutil.Logger))
	ctx := context.Background()

	tests := []struct {
		name      string
		signature string
		body      string
		want      Outcome
		wantErr   error
	}{
		{name: "bad signature", signature: "lol", body: string(notification("101")), wantErr: ErrInvalidSignature},
		{name: "invalid body", signature: goodSignature, body: "{", want: Outcome{Ignored: "invalid body"}},
		{name: "other topic", signature: goodSignature, body: `{"topic":"merchant_order","data":{"id":"1"}}`, want: Outcome{Ignored: "topic merchant_order"}},
		{name: "no id", signature: goodSignature, body: `{"type":"payment","data":{}}`, want: Outcome{Ignored: "missing payment id"}},
		{
			name: "pending", signature: goodSignature, body: string(notification(`"102"`)),
			want: Outcome{PaymentID: "102", Status: StatusPending, Reference: "FEE:5", Ignored: "status pending"},
		},
		{
			name: "fee", signature: goodSignature, body: string(notification("101")),
			want: Outcome{PaymentID: "101", Status: StatusApproved, Reference: "FEE:4", Settled: true},
		},
		{
			name: "fee again", signature: goodSignature, body: string(notification(`"101"`)),
			want: Outcome{PaymentID: "101", Status: StatusApproved, Reference: "FEE:4", Duplicate: true},
		},
		{
			name: "child fees", signature: goodSignature, body: string(notification("103")),
			want: Outcome{PaymentID: "103", Status: StatusApproved, Reference: "ALL:2", Settled: true},
		},
		{
			name: "order", signature: goodSignature, body: string(notification("104")),
			want: Outcome{PaymentID: "104", Status: StatusApproved, Reference: "ORDER:9", Settled: true},
		},
		{
			name: "unknown reference", signature: goodSignature, body: string(notification("105")),
			want: Outcome{PaymentID: "105", Status: StatusApproved, Reference: "GIFT:9", Ignored: ErrUnknownReference.Error()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rec.HandleWebhook(ctx, tt.signature, []byte(tt.body))
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.Len(t, settler.calls, 3)
	assert.Equal(t, RefFee, settler.calls[0].kind)
	assert.Equal(t, 4, settler.calls[0].id)
	assert.Equal(t, "101", settler.calls[0].s.ProviderPaymentID)
	assert.True(t, decimal.NewFromInt(30).Equal(settler.calls[0].s.Amount))
	assert.Equal(t, RefAll, settler.calls[1].kind)
	assert.Equal(t, RefOrder, settler.calls[2].kind)
	assert.Equal(t, 9, settler.calls[2].id)
}

func TestReconciler_settleFailures(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{charges: map[string]Charge{
		"201": {ID: "201", Status: StatusApproved, Amount: decimal.NewFromInt(10), ExternalReference: "FEE:1"},
	}}

	t.Run("mismatch is acknowledged and retried later", func(t *testing.T) {
		settler := &fakeSettler{err: errors.Wrap(ErrAmountMismatch, "fee 1")}
		rec := NewReconciler(provider, cache.NewMemoryCache(), settler, settler, new(testutil.Logger))

		got, err := rec.HandleWebhook(ctx, goodSignature, notification("201"))
		assert.NoError(t, err)
		assert.False(t, got.Settled)
		assert.Contains(t, got.Ignored, ErrAmountMismatch.Error())

		// the dedupe key was released, so a fixed settler settles it
		settler.err = nil
		got, err = rec.HandleWebhook(ctx, goodSignature, notification("201"))
		assert.NoError(t, err)
		assert.True(t, got.Settled)
	})

	t.Run("not found is acknowledged", func(t *testing.T) {
		settler := &fakeSettler{err: core.NewNotFoundError("fee")}
		rec := NewReconciler(provider, cache.NewMemoryCache(), settler, settler, new(testutil.Logger))

		got, err := rec.HandleWebhook(ctx, goodSignature, notification("201"))
		assert.NoError(t, err)
		assert.Equal(t, "fee not found", got.Ignored)
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		settler := &fakeSettler{err: errors.New("connection reset")}
		rec := NewReconciler(provider, cache.NewMemoryCache(), settler, settler, new(testutil.Logger))

		_, err := rec.HandleWebhook(ctx, goodSignature, notification("201"))
		assert.EqualError(t, err, "settling payment 201: connection reset")
	})

	t.Run("provider down", func(t *testing.T) {
		down := &fakeProvider{err: errors.New("timeout")}
		logger := new(testutil.Logger)
		rec := NewReconciler(down, cache.NewMemoryCache(), new(fakeSettler), new(fakeSettler), logger)

		_, err := rec.HandleWebhook(ctx, goodSignature, notification("201"))
		assert.Equal(t, ErrProviderUnavailable, err)
		assert.Equal(t, 1, logger.Errors)
	})
}
