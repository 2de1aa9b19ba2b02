package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		in      string
		want    Reference
		wantErr bool
	}{
		{in: "FEE:12", want: Reference{RefFee, 12}},
		{in: " all:3 ", want: Reference{RefAll, 3}},
		{in: "ORDER:201", want: Reference{RefOrder, 201}},
		{in: "FEE", wantErr: true},
		{in: "FEE:abc", wantErr: true},
		{in: "FEE:0", wantErr: true},
		{in: "FEE:-4", wantErr: true},
		{in: "GIFT:4", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReference(tt.in)
			if tt.wantErr {
				assert.Equal(t, ErrUnknownReference, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReferences(t *testing.T) {
	assert.Equal(t, "FEE:7", FeeReference(7))
	assert.Equal(t, "ALL:8", ChildFeesReference(8))
	assert.Equal(t, "ORDER:9", OrderReference(9))

	ref, err := ParseReference(OrderReference(9))
	assert.NoError(t, err)
	assert.Equal(t, OrderReference(9), ref.String())
}

func TestLocalPixCode(t *testing.T) {
	at := time.Date(2025, time.March, 4, 13, 5, 9, 0, time.FixedZone("BRT", -3*3600))

	got := LocalPixCode("FEE", "12", decimal.RequireFromString("30.5"), at)
	assert.Equal(t, "PIX-FEE-12-20250304160509-3050", got)

	got = LocalPixCode("ORDER", "3", decimal.NewFromInt(50), at)
	assert.Equal(t, "PIX-ORDER-3-20250304160509-5000", got)
}
