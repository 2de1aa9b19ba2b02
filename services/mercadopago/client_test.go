package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/payment"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

func newTestClient(baseURL string) *Client {
	conf := core.NewTestConfig()
	conf.MercadoPago.BaseURL = baseURL
	conf.MercadoPago.AccessToken = "token"
	conf.MercadoPago.NotificationURL = "https://example.com/v1/webhooks/mercadopago"
	return NewClient(conf, &testutil.Logger{})
}

func TestCreatePixCharge(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	var (
		gotBody    map[string]interface{}
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		gotHeaders = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": 123456789,
			"status": "pending",
			"transaction_amount": 45.5,
			"external_reference": "FEE:12",
			"point_of_interaction": {"transaction_data": {
				"qr_code": "000201pix", "qr_code_base64": "aGVsbG8=", "date_of_expiration": "2024-03-11T12:00:00.000-03:00"
			}}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	charge, err := c.CreatePixCharge(context.Background(), payment.ChargeRequest{
		Amount:            decimal.RequireFromString("45.50"),
		Description:       "Mensalidade 2024-03",
		ExternalReference: "FEE:12",
		Payer:             payment.Payer{Whatsapp: "+55 (11) 98888-7777", FirstName: "Ana"},
	})
	require.NoError(t, err)

	assert.Equal(t, "123456789", charge.ID)
	assert.Equal(t, "pending", charge.Status)
	assert.True(t, charge.Amount.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, "000201pix", charge.QRCode)
	assert.Equal(t, "aGVsbG8=", charge.QRCodeBase64)
	assert.Equal(t, "FEE:12", charge.ExternalReference)

	assert.Equal(t, "Bearer token", gotHeaders.Get("Authorization"))
	assert.NotEmpty(t, gotHeaders.Get("X-Idempotency-Key"))

	assert.Equal(t, 45.5, gotBody["transaction_amount"])
	assert.Equal(t, "BRL", gotBody["currency_id"])
	assert.Equal(t, "pix", gotBody["payment_method_id"])
	assert.Equal(t, "Mensalidade 2024-03", gotBody["description"])
	assert.Equal(t, true, gotBody["binary_mode"])
	assert.Equal(t, "2024-03-11T12:00:00.000+00:00", gotBody["date_of_expiration"])
	assert.Equal(t, map[string]interface{}{
		"email":      "5511988887777@pinhaljunior.com.br",
		"first_name": "Ana",
	}, gotBody["payer"])
}

func TestCreatePixCharge_Refused(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "invalid"}`))
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	tests := []struct {
		name  string
		req   payment.ChargeRequest
		calls int
	}{
		{"no reference", payment.ChargeRequest{Amount: decimal.NewFromInt(10)}, 0},
		{"zero amount", payment.ChargeRequest{ExternalReference: "FEE:1"}, 0},
		{"provider error", payment.ChargeRequest{Amount: decimal.NewFromInt(10), ExternalReference: "FEE:1"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls = 0
			_, err := c.CreatePixCharge(context.Background(), tc.req)
			assert.Error(t, err)
			assert.Equal(t, tc.calls, calls)
		})
	}
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 42, "status": "approved", "transaction_amount": 30, "external_reference": "ALL:7"}`))
	}))
	defer srv.Close()

	charge, err := newTestClient(srv.URL).GetPayment(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", charge.ID)
	assert.Equal(t, payment.StatusApproved, charge.Status)
	assert.Equal(t, "ALL:7", charge.ExternalReference)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"payment","data":{"id":"42"}}`)
	secret := "webhook-secret"
	signed := Sign(secret, body)

	tests := []struct {
		name   string
		secret string
		header string
		want   bool
	}{
		{"sha256", secret, signed, true},
		{"sha1 without algo", secret, signed[len("sha256="):], false},
		{"wrong secret", "other", signed, false},
		{"empty secret", "", signed, false},
		{"empty header", secret, "", false},
		{"unknown algo", secret, "md5=abc", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, VerifySignature(tc.secret, tc.header, body))
		})
	}

	t.Run("sha1 default", func(t *testing.T) {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(body)
		sum := hex.EncodeToString(mac.Sum(nil))
		assert.True(t, VerifySignature(secret, sum, body))
		assert.True(t, VerifySignature(secret, "SHA1="+sum, body))
	})
}
