// Package mercadopago is the PIX payment provider client.
package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/payment"
)

const defaultDescription = "Pagamento Aventureiros"

var nowFunc = time.Now // mockable

type (
	Client struct {
		http   *rest.Client
		conf   core.MercadoPagoConfig
		logger core.Logger
	}

	payerBody struct {
		Email     string `json:"email,omitempty"`
		FirstName string `json:"first_name,omitempty"`
		LastName  string `json:"last_name,omitempty"`
	}

	chargeBody struct {
		TransactionAmount float64    `json:"transaction_amount"`
		CurrencyID        string     `json:"currency_id"`
		PaymentMethodID   string     `json:"payment_method_id"`
		Description       string     `json:"description"`
		ExternalReference string     `json:"external_reference"`
		NotificationURL   string     `json:"notification_url,omitempty"`
		BinaryMode        bool       `json:"binary_mode"`
		DateOfExpiration  string     `json:"date_of_expiration"`
		Payer             *payerBody `json:"payer,omitempty"`
	}

	paymentResponse struct {
		ID                 json.Number     `json:"id"`
		Status             string          `json:"status"`
		TransactionAmount  decimal.Decimal `json:"transaction_amount"`
		ExternalReference  string          `json:"external_reference"`
		PointOfInteraction struct {
			TransactionData pixData `json:"transaction_data"`
			Data            pixData `json:"data"`
		} `json:"point_of_interaction"`
	}

	pixData struct {
		QRCode           string `json:"qr_code"`
		QRCodeBase64     string `json:"qr_code_base64"`
		DateOfExpiration string `json:"date_of_expiration"`
	}
)

var _ payment.Provider = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	timeout := conf.MercadoPago.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		http:   &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		conf:   conf.MercadoPago,
		logger: logger,
	}
}

func (c *Client) request(method rest.Method, path string, body []byte) rest.Request {
	return rest.Request{
		Method:  method,
		BaseURL: strings.TrimRight(c.conf.BaseURL, "/") + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + c.conf.AccessToken,
			"Content-Type":  "application/json",
		},
		Body: body,
	}
}

func (c *Client) send(ctx context.Context, req rest.Request, what string) (payment.Charge, error) {
	res, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		return payment.Charge{}, errors.Wrapf(err, "%s: request", what)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return payment.Charge{}, errors.Errorf("%s: status %d: %s", what, res.StatusCode, core.Truncate(res.Body, 500))
	}
	var data paymentResponse
	if err := json.Unmarshal([]byte(res.Body), &data); err != nil {
		return payment.Charge{}, errors.Wrapf(err, "%s: decoding response", what)
	}
	tx := data.PointOfInteraction.TransactionData
	if tx == (pixData{}) {
		tx = data.PointOfInteraction.Data
	}
	return payment.Charge{
		ID:                data.ID.String(),
		Status:            data.Status,
		Amount:            data.TransactionAmount,
		QRCode:            tx.QRCode,
		QRCodeBase64:      tx.QRCodeBase64,
		ExpiresAt:         tx.DateOfExpiration,
		ExternalReference: data.ExternalReference,
	}, nil
}

// CreatePixCharge creates a PIX payment; charges without reference or amount are refused.
func (c *Client) CreatePixCharge(ctx context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	ref := strings.TrimSpace(req.ExternalReference)
	amount := req.Amount.Round(2)
	if ref == "" || !amount.IsPositive() {
		return payment.Charge{}, errors.New("charge needs an external reference and a positive amount")
	}

	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = c.conf.StatementDescription
	}
	if desc == "" {
		desc = defaultDescription
	}
	expiration := c.conf.ChargeExpiration
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	body, err := json.Marshal(chargeBody{
		TransactionAmount: amount.InexactFloat64(),
		CurrencyID:        "BRL",
		PaymentMethodID:   "pix",
		Description:       desc,
		ExternalReference: ref,
		NotificationURL:   c.conf.NotificationURL,
		BinaryMode:        true,
		DateOfExpiration:  nowFunc().UTC().Add(expiration).Format("2006-01-02T15:04:05.000-07:00"),
		Payer:             c.payer(req.Payer),
	})
	if err != nil {
		return payment.Charge{}, errors.Wrap(err, "encoding charge")
	}

	r := c.request(rest.Post, "/v1/payments", body)
	r.Headers["X-Idempotency-Key"] = uuid.NewString()
	charge, err := c.send(ctx, r, fmt.Sprintf("creating PIX charge %s", ref))
	if err != nil {
		return payment.Charge{}, err
	}
	if charge.ExternalReference == "" {
		charge.ExternalReference = ref
	}
	return charge, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (payment.Charge, error) {
	return c.send(ctx, c.request(rest.Get, "/v1/payments/"+id, nil), fmt.Sprintf("getting payment %s", id))
}

// payer falls back to a "<whatsapp digits>@<domain>" email for users without one.
func (c *Client) payer(p payment.Payer) *payerBody {
	email := strings.TrimSpace(p.Email)
	if email == "" && strings.TrimSpace(p.Whatsapp) != "" {
		local := alnum(p.Whatsapp)
		if local == "" {
			local = "usuario"
		}
		email = local + "@" + c.conf.PayerEmailDomain
	}
	body := payerBody{
		Email:     email,
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
	}
	if body == (payerBody{}) {
		return nil
	}
	return &body
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// VerifySignature checks a "<algo>=<hex hmac>" header (sha1 when the algo is omitted) against the body.
func (c *Client) VerifySignature(header string, body []byte) bool {
	if c.conf.WebhookSecret == "" {
		c.logger.Warn("webhook secret not configured, rejecting notification")
		return false
	}
	if !VerifySignature(c.conf.WebhookSecret, header, body) {
		c.logger.Warn(fmt.Sprintf("invalid webhook signature: %q", core.Truncate(header, 100)))
		return false
	}
	return true
}

func VerifySignature(secret, header string, body []byte) bool {
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}
	algo, signature := "sha1", header
	if i := strings.Index(header, "="); i >= 0 {
		algo, signature = strings.ToLower(header[:i]), header[i+1:]
	}

	var newHash func() hash.Hash
	switch algo {
	case "sha1":
		newHash = sha1.New
	case "sha256":
		newHash = sha256.New
	default:
		return false
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(strings.ToLower(signature)))
}

// Sign returns the header value the provider would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
