// Package payment holds the contract with the PIX payment provider and the reconciliation of its notifications.
package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Provider payment statuses
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
)

// External reference kinds
const (
	RefFee   = "FEE"
	RefAll   = "ALL"
	RefOrder = "ORDER"
)

var (
	// ErrProviderUnavailable is returned whenever the provider cannot be reached or refuses a call.
	ErrProviderUnavailable = errors.New("serviço de pagamento indisponível, tente novamente mais tarde")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrAmountMismatch      = errors.New("paid amount does not match")
	ErrUnknownReference    = errors.New("unknown external reference")
)

type (
	// Provider creates PIX charges and reports their status.
	Provider interface {
		CreatePixCharge(ctx context.Context, req ChargeRequest) (Charge, error)
		GetPayment(ctx context.Context, id string) (Charge, error)
		VerifySignature(header string, body []byte) bool
	}

	Payer struct {
		Email     string
		Whatsapp  string
		FirstName string
		LastName  string
	}

	ChargeRequest struct {
		Amount            decimal.Decimal
		Description       string
		ExternalReference string
		Payer             Payer
	}

	// Charge is a provider payment, as created or fetched.
	Charge struct {
		ID                string          `json:"id"`
		Status            string          `json:"status"`
		Amount            decimal.Decimal `json:"amount"`
		QRCode            string          `json:"qr_code"`
		QRCodeBase64      string          `json:"qr_code_base64"`
		ExpiresAt         string          `json:"expires_at"`
		ExternalReference string          `json:"external_reference"`
	}

	// Settlement is a confirmed provider payment applied to fees or orders.
	Settlement struct {
		ProviderPaymentID string
		Amount            decimal.Decimal
		PaidAt            time.Time
	}

	// Reference is a parsed external reference, e.g. "FEE:12".
	Reference struct {
		Kind string
		ID   int
	}
)

func (ref Reference) String() string {
	return ref.Kind + ":" + strconv.Itoa(ref.ID)
}

func FeeReference(id int) string       { return Reference{RefFee, id}.String() }
func ChildFeesReference(id int) string { return Reference{RefAll, id}.String() }
func OrderReference(id int) string     { return Reference{RefOrder, id}.String() }

func ParseReference(s string) (Reference, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Reference{}, ErrUnknownReference
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return Reference{}, ErrUnknownReference
	}
	switch kind := strings.ToUpper(parts[0]); kind {
	case RefFee, RefAll, RefOrder:
		return Reference{Kind: kind, ID: id}, nil
	default:
		return Reference{}, ErrUnknownReference
	}
}

// LocalPixCode builds the PIX code shown when no provider is configured:
// PIX-<prefix>-<id>-<YYYYmmddHHMMSS>-<cents>.
func LocalPixCode(prefix, id string, amount decimal.Decimal, at time.Time) string {
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	return fmt.Sprintf("PIX-%s-%s-%s-%d", prefix, id, at.UTC().Format("20060102150405"), cents)
}
