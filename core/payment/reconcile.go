package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

var (
	NowFunc = time.Now // mockable

	dedupeTTL = 7 * 24 * time.Hour
)

type (
	// FeeSettler marks fees as paid.
	FeeSettler interface {
		SettleFee(ctx context.Context, feeID int, s Settlement) error
		SettleChildFees(ctx context.Context, childID int, s Settlement) error
	}

	// OrderSettler marks store orders as paid.
	OrderSettler interface {
		SettleOrder(ctx context.Context, orderID int, s Settlement) error
	}

	// Notification is the body the provider posts to the webhook.
	Notification struct {
		Type   string `json:"type"`
		Topic  string `json:"topic"`
		Action string `json:"action"`
		Data   struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}

	// Outcome tells what a notification did, for logging and tests.
	Outcome struct {
		PaymentID string `json:"payment_id,omitempty"`
		Status    string `json:"status,omitempty"`
		Reference string `json:"reference,omitempty"`
		Settled   bool   `json:"settled"`
		Duplicate bool   `json:"duplicate,omitempty"`
		Ignored   string `json:"ignored,omitempty"`
	}

	Reconciler interface {
		// HandleWebhook verifies and applies one provider notification.
		// Only ErrInvalidSignature and provider errors are returned; anything else is acknowledged.
		HandleWebhook(ctx context.Context, signature string, body []byte) (Outcome, error)
	}

	reconciler struct {
		provider Provider
		cache    core.Cache
		fees     FeeSettler
		orders   OrderSettler
		logger   core.Logger
	}
)

var _ Reconciler = (*reconciler)(nil)

func NewReconciler(provider Provider, cache core.Cache, fees FeeSettler, orders OrderSettler, logger core.Logger) Reconciler {
	return &reconciler{provider: provider, cache: cache, fees: fees, orders: orders, logger: logger}
}

// PaymentID returns the notified payment id, which comes either as a string or a number.
func (n Notification) PaymentID() string {
	return strings.Trim(strings.TrimSpace(string(n.Data.ID)), `"`)
}

func (n Notification) kind() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Topic
}

func (rec *reconciler) HandleWebhook(ctx context.Context, signature string, body []byte) (Outcome, error) {
	if rec.provider == nil || !rec.provider.VerifySignature(signature, body) {
		return Outcome{}, ErrInvalidSignature
	}

	var notif Notification
	if err := json.Unmarshal(body, &notif); err != nil {
		rec.logger.Warn(fmt.Sprintf("webhook: invalid body: %v", err), err)
		return Outcome{Ignored: "invalid body"}, nil
	}
	if kind := notif.kind(); kind != "payment" {
		return Outcome{Ignored: "topic " + kind}, nil
	}
	out := Outcome{PaymentID: notif.PaymentID()}
	if out.PaymentID == "" {
		return Outcome{Ignored: "missing payment id"}, nil
	}

	charge, err := rec.provider.GetPayment(ctx, out.PaymentID)
	if err != nil {
		rec.logger.Error(fmt.Sprintf("webhook: fetching payment %s: %v", out.PaymentID, err), err)
		return out, ErrProviderUnavailable
	}
	out.Status = charge.Status
	out.Reference = charge.ExternalReference
	if charge.Status != StatusApproved {
		out.Ignored = "status " + charge.Status
		return out, nil
	}

	// providers retry notifications; settle every approved payment once
	dedupeKey := "mp:payment:" + out.PaymentID
	first, err := rec.cache.SetNX(ctx, dedupeKey, []byte(charge.ExternalReference), dedupeTTL)
	if err != nil {
		rec.logger.Warn(fmt.Sprintf("webhook: dedupe of payment %s: %v", out.PaymentID, err), err)
	} else if !first {
		out.Duplicate = true
		return out, nil
	}

	if err := rec.settle(ctx, charge); err != nil {
		_ = rec.cache.Delete(ctx, dedupeKey)
		switch errors.Cause(err) {
		case ErrUnknownReference, ErrAmountMismatch:
			rec.logger.Warn(fmt.Sprintf("webhook: payment %s (%s): %v", out.PaymentID, charge.ExternalReference, err), err)
			out.Ignored = err.Error()
			return out, nil
		}
		if core.IsNotFound(err) {
			rec.logger.Warn(fmt.Sprintf("webhook: payment %s (%s): %v", out.PaymentID, charge.ExternalReference, err), err)
			out.Ignored = err.Error()
			return out, nil
		}
		return out, errors.Wrapf(err, "settling payment %s", out.PaymentID)
	}
	out.Settled = true
	rec.logger.Info(fmt.Sprintf("webhook: payment %s settled %s", out.PaymentID, charge.ExternalReference))
	return out, nil
}

func (rec *reconciler) settle(ctx context.Context, charge Charge) error {
	ref, err := ParseReference(charge.ExternalReference)
	if err != nil {
		return err
	}
	s := Settlement{ProviderPaymentID: charge.ID, Amount: charge.Amount, PaidAt: NowFunc().UTC()}
	switch ref.Kind {
	case RefFee:
		return rec.fees.SettleFee(ctx, ref.ID, s)
	case RefAll:
		return rec.fees.SettleChildFees(ctx, ref.ID, s)
	case RefOrder:
		return rec.orders.SettleOrder(ctx, ref.ID, s)
	}
	return ErrUnknownReference
}
