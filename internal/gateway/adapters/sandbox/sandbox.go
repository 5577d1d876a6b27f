// Package sandbox approves payments in-process for local runs and tests.
// Payment keys prefixed with "reject_" are declined and keys prefixed with
// "timeout_" fail as a gateway timeout.
package sandbox

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payflow/internal/gateway/domain"
)

const (
	RejectPrefix  = "reject_"
	TimeoutPrefix = "timeout_"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewAdapter(domain.AdapterConfig) (domain.Gateway, error) {
	return &Adapter{now: func() time.Time { return time.Now().UTC() }}, nil
}

type Adapter struct {
	now func() time.Time
}

func (a *Adapter) Provider() string {
	return "sandbox"
}

func (a *Adapter) RequestConfirmation(_ context.Context, req domain.ConfirmRequest) (*domain.Confirmation, error) {
	if err := outcome(req.PaymentKey); err != nil {
		return nil, err
	}
	if req.Amount <= 0 || strings.TrimSpace(req.OrderID) == "" {
		return nil, domain.ErrInvalidRequest
	}

	confirmation := &domain.Confirmation{
		PaymentKey:    req.PaymentKey,
		OrderID:       req.OrderID,
		TransactionID: "sbx_" + ulid.Make().String(),
		Method:        "CARD",
		TotalAmount:   req.Amount,
		ApprovedAt:    a.now(),
	}
	confirmation.Raw = encode(map[string]any{
		"paymentKey":         confirmation.PaymentKey,
		"orderId":            confirmation.OrderID,
		"status":             "DONE",
		"method":             confirmation.Method,
		"totalAmount":        confirmation.TotalAmount,
		"lastTransactionKey": confirmation.TransactionID,
	})
	return confirmation, nil
}

func (a *Adapter) RequestCancellation(_ context.Context, req domain.CancelRequest) (*domain.Cancellation, error) {
	if err := outcome(req.PaymentKey); err != nil {
		return nil, err
	}
	if req.CancelAmount != nil && *req.CancelAmount <= 0 {
		return nil, domain.ErrInvalidRequest
	}

	cancellation := &domain.Cancellation{
		PaymentKey:    req.PaymentKey,
		TransactionID: "sbx_" + ulid.Make().String(),
		CancelledAt:   a.now(),
	}
	if req.CancelAmount != nil {
		cancellation.CancelAmount = *req.CancelAmount
	}
	cancellation.Raw = encode(map[string]any{
		"paymentKey":   cancellation.PaymentKey,
		"cancelAmount": cancellation.CancelAmount,
		"cancelReason": req.CancelReason,
	})
	return cancellation, nil
}

func outcome(paymentKey string) error {
	key := strings.TrimSpace(paymentKey)
	switch {
	case key == "":
		return domain.ErrInvalidRequest
	case strings.HasPrefix(key, RejectPrefix):
		return &domain.RejectedError{Code: "SANDBOX_REJECTED", Message: "sandbox rejected the payment"}
	case strings.HasPrefix(key, TimeoutPrefix):
		return domain.ErrGatewayTimeout
	default:
		return nil
	}
}

func encode(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
