package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Gateway is the boundary to an external payment provider. Implementations
// are stateless and never persist anything.
type Gateway interface {
	Provider() string
	RequestConfirmation(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
	RequestCancellation(ctx context.Context, req CancelRequest) (*Cancellation, error)
}

type ConfirmRequest struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

type Confirmation struct {
	PaymentKey    string
	OrderID       string
	TransactionID string
	Method        string
	TotalAmount   int64
	ApprovedAt    time.Time
	Raw           json.RawMessage
}

type CancelRequest struct {
	PaymentKey   string
	CancelReason string
	// CancelAmount nil cancels the remaining amount.
	CancelAmount   *int64
	IdempotencyKey string
}

type Cancellation struct {
	PaymentKey    string
	TransactionID string
	CancelAmount  int64
	CancelledAt   time.Time
	Raw           json.RawMessage
}

type AdapterConfig struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

var (
	ErrGatewayRejected  = errors.New("gateway_rejected")
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrProviderNotFound = errors.New("gateway_provider_not_found")
	ErrInvalidRequest   = errors.New("invalid_gateway_request")
)

// ErrGatewayTimeout is reported when the provider does not answer in time.
// It matches ErrGatewayRejected so callers treat it as a rejection.
var ErrGatewayTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "gateway_timeout" }

func (timeoutError) Is(target error) bool { return target == ErrGatewayRejected }

// RejectedError carries the provider's reason for a non-2xx answer.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway_rejected: %s: %s", e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrGatewayRejected }

// RejectionReason extracts a human readable reason from a gateway error.
func RejectionReason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		if rejected.Message != "" {
			return rejected.Message
		}
		return rejected.Code
	}
	if errors.Is(err, ErrGatewayTimeout) {
		return "gateway timeout"
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
