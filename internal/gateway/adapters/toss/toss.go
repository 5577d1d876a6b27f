package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payflow/internal/gateway/domain"
)

const (
	defaultBaseURL = "https://api.tosspayments.com"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// confirmNamespace scopes deterministic idempotency keys for confirmations.
var confirmNamespace = uuid.MustParse("5b0f2c1e-8d54-4c53-9a55-6a2f3b8e4d21")

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "toss"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Gateway, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, domain.ErrInvalidConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		baseURL: baseURL,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(secret+":")),
		timeout: timeout,
		client:  client,
	}, nil
}

type Adapter struct {
	baseURL string
	auth    string
	timeout time.Duration
	client  *http.Client
}

func (a *Adapter) Provider() string {
	return "toss"
}

func (a *Adapter) RequestConfirmation(ctx context.Context, req domain.ConfirmRequest) (*domain.Confirmation, error) {
	if strings.TrimSpace(req.PaymentKey) == "" || strings.TrimSpace(req.OrderID) == "" || req.Amount <= 0 {
		return nil, domain.ErrInvalidRequest
	}

	body := confirmBody{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
	}
	key := uuid.NewSHA1(confirmNamespace, []byte(req.OrderID+":"+req.PaymentKey)).String()

	var res paymentResponse
	raw, err := a.post(ctx, "/v1/payments/confirm", key, body, &res)
	if err != nil {
		return nil, err
	}

	return &domain.Confirmation{
		PaymentKey:    res.PaymentKey,
		OrderID:       res.OrderID,
		TransactionID: res.LastTransactionKey,
		Method:        res.Method,
		TotalAmount:   res.TotalAmount,
		ApprovedAt:    parseTime(res.ApprovedAt),
		Raw:           raw,
	}, nil
}

func (a *Adapter) RequestCancellation(ctx context.Context, req domain.CancelRequest) (*domain.Cancellation, error) {
	paymentKey := strings.TrimSpace(req.PaymentKey)
	if paymentKey == "" || strings.TrimSpace(req.CancelReason) == "" {
		return nil, domain.ErrInvalidRequest
	}
	if req.CancelAmount != nil && *req.CancelAmount <= 0 {
		return nil, domain.ErrInvalidRequest
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	body := cancelBody{
		CancelReason: req.CancelReason,
		CancelAmount: req.CancelAmount,
	}

	var res paymentResponse
	raw, err := a.post(ctx, "/v1/payments/"+url.PathEscape(paymentKey)+"/cancel", key, body, &res)
	if err != nil {
		return nil, err
	}

	out := &domain.Cancellation{
		PaymentKey:    res.PaymentKey,
		TransactionID: res.LastTransactionKey,
		Raw:           raw,
	}
	if n := len(res.Cancels); n > 0 {
		last := res.Cancels[n-1]
		out.CancelAmount = last.CancelAmount
		out.CancelledAt = parseTime(last.CanceledAt)
		if last.TransactionKey != "" {
			out.TransactionID = last.TransactionKey
		}
	}
	if out.CancelAmount == 0 && req.CancelAmount != nil {
		out.CancelAmount = *req.CancelAmount
	}
	return out, nil
}

func (a *Adapter) post(ctx context.Context, path, idempotencyKey string, body any, out any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", a.auth)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.ErrGatewayTimeout
		}
		return nil, &domain.RejectedError{Code: "NETWORK_ERROR", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, domain.ErrGatewayTimeout
		}
		return nil, &domain.RejectedError{StatusCode: resp.StatusCode, Code: "READ_ERROR", Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return nil, &domain.RejectedError{
			StatusCode: resp.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &domain.RejectedError{StatusCode: resp.StatusCode, Code: "INVALID_RESPONSE", Message: err.Error()}
	}
	return json.RawMessage(raw), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

type confirmBody struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type cancelBody struct {
	CancelReason string `json:"cancelReason"`
	CancelAmount *int64 `json:"cancelAmount,omitempty"`
}

type paymentResponse struct {
	PaymentKey         string         `json:"paymentKey"`
	OrderID            string         `json:"orderId"`
	Status             string         `json:"status"`
	Method             string         `json:"method"`
	TotalAmount        int64          `json:"totalAmount"`
	ApprovedAt         string         `json:"approvedAt"`
	LastTransactionKey string         `json:"lastTransactionKey"`
	Cancels            []cancelRecord `json:"cancels"`
}

type cancelRecord struct {
	CancelAmount   int64  `json:"cancelAmount"`
	CanceledAt     string `json:"canceledAt"`
	TransactionKey string `json:"transactionKey"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
