package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
)

type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*ConfirmPaymentResponse, error)
	CancelPayment(ctx context.Context, req CancelPaymentRequest) (*CancelPaymentResponse, error)
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetPaymentHistory(ctx context.Context, req HistoryRequest) (*HistoryResponse, error)
}

type CreatePaymentRequest struct {
	JobID               string
	WorkerID            string
	BusinessID          string
	Amount              int64
	OrderName           string
	CustomerName        string
	CustomerEmail       string
	CustomerMobilePhone string
}

type CreatePaymentResponse struct {
	PaymentID    snowflake.ID `json:"payment_id"`
	OrderID      string       `json:"order_id"`
	Amount       int64        `json:"amount"`
	CustomerName string       `json:"customer_name"`
}

type ConfirmPaymentRequest struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

type ConfirmPaymentResponse struct {
	PaymentID  snowflake.ID `json:"payment_id"`
	OrderID    string       `json:"order_id"`
	Status     Status       `json:"status"`
	ApprovedAt time.Time    `json:"approved_at"`
}

type CancelPaymentRequest struct {
	PaymentID    snowflake.ID
	CancelReason string
	// CancelAmount nil cancels whatever has not been refunded yet.
	CancelAmount *int64
}

type CancelPaymentResponse struct {
	PaymentID    snowflake.ID `json:"payment_id"`
	Status       Status       `json:"status"`
	CancelledAt  time.Time    `json:"cancelled_at"`
	CancelAmount int64        `json:"cancel_amount"`
}

type HistoryRequest struct {
	UserID string
	Status Status
	Method string
	pagination.Pagination
}

type HistoryResponse struct {
	Payments []Payment          `json:"payments"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidJob                 = errors.New("invalid_job")
	ErrInvalidWorker              = errors.New("invalid_worker")
	ErrInvalidBusiness            = errors.New("invalid_business")
	ErrInvalidAmount              = errors.New("invalid_amount")
	ErrInvalidOrder               = errors.New("invalid_order")
	ErrInvalidPaymentKey          = errors.New("invalid_payment_key")
	ErrInvalidCancelReason        = errors.New("invalid_cancel_reason")
	ErrInvalidCancelAmount        = errors.New("invalid_cancel_amount")
	ErrInvalidUser                = errors.New("invalid_user")
	ErrInvalidStatus              = errors.New("invalid_status")
	ErrPaymentNotFound            = errors.New("payment_not_found")
	ErrAmountMismatch             = errors.New("amount_mismatch")
	ErrPaymentNotPending          = errors.New("payment_not_pending")
	ErrNotCompletedYet            = errors.New("payment_not_completed")
	ErrAlreadyCancelled           = errors.New("payment_already_cancelled")
	ErrCancelAmountExceeded       = errors.New("cancel_amount_exceeded")
	ErrInsufficientPendingBalance = errors.New("insufficient_pending_balance")
	ErrPaymentBusy                = errors.New("payment_busy")
	ErrConcurrentUpdate           = errors.New("payment_concurrent_update")
	ErrPaymentInSettlement        = errors.New("payment_in_settlement")
)
