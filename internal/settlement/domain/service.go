package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
)

type Service interface {
	CreateSettlement(ctx context.Context, jobID string) (*Settlement, error)
	ProcessSettlement(ctx context.Context, id snowflake.ID) (*Settlement, error)
	ProcessDueSettlements(ctx context.Context) (BatchResult, error)
	CreateWeeklySettlements(ctx context.Context) (SweepResult, error)
	RetrySettlement(ctx context.Context, id snowflake.ID) (*Settlement, error)
	RecoverStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error)
	GetSettlement(ctx context.Context, id snowflake.ID) (*Settlement, error)
	ListSettlements(ctx context.Context, req ListSettlementRequest) (*ListSettlementResponse, error)
}

// BatchResult counts settlements attempted by a batch run and how many of
// them ended FAILED or errored.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type SweepResult struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

type ListSettlementRequest struct {
	WorkerID string
	Status   Status
	pagination.Pagination
}

type ListSettlementResponse struct {
	Settlements []Settlement        `json:"settlements"`
	PageInfo    pagination.PageInfo `json:"page_info"`
}

const (
	ReasonProcessingInterrupted = "processing interrupted"
	ReasonPaymentRevoked        = "payment refunded after scheduling"
)

var (
	ErrInvalidJob          = errors.New("invalid_job")
	ErrJobNotFound         = errors.New("job_not_found")
	ErrJobNotCompleted     = errors.New("job_not_completed")
	ErrNoWorkSession       = errors.New("no_work_session")
	ErrNoCompletedPayments = errors.New("no_completed_payments")
	ErrAlreadySettled      = errors.New("payments_already_settled")
	ErrSettlementNotFound  = errors.New("settlement_not_found")
	ErrNotPending          = errors.New("settlement_not_pending")
	ErrNotFailed           = errors.New("settlement_not_failed")
	ErrInvalidStatus       = errors.New("invalid_status")
)
