// Package payout is the boundary to the bank that pays workers out.
package payout

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

var ErrTransferFailed = errors.New("bank_transfer_failed")

type Request struct {
	SettlementID snowflake.ID
	WorkerID     string
	Amount       int64
}

// BankTransfer sends money to a worker's bank account and returns the
// bank's reference for the transfer.
type BankTransfer interface {
	Transfer(ctx context.Context, req Request) (string, error)
}

// Simulated accepts every transfer unless Fail rejects it, and remembers
// what it sent.
type Simulated struct {
	Fail func(Request) error

	mu   sync.Mutex
	sent []Request
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Transfer(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Amount <= 0 {
		return "", ErrTransferFailed
	}
	if s.Fail != nil {
		if err := s.Fail(req); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
	return "po_" + ulid.Make().String(), nil
}

func (s *Simulated) Sent() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.sent))
	copy(out, s.sent)
	return out
}
