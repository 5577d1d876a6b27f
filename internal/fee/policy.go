package fee

import (
	"errors"
	"math/bits"
)

// BasisPointsScale is the denominator for rates expressed in basis points.
const BasisPointsScale = 10000

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidRate   = errors.New("invalid_fee_rate")
)

// PayerRole identifies who is charged the gross amount.
type PayerRole string

const (
	PayerRoleBusiness PayerRole = "business"
	PayerRoleWorker   PayerRole = "worker"
)

type Breakdown struct {
	Gross int64
	Fee   int64
	Net   int64
}

// Policy maps a gross amount to the platform fee and the net amount.
// Rates are basis points; RoleRateBps overrides RateBps for a payer role.
type Policy struct {
	RateBps     int64
	RoleRateBps map[PayerRole]int64
}

// RateFor returns the rate in basis points charged to role.
func (p Policy) RateFor(role PayerRole) int64 {
	if rate, ok := p.RoleRateBps[role]; ok {
		return rate
	}
	return p.RateBps
}

// Compute returns fee = floor(gross * rate) and net = gross - fee.
func (p Policy) Compute(gross int64, role PayerRole) (Breakdown, error) {
	if gross < 0 {
		return Breakdown{}, ErrInvalidAmount
	}
	rate := p.RateFor(role)
	if rate < 0 || rate > BasisPointsScale {
		return Breakdown{}, ErrInvalidRate
	}

	hi, lo := bits.Mul64(uint64(gross), uint64(rate))
	quo, _ := bits.Div64(hi, lo, BasisPointsScale)
	fee := int64(quo)

	return Breakdown{
		Gross: gross,
		Fee:   fee,
		Net:   gross - fee,
	}, nil
}

// Source yields the policy in force at call time.
type Source interface {
	Current() Policy
}

type StaticSource Policy

func (s StaticSource) Current() Policy {
	return Policy(s)
}

// Prorate returns floor(fee * part / whole), the share of an already charged
// fee that belongs to part of the gross amount.
func Prorate(fee, part, whole int64) (int64, error) {
	if fee < 0 || part < 0 || whole <= 0 || part > whole || fee > whole {
		return 0, ErrInvalidAmount
	}
	hi, lo := bits.Mul64(uint64(fee), uint64(part))
	quo, _ := bits.Div64(hi, lo, uint64(whole))
	return int64(quo), nil
}
