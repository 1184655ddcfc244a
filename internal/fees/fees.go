// Package fees computes cash-in and payout fees from an injected policy.
package fees

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// Policy is the operational fee schedule.
type Policy struct {
	CashInPercent decimal.Decimal
	PayoutFlat    decimal.Decimal
}

type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) (*Engine, error) {
	if policy.CashInPercent.IsNegative() || policy.CashInPercent.GreaterThanOrEqual(hundred) {
		return nil, fmt.Errorf("%w: cash-in percent %s out of range", ErrInvalidAmount, policy.CashInPercent)
	}
	if policy.PayoutFlat.IsNegative() {
		return nil, fmt.Errorf("%w: payout fee %s is negative", ErrInvalidAmount, policy.PayoutFlat)
	}
	return &Engine{policy: policy}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// CashIn returns the fee for a cash-in under the configured percentage.
// A zero percentage means no fee.
func (e *Engine) CashIn(amount decimal.Decimal) (decimal.Decimal, error) {
	if e.policy.CashInPercent.IsZero() {
		if !amount.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
		}
		return decimal.Zero, nil
	}
	return CashInFee(amount, e.policy.CashInPercent)
}

// Payout returns the flat payout fee.
func (e *Engine) Payout() decimal.Decimal {
	return e.policy.PayoutFlat
}

// CashInFee returns amount*percent/100 rounded half-up to cents. Both inputs
// may be numbers, numeric strings or decimals.
func CashInFee(amount, percent any) (decimal.Decimal, error) {
	a, err := ToDecimal(amount)
	if err != nil {
		return decimal.Zero, err
	}
	p, err := ToDecimal(percent)
	if err != nil {
		return decimal.Zero, err
	}
	if !a.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount %s must be positive", ErrInvalidAmount, a)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: percent %s must be positive", ErrInvalidAmount, p)
	}
	return a.Mul(p).Div(hundred).Round(2), nil
}

// ToDecimal converts the numeric forms accepted at the API boundary.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, fmt.Errorf("%w: nil", ErrInvalidAmount)
		}
		return *x, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, x)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, x)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint:
		return decimal.NewFromInt(int64(x)), nil
	case uint32:
		return decimal.NewFromInt(int64(x)), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}
