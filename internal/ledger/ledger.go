package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradehook/internal/strategy"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Ledger keeps the approximate cash balance used to size orders.
type Ledger struct {
	MinimumCashBalance decimal.Decimal
	Logger             *zap.Logger
}

// MaxShares is the largest whole-share quantity the strategy's cash covers at
// price. It is zero at or below the minimum balance and never negative.
func (l *Ledger) MaxShares(price decimal.Decimal, s *strategy.Strategy) int64 {
	if s == nil || !price.IsPositive() {
		return 0
	}
	balance := s.CashBalance()
	if balance.LessThanOrEqual(l.minimum()) {
		l.log("cash at or below minimum, no shares", s, zap.String("balance", balance.String()))
		return 0
	}
	q, _ := balance.QuoRem(price, 0)
	shares := q.IntPart()
	if shares < 0 {
		return 0
	}
	return shares
}

// ApplyBuy debits price*qty. The balance is floored at zero.
func (l *Ledger) ApplyBuy(price decimal.Decimal, qty int64, s *strategy.Strategy) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	cost := price.Mul(decimal.NewFromInt(qty))
	before, after := s.AdjustCash(cost.Neg(), true)
	l.log("cash debited for buy", s,
		zap.String("before", before.String()),
		zap.String("cost", cost.String()),
		zap.String("after", after.String()),
	)
	return after
}

// ApplyClose credits price*qty; a nil price or quantity (no open position)
// leaves the balance untouched.
func (l *Ledger) ApplyClose(price, qty *decimal.Decimal, s *strategy.Strategy) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	if price == nil || qty == nil {
		return s.CashBalance()
	}
	proceeds := price.Mul(*qty)
	before, after := s.AdjustCash(proceeds, true)
	l.log("cash credited for close", s,
		zap.String("before", before.String()),
		zap.String("proceeds", proceeds.String()),
		zap.String("after", after.String()),
	)
	return after
}

// ApplyManual overrides the balance. It is the only path that may set a
// negative balance. The override holds the processing guard, so it fails
// with strategy.ErrBusy while a signal is executing.
func (l *Ledger) ApplyManual(amount string, s *strategy.Strategy) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, errors.New("nil strategy")
	}
	v, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return s.CashBalance(), fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !s.TryBeginProcessing() {
		return s.CashBalance(), strategy.ErrBusy
	}
	defer s.EndProcessing()
	s.SetCashBalance(v)
	l.log("cash manually updated", s, zap.String("balance", v.String()))
	return v, nil
}

func (l *Ledger) minimum() decimal.Decimal {
	if l == nil {
		return decimal.Zero
	}
	return l.MinimumCashBalance
}

func (l *Ledger) log(msg string, s *strategy.Strategy, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	fields = append(fields, zap.String("owner", s.Owner()), zap.String("strategy", s.Name()))
	l.Logger.Info(msg, fields...)
}
