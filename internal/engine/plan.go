package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradehook/internal/strategy"
)

var ErrUnknownSignal = errors.New("unknown signal")

type Signal string

const (
	SignalLong  Signal = "long"
	SignalShort Signal = "short"
	SignalClose Signal = "close"
)

func ParseSignal(raw string) (Signal, error) {
	switch sig := Signal(strings.ToLower(strings.TrimSpace(raw))); sig {
	case SignalLong, SignalShort, SignalClose:
		return sig, nil
	default:
		return "", fmt.Errorf("%w: %q (expected long, short or close)", ErrUnknownSignal, raw)
	}
}

// BuyPolicy selects how the buy leg sizes its order after the price probe.
type BuyPolicy int

const (
	// BuyConservative shrinks the sized order and retries a bounded number of times.
	BuyConservative BuyPolicy = iota
	// BuyAllCash places one order for everything the cash covers and accepts the outcome.
	BuyAllCash
)

func (p BuyPolicy) String() string {
	if p == BuyAllCash {
		return "all_cash"
	}
	return "conservative"
}

// Plan is a resolved signal: closes first, then at most one buy.
type Plan struct {
	Sells []string
	Buy   string
	// ParallelSells closes every symbol at once; otherwise Sells run in order.
	ParallelSells bool
	BuyPolicy     BuyPolicy
}

// Resolve maps a directional signal to a plan using the strategy's symbols.
// Unconfigured symbols are skipped.
func Resolve(sig Signal, s *strategy.Strategy) (Plan, error) {
	long, short := s.Symbols()
	switch sig {
	case SignalLong:
		return Plan{Sells: nonEmpty(short), Buy: long}, nil
	case SignalShort:
		return Plan{Sells: nonEmpty(long), Buy: short}, nil
	case SignalClose:
		return Plan{Sells: nonEmpty(long, short), ParallelSells: true}, nil
	default:
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownSignal, sig)
	}
}

// MultiPlan builds the generalized instruction: sell each symbol in order,
// then buy with all freed cash.
func MultiPlan(buy string, sells []string) Plan {
	return Plan{
		Sells:     nonEmpty(sells...),
		Buy:       strings.TrimSpace(buy),
		BuyPolicy: BuyAllCash,
	}
}

// Empty reports a plan with nothing to do.
func (p Plan) Empty() bool {
	return len(p.Sells) == 0 && p.Buy == ""
}

// Label is a short description used in logs and results.
func (p Plan) Label() string {
	var b strings.Builder
	if len(p.Sells) > 0 {
		b.WriteString("sell:")
		b.WriteString(strings.Join(p.Sells, ","))
	}
	if p.Buy != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("buy:")
		b.WriteString(p.Buy)
	}
	if b.Len() == 0 {
		return "noop"
	}
	return b.String()
}

// ReduceShares shrinks a rejected order by pct percent, at least one share,
// never below one.
func ReduceShares(shares int64, pct decimal.Decimal) int64 {
	step := decimal.NewFromInt(shares).Mul(pct).Div(decimal.NewFromInt(100)).Floor().IntPart()
	if step < 1 {
		step = 1
	}
	next := shares - step
	if next < 1 {
		return 1
	}
	return next
}

func nonEmpty(symbols ...string) []string {
	var out []string
	for _, sym := range symbols {
		if sym = strings.TrimSpace(sym); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
