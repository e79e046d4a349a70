package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradehook/internal/broker"
	"tradehook/internal/events"
	"tradehook/internal/strategy"
)

var ErrPriceUnavailable = errors.New("price unavailable")

const (
	legBuy   = "buy"
	legClose = "close"
)

// probe buys one share to learn the fill price and books it.
func (e *Engine) probe(ctx context.Context, log *zap.Logger, s *strategy.Strategy, symbol string) (decimal.Decimal, error) {
	fill, err := e.Broker.Buy(ctx, s, symbol, 1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w for %s: %v", ErrPriceUnavailable, symbol, err)
	}
	if fill.Price == nil || !fill.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %s: broker reported no price", ErrPriceUnavailable, symbol)
	}
	price := *fill.Price
	e.Ledger.ApplyBuy(price, 1, s)
	log.Info("price probe filled", zap.String("symbol", symbol), zap.String("price", price.String()))
	return price, nil
}

// buy is the conservative buy leg: probe, then size against cash and shrink
// the order after each rejection until MaxBuyRetries attempts are spent.
func (e *Engine) buy(ctx context.Context, log *zap.Logger, s *strategy.Strategy, symbol string) {
	log = log.With(zap.String("symbol", symbol))
	price, err := e.probe(ctx, log, s, symbol)
	if err != nil {
		log.Error("buy aborted", zap.Error(err))
		e.leg(s, legBuy, "price_unavailable", symbol, nil)
		return
	}

	shares := e.Ledger.MaxShares(price, s)
	if shares <= 0 {
		log.Info("not enough cash beyond the probe share", zap.String("cash_balance", s.CashBalance().String()))
		e.leg(s, legBuy, "probe_only", symbol, map[string]any{"shares": 1})
		return
	}

	attempts := e.Config.MaxBuyRetries
	if attempts <= 0 {
		attempts = 1
	}
	requested := shares
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Info("buying sized order",
			zap.Int64("shares", shares),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
		)
		fill, err := e.Broker.Buy(ctx, s, symbol, shares)
		if err == nil {
			e.bookBuy(log, s, symbol, price, shares, fill)
			return
		}
		log.Warn("sized buy failed", zap.Int64("shares", shares), zap.Error(err))
		if errors.Is(err, broker.ErrNoEndpoint) || attempt == attempts {
			break
		}
		shares = ReduceShares(shares, e.buyReduction())
		if err := e.sleep(ctx, e.Config.BuyRetryInterval); err != nil {
			log.Warn("buy retry interrupted", zap.Error(err))
			break
		}
	}
	log.Error("sized buy gave up, holding probe share only",
		zap.Int64("requested_shares", requested),
		zap.Int64("last_shares", shares),
	)
	e.leg(s, legBuy, "failed", symbol, map[string]any{"requested_shares": requested, "last_shares": shares})
}

// buyAllCash probes, then places one order for the full max-shares quantity
// and accepts whatever the broker answers.
func (e *Engine) buyAllCash(ctx context.Context, log *zap.Logger, s *strategy.Strategy, symbol string) {
	log = log.With(zap.String("symbol", symbol), zap.String("buy_policy", BuyAllCash.String()))
	price, err := e.probe(ctx, log, s, symbol)
	if err != nil {
		log.Error("buy aborted", zap.Error(err))
		e.leg(s, legBuy, "price_unavailable", symbol, nil)
		return
	}
	shares := e.Ledger.MaxShares(price, s)
	if shares <= 0 {
		log.Info("not enough cash beyond the probe share", zap.String("cash_balance", s.CashBalance().String()))
		e.leg(s, legBuy, "probe_only", symbol, map[string]any{"shares": 1})
		return
	}
	fill, err := e.Broker.Buy(ctx, s, symbol, shares)
	if err != nil {
		log.Error("all-cash buy failed, holding probe share only", zap.Int64("shares", shares), zap.Error(err))
		e.leg(s, legBuy, "failed", symbol, map[string]any{"requested_shares": shares})
		return
	}
	e.bookBuy(log, s, symbol, price, shares, fill)
}

func (e *Engine) bookBuy(log *zap.Logger, s *strategy.Strategy, symbol string, probePrice decimal.Decimal, shares int64, fill broker.Fill) {
	price := probePrice
	if fill.Price != nil && fill.Price.IsPositive() {
		price = *fill.Price
	}
	after := e.Ledger.ApplyBuy(price, shares, s)
	log.Info("sized buy filled",
		zap.Int64("shares", shares),
		zap.String("price", price.String()),
		zap.String("cash_balance", after.String()),
	)
	e.leg(s, legBuy, "ok", symbol, map[string]any{"shares": shares, "price": price.String()})
}

// closePosition retries a close up to MaxCloseRetries times. "No position" is
// a successful outcome; exhausting the retries leaves the position open and
// lets the plan continue.
func (e *Engine) closePosition(ctx context.Context, log *zap.Logger, s *strategy.Strategy, symbol string) {
	log = log.With(zap.String("symbol", symbol))
	attempts := e.Config.MaxCloseRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		fill, err := e.Broker.Close(ctx, s, symbol)
		if err == nil {
			if fill.NoPosition() {
				log.Info("no open position to close")
				e.leg(s, legClose, "no_position", symbol, nil)
				return
			}
			after := e.Ledger.ApplyClose(fill.Price, fill.Quantity, s)
			log.Info("position closed",
				zap.String("price", fill.Price.String()),
				zap.String("quantity", fill.Quantity.String()),
				zap.String("cash_balance", after.String()),
			)
			e.leg(s, legClose, "ok", symbol, map[string]any{
				"price":    fill.Price.String(),
				"quantity": fill.Quantity.String(),
			})
			return
		}
		log.Warn("close failed", zap.Int("attempt", attempt), zap.Int("max_attempts", attempts), zap.Error(err))
		if errors.Is(err, broker.ErrNoEndpoint) || attempt == attempts {
			break
		}
		if err := e.sleep(ctx, e.Config.CloseRetryInterval); err != nil {
			log.Warn("close retry interrupted", zap.Error(err))
			break
		}
	}
	log.Error("close gave up, position may remain open")
	e.leg(s, legClose, "failed", symbol, nil)
}

// closeAll closes every symbol concurrently. A panic in one leg is turned
// into an error so the execution boundary can report it.
func (e *Engine) closeAll(ctx context.Context, log *zap.Logger, symbols []string, s *strategy.Strategy) error {
	var g errgroup.Group
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("close leg panicked", zap.String("symbol", symbol), zap.Any("panic", r), zap.Stack("stack"))
					err = fmt.Errorf("close %s panicked: %v", symbol, r)
				}
			}()
			e.closePosition(ctx, log, s, symbol)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) leg(s *strategy.Strategy, kind, outcome, symbol string, data map[string]any) {
	e.Metrics.Leg(kind, outcome)
	if e.Events == nil {
		return
	}
	payload := map[string]any{"kind": kind, "outcome": outcome, "symbol": symbol}
	for k, v := range data {
		payload[k] = v
	}
	e.Events.Publish(events.Event{Kind: events.KindLeg, Owner: s.Owner(), Strategy: s.Name(), Data: payload})
}
