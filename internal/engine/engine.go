// Package engine turns trading signals into broker orders for one strategy
// at a time.
//
// An execution holds the strategy's processing guard from entry to return.
// While the cooldown window is open, signals are consumed without broker
// activity. Leg failures (one buy or one close) are logged and absorbed; the
// top-level result only reports whether the signal was acted upon.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradehook/internal/broker"
	"tradehook/internal/config"
	"tradehook/internal/cooldown"
	"tradehook/internal/events"
	"tradehook/internal/ledger"
	"tradehook/internal/metrics"
	"tradehook/internal/strategy"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusIgnored Status = "ignored"
	StatusError   Status = "error"
)

const (
	DetailCooldownActive = "cooldown_active"
	ReasonProcessing     = "processing"
)

// Broker is the order surface the engine drives.
type Broker interface {
	Buy(ctx context.Context, s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error)
	Close(ctx context.Context, s *strategy.Strategy, symbol string) (broker.Fill, error)
}

type Publisher interface {
	Publish(ev events.Event)
}

type Auditor interface {
	Record(ctx context.Context, action, level string, details map[string]any)
}

type Result struct {
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
	ExecutionID string `json:"execution_id"`
	Signal      string `json:"signal"`
	Owner       string `json:"owner"`
	Strategy    string `json:"strategy"`
}

type Engine struct {
	Broker   Broker
	Ledger   *ledger.Ledger
	Cooldown *cooldown.Timer
	Config   config.TradingConfig
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Events   Publisher
	Audit    Auditor

	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string
}

func (e *Engine) Execute(ctx context.Context, sig Signal, s *strategy.Strategy) Result {
	return e.run(ctx, s, string(sig), false, func() (Plan, error) { return Resolve(sig, s) })
}

func (e *Engine) ExecutePlan(ctx context.Context, plan Plan, s *strategy.Strategy) Result {
	return e.run(ctx, s, plan.Label(), false, func() (Plan, error) { return plan, nil })
}

// ForceExecute skips the cooldown check. The guard still applies and the
// cooldown window restarts.
func (e *Engine) ForceExecute(ctx context.Context, sig Signal, s *strategy.Strategy) Result {
	return e.run(ctx, s, string(sig), true, func() (Plan, error) { return Resolve(sig, s) })
}

func (e *Engine) ForceExecutePlan(ctx context.Context, plan Plan, s *strategy.Strategy) Result {
	return e.run(ctx, s, plan.Label(), true, func() (Plan, error) { return plan, nil })
}

func (e *Engine) run(ctx context.Context, s *strategy.Strategy, label string, force bool, resolve func() (Plan, error)) (res Result) {
	res = Result{ExecutionID: e.newID(), Signal: label}
	if s == nil {
		res.Status = StatusError
		res.Reason = strategy.ErrNotFound.Error()
		return res
	}
	res.Owner, res.Strategy = s.Owner(), s.Name()
	log := e.logger().With(
		zap.String("owner", s.Owner()),
		zap.String("strategy", s.Name()),
		zap.String("execution_id", res.ExecutionID),
		zap.String("signal", label),
	)

	if !s.TryBeginProcessing() {
		log.Warn("strategy is processing, signal ignored")
		res.Status = StatusIgnored
		res.Reason = ReasonProcessing
		e.Metrics.Execution(string(StatusIgnored))
		return res
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("execution panicked", zap.Any("panic", r), zap.Stack("stack"))
			res.Status = StatusError
			res.Reason = fmt.Sprintf("panic: %v", r)
		}
		s.EndProcessing()
		e.finish(ctx, log, s, res, time.Since(start))
	}()

	if !force && e.Cooldown.IsActive(s) {
		info := e.Cooldown.Info(s)
		log.Info("cooldown active, signal skipped",
			zap.Int("remaining_hours", info.RemainingHours),
			zap.Int("remaining_minutes", info.RemainingMinutes),
		)
		res.Status = StatusSuccess
		res.Detail = DetailCooldownActive
		return res
	}

	plan, err := resolve()
	if err != nil {
		log.Warn("signal could not be resolved", zap.Error(err))
		res.Status = StatusError
		res.Reason = err.Error()
		return res
	}

	e.Cooldown.Start(s, e.Config.CooldownPeriod())
	log.Info("executing plan",
		zap.Bool("force", force),
		zap.Strings("sells", plan.Sells),
		zap.String("buy", plan.Buy),
		zap.Bool("parallel_sells", plan.ParallelSells),
		zap.Stringer("buy_policy", plan.BuyPolicy),
	)
	e.publish(events.KindExecutionStarted, s, map[string]any{
		"execution_id": res.ExecutionID,
		"signal":       label,
		"force":        force,
	})

	if err := e.executePlan(ctx, log, plan, s); err != nil {
		log.Error("execution aborted", zap.Error(err))
		res.Status = StatusError
		res.Reason = err.Error()
		return res
	}
	res.Status = StatusSuccess
	return res
}

func (e *Engine) executePlan(ctx context.Context, log *zap.Logger, plan Plan, s *strategy.Strategy) error {
	if plan.Empty() {
		log.Info("nothing to execute, no symbols configured")
		return nil
	}
	if plan.ParallelSells {
		if err := e.closeAll(ctx, log, plan.Sells, s); err != nil {
			return err
		}
	} else {
		for i, symbol := range plan.Sells {
			if i > 0 {
				if err := e.sleep(ctx, e.Config.SequentialPause); err != nil {
					return err
				}
			}
			e.closePosition(ctx, log, s, symbol)
		}
	}

	if plan.Buy == "" {
		return nil
	}
	switch plan.BuyPolicy {
	case BuyAllCash:
		e.buyAllCash(ctx, log, s, plan.Buy)
	default:
		e.buy(ctx, log, s, plan.Buy)
	}
	// Let the broker settle before the signal is reported complete.
	return e.sleep(ctx, e.Config.PostBuyPause)
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, s *strategy.Strategy, res Result, elapsed time.Duration) {
	status := string(res.Status)
	if res.Detail == DetailCooldownActive {
		status = "cooldown"
	}
	e.Metrics.Execution(status)
	e.Metrics.ObserveExecution(elapsed.Seconds())
	e.Metrics.Cash(s.Owner(), s.Name(), s.CashBalance())
	log.Info("execution finished",
		zap.String("status", string(res.Status)),
		zap.String("detail", res.Detail),
		zap.String("reason", res.Reason),
		zap.Duration("elapsed", elapsed),
		zap.String("cash_balance", s.CashBalance().String()),
	)
	e.publish(events.KindExecutionFinished, s, map[string]any{
		"execution_id": res.ExecutionID,
		"signal":       res.Signal,
		"status":       res.Status,
		"detail":       res.Detail,
		"reason":       res.Reason,
	})
	if e.Audit != nil && res.Detail != DetailCooldownActive {
		level := "info"
		if res.Status == StatusError {
			level = "error"
		}
		e.Audit.Record(ctx, "signal_execution", level, map[string]any{
			"execution_id": res.ExecutionID,
			"owner":        res.Owner,
			"strategy":     res.Strategy,
			"signal":       res.Signal,
			"status":       res.Status,
			"reason":       res.Reason,
			"elapsed_ms":   elapsed.Milliseconds(),
		})
	}
}

func (e *Engine) publish(kind string, s *strategy.Strategy, data map[string]any) {
	if e.Events == nil {
		return
	}
	e.Events.Publish(events.Event{Kind: kind, Owner: s.Owner(), Strategy: s.Name(), Data: data})
}

func (e *Engine) buyReduction() decimal.Decimal {
	return decimal.NewFromFloat(e.Config.BuyRetryPercentage)
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
