package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradehook/internal/strategy"
)

type BroadcastResult struct {
	Strategy string `json:"strategy"`
	Result   Result `json:"result"`
}

// Broadcast executes sig on every strategy independently and in parallel.
// One strategy's failure or panic never affects the others; results keep
// the input order.
func (e *Engine) Broadcast(ctx context.Context, sig Signal, items []*strategy.Strategy) []BroadcastResult {
	out := make([]BroadcastResult, len(items))
	var g errgroup.Group
	for i, s := range items {
		i, s := i, s
		if s == nil {
			out[i] = BroadcastResult{Result: Result{Status: StatusError, Reason: strategy.ErrNotFound.Error(), Signal: string(sig)}}
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger().Error("broadcast task panicked",
						zap.String("owner", s.Owner()),
						zap.String("strategy", s.Name()),
						zap.Any("panic", r),
					)
					out[i] = BroadcastResult{Strategy: s.Name(), Result: Result{
						Status:   StatusError,
						Reason:   fmt.Sprintf("panic: %v", r),
						Signal:   string(sig),
						Owner:    s.Owner(),
						Strategy: s.Name(),
					}}
				}
			}()
			out[i] = BroadcastResult{Strategy: s.Name(), Result: e.Execute(ctx, sig, s)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
