package cooldown

import (
	"time"

	"go.uber.org/zap"

	"tradehook/internal/strategy"
)

// Timer manages per-strategy cooldown windows. Expiry is lazy: a window is
// cleared by whichever query first observes it has elapsed.
type Timer struct {
	Now    func() time.Time
	Logger *zap.Logger
}

type Info struct {
	Active           bool       `json:"active"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	RemainingHours   int        `json:"remaining_hours"`
	RemainingMinutes int        `json:"remaining_minutes"`
}

func (t *Timer) now() time.Time {
	if t != nil && t.Now != nil {
		return t.Now()
	}
	return time.Now().UTC()
}

func (t *Timer) Start(s *strategy.Strategy, d time.Duration) {
	if s == nil {
		return
	}
	end := t.now().Add(d)
	s.SetCooldown(end)
	if t != nil && t.Logger != nil {
		t.Logger.Info("cooldown started",
			zap.String("owner", s.Owner()),
			zap.String("strategy", s.Name()),
			zap.Duration("duration", d),
			zap.Time("end_time", end),
		)
	}
}

func (t *Timer) IsActive(s *strategy.Strategy) bool {
	if s == nil {
		return false
	}
	active, _ := s.CheckCooldown(t.now())
	return active
}

// Stop force-clears the window.
func (t *Timer) Stop(s *strategy.Strategy) {
	if s == nil {
		return
	}
	s.ClearCooldown()
	if t != nil && t.Logger != nil {
		t.Logger.Info("cooldown stopped", zap.String("owner", s.Owner()), zap.String("strategy", s.Name()))
	}
}

func (t *Timer) Info(s *strategy.Strategy) Info {
	if s == nil {
		return Info{}
	}
	now := t.now()
	active, end := s.CheckCooldown(now)
	if !active {
		return Info{}
	}
	remaining := end.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Active:           true,
		EndTime:          &end,
		RemainingHours:   int(remaining / time.Hour),
		RemainingMinutes: int((remaining % time.Hour) / time.Minute),
	}
}

// Sweep clears elapsed windows so reporting and persisted rows stay current.
// It returns the number of windows cleared.
func (t *Timer) Sweep(items []*strategy.Strategy) int {
	cleared := 0
	now := t.now()
	for _, s := range items {
		if s == nil {
			continue
		}
		before := s.Snapshot().InCooldown
		if active, _ := s.CheckCooldown(now); before && !active {
			cleared++
		}
	}
	return cleared
}
