package cooldown

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradehook/internal/strategy"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newStrategy(t *testing.T) *strategy.Strategy {
	t.Helper()
	s, err := strategy.New("alice", "cooler", "A", "B", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	return s
}

func TestCooldownSelfExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	timer := &Timer{Now: clock.Now}
	s := newStrategy(t)

	timer.Start(s, time.Hour)
	if !timer.IsActive(s) {
		t.Fatalf("cooldown not active right after start")
	}

	clock.t = clock.t.Add(30 * time.Minute)
	if !timer.IsActive(s) {
		t.Fatalf("cooldown expired early")
	}

	clock.t = clock.t.Add(31 * time.Minute)
	if timer.IsActive(s) {
		t.Fatalf("cooldown still active after window")
	}
	snap := s.Snapshot()
	if snap.InCooldown || snap.CooldownEndTime != nil {
		t.Fatalf("fields not cleared: %+v", snap)
	}
}

func TestCooldownInfoRemaining(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	timer := &Timer{Now: clock.Now}
	s := newStrategy(t)

	if info := timer.Info(s); info.Active {
		t.Fatalf("info active before start: %+v", info)
	}
	timer.Start(s, 12*time.Hour)
	clock.t = clock.t.Add(2*time.Hour + 15*time.Minute)
	info := timer.Info(s)
	if !info.Active || info.RemainingHours != 9 || info.RemainingMinutes != 45 {
		t.Fatalf("info=%+v want 9h45m", info)
	}
	if info.EndTime == nil || !info.EndTime.Equal(time.Date(2026, 1, 2, 22, 0, 0, 0, time.UTC)) {
		t.Fatalf("end=%v", info.EndTime)
	}
}

func TestCooldownInfoAtExactEnd(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	timer := &Timer{Now: clock.Now}
	s := newStrategy(t)
	timer.Start(s, time.Hour)

	clock.t = clock.t.Add(time.Hour)
	info := timer.Info(s)
	if !info.Active || info.RemainingHours != 0 || info.RemainingMinutes != 0 || info.EndTime == nil {
		t.Fatalf("info=%+v want active with nothing remaining", info)
	}
	if !timer.IsActive(s) {
		t.Fatalf("Info and IsActive disagree at the end instant")
	}

	clock.t = clock.t.Add(time.Nanosecond)
	if timer.Info(s).Active || timer.IsActive(s) {
		t.Fatalf("cooldown still active after its end")
	}
}

func TestCooldownStop(t *testing.T) {
	timer := &Timer{}
	s := newStrategy(t)
	timer.Start(s, time.Hour)
	timer.Stop(s)
	if timer.IsActive(s) {
		t.Fatalf("cooldown active after stop")
	}
}

func TestSweepClearsOnlyElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	timer := &Timer{Now: clock.Now}
	short, long := newStrategy(t), newStrategy(t)
	timer.Start(short, time.Minute)
	timer.Start(long, time.Hour)
	clock.t = clock.t.Add(2 * time.Minute)
	if n := timer.Sweep([]*strategy.Strategy{short, long, nil}); n != 1 {
		t.Fatalf("cleared=%d want 1", n)
	}
	if !long.Snapshot().InCooldown {
		t.Fatalf("long window cleared")
	}
}
