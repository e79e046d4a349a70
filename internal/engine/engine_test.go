package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradehook/internal/broker"
	"tradehook/internal/config"
	"tradehook/internal/cooldown"
	"tradehook/internal/ledger"
	"tradehook/internal/strategy"
)

type brokerCall struct {
	action string
	symbol string
	qty    int64
}

func (c brokerCall) String() string {
	if c.action == broker.ActionBuy {
		return fmt.Sprintf("buy %s %d", c.symbol, c.qty)
	}
	return "close " + c.symbol
}

// fakeBroker answers from scripted funcs and, like the real client, records
// each answered call on the strategy.
type fakeBroker struct {
	mu    sync.Mutex
	calls []brokerCall

	buy   func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error)
	close func(s *strategy.Strategy, symbol string) (broker.Fill, error)
}

func (f *fakeBroker) Buy(ctx context.Context, s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
	f.record(brokerCall{action: broker.ActionBuy, symbol: symbol, qty: qty})
	fill, err := f.buy(s, symbol, qty)
	s.AddAPICall(map[string]any{"symbol": symbol, "action": "buy", "quantity": qty}, map[string]any{"status": fill.Status}, time.Time{})
	return fill, err
}

func (f *fakeBroker) Close(ctx context.Context, s *strategy.Strategy, symbol string) (broker.Fill, error) {
	f.record(brokerCall{action: broker.ActionClose, symbol: symbol})
	if f.close == nil {
		return accepted(), nil
	}
	fill, err := f.close(s, symbol)
	s.AddAPICall(map[string]any{"symbol": symbol, "action": "close"}, map[string]any{"status": fill.Status}, time.Time{})
	return fill, err
}

func (f *fakeBroker) record(c brokerCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeBroker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

func filled(price string) broker.Fill {
	p := decimal.RequireFromString(price)
	return broker.Fill{Status: broker.StatusFilled, Price: &p}
}

func closedAt(price, qty string) broker.Fill {
	p := decimal.RequireFromString(price)
	q := decimal.RequireFromString(qty)
	return broker.Fill{Status: broker.StatusFilled, Price: &p, Quantity: &q}
}

func accepted() broker.Fill {
	return broker.Fill{Status: broker.StatusAccepted}
}

var errTransient = fmt.Errorf("%w: buy", broker.ErrRetriesExhausted)

type sleepLog struct {
	mu sync.Mutex
	d  []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.d = append(l.d, d)
	l.mu.Unlock()
	return nil
}

var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newEngine(b Broker) (*Engine, *sleepLog) {
	sl := &sleepLog{}
	return &Engine{
		Broker:   b,
		Ledger:   &ledger.Ledger{MinimumCashBalance: decimal.NewFromInt(5)},
		Cooldown: &cooldown.Timer{Now: func() time.Time { return testNow }},
		Config: config.TradingConfig{
			CooldownPeriodHours: 12,
			MaxBuyRetries:       5,
			BuyRetryPercentage:  2,
			BuyRetryInterval:    3 * time.Second,
			MaxCloseRetries:     5,
			CloseRetryInterval:  3 * time.Second,
			SequentialPause:     time.Second,
			PostBuyPause:        3 * time.Second,
		},
		Sleep: sl.sleep,
		NewID: func() string { return "exec-1" },
	}, sl
}

func newStrategy(t *testing.T, name string, cash int64) *strategy.Strategy {
	t.Helper()
	s, err := strategy.New("alice", name, "AAA", "BBB", decimal.NewFromInt(cash))
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	return s
}

func assertCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls=%v want %v", got, want)
		}
	}
}

func TestExecuteLongScenario(t *testing.T) {
	b := &fakeBroker{
		buy: func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
			return filled("10"), nil
		},
		close: func(s *strategy.Strategy, symbol string) (broker.Fill, error) {
			return accepted(), nil
		},
	}
	e, sl := newEngine(b)
	s := newStrategy(t, "scenario", 1000)

	res := e.Execute(context.Background(), SignalLong, s)
	if res.Status != StatusSuccess || res.ExecutionID != "exec-1" {
		t.Fatalf("result=%+v", res)
	}
	assertCalls(t, b.Calls(), "close BBB", "buy AAA 1", "buy AAA 99")
	if !s.CashBalance().IsZero() {
		t.Fatalf("cash=%s want 0", s.CashBalance())
	}
	if s.IsProcessing() {
		t.Fatalf("guard still held")
	}
	if !e.Cooldown.IsActive(s) {
		t.Fatalf("cooldown not active")
	}
	if n := len(s.APICalls()); n != 3 {
		t.Fatalf("history=%d want 3", n)
	}
	if len(sl.d) != 1 || sl.d[0] != 3*time.Second {
		t.Fatalf("pauses=%v want [3s]", sl.d)
	}
}

func TestCooldownSuppressesExecution(t *testing.T) {
	b := &fakeBroker{buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) { return filled("1"), nil }}
	e, _ := newEngine(b)
	s := newStrategy(t, "cooling", 1000)
	end := testNow.Add(time.Hour)
	s.SetCooldown(end)

	res := e.Execute(context.Background(), SignalShort, s)
	if res.Status != StatusSuccess || res.Detail != DetailCooldownActive {
		t.Fatalf("result=%+v", res)
	}
	if calls := b.Calls(); len(calls) != 0 {
		t.Fatalf("calls=%v want none", calls)
	}
	if _, got := s.CheckCooldown(testNow); !got.Equal(end) {
		t.Fatalf("cooldown end changed to %s", got)
	}
	if s.IsProcessing() {
		t.Fatalf("guard still held")
	}
}

func TestForceExecuteBypassesCooldown(t *testing.T) {
	b := &fakeBroker{buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) { return filled("500"), nil }}
	e, _ := newEngine(b)
	s := newStrategy(t, "forced", 1000)
	s.SetCooldown(testNow.Add(time.Hour))

	res := e.ForceExecute(context.Background(), SignalLong, s)
	if res.Status != StatusSuccess || res.Detail != "" {
		t.Fatalf("result=%+v", res)
	}
	assertCalls(t, b.Calls(), "close BBB", "buy AAA 1")
	_, end := s.CheckCooldown(testNow)
	if !end.Equal(testNow.Add(12 * time.Hour)) {
		t.Fatalf("cooldown end=%s want restart", end)
	}
}

func TestConcurrentExecuteIsExclusive(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b := &fakeBroker{
		buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) { return filled("10"), nil },
		close: func(*strategy.Strategy, string) (broker.Fill, error) {
			once.Do(func() { close(entered) })
			<-release
			return accepted(), nil
		},
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "exclusive", 1000)

	first := make(chan Result, 1)
	go func() { first <- e.Execute(context.Background(), SignalLong, s) }()
	<-entered

	var wg sync.WaitGroup
	ignored := make(chan Result, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ignored <- e.Execute(context.Background(), SignalShort, s)
		}()
	}
	wg.Wait()
	close(ignored)
	for res := range ignored {
		if res.Status != StatusIgnored || res.Reason != ReasonProcessing {
			t.Fatalf("concurrent result=%+v", res)
		}
	}

	close(release)
	if res := <-first; res.Status != StatusSuccess {
		t.Fatalf("first result=%+v", res)
	}
	if s.IsProcessing() {
		t.Fatalf("guard still held")
	}
}

func TestSizedBuyShrinksUntilAccepted(t *testing.T) {
	const limit = 97
	b := &fakeBroker{buy: func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
		if qty >= limit {
			return broker.Fill{}, errTransient
		}
		return filled("10"), nil
	}}
	e, sl := newEngine(b)
	s := newStrategy(t, "shrinking", 1000)

	e.Execute(context.Background(), SignalLong, s)
	assertCalls(t, b.Calls(), "close BBB", "buy AAA 1", "buy AAA 99", "buy AAA 98", "buy AAA 97", "buy AAA 96")
	if !s.CashBalance().Equal(decimal.NewFromInt(30)) {
		t.Fatalf("cash=%s want 30", s.CashBalance())
	}
	// three buy retries then the post-buy pause
	if len(sl.d) != 4 || sl.d[0] != 3*time.Second {
		t.Fatalf("pauses=%v", sl.d)
	}
}

func TestSizedBuyGivesUpAfterRetryBudget(t *testing.T) {
	b := &fakeBroker{buy: func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
		if qty >= 50 {
			return broker.Fill{}, errTransient
		}
		return filled("10"), nil
	}}
	e, _ := newEngine(b)
	s := newStrategy(t, "giving_up", 1000)

	res := e.Execute(context.Background(), SignalLong, s)
	if res.Status != StatusSuccess {
		t.Fatalf("result=%+v", res)
	}
	calls := b.Calls()
	// close + probe + MaxBuyRetries sized attempts
	if len(calls) != 2+5 {
		t.Fatalf("calls=%v", calls)
	}
	if !s.CashBalance().Equal(decimal.NewFromInt(990)) {
		t.Fatalf("cash=%s want 990 (probe share only)", s.CashBalance())
	}
}

func TestProbeFailureAbortsBuyOnly(t *testing.T) {
	b := &fakeBroker{
		buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) {
			return broker.Fill{}, broker.ErrOrderRejected
		},
		close: func(*strategy.Strategy, string) (broker.Fill, error) { return closedAt("12.5", "40"), nil },
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "no_price", 1000)

	res := e.Execute(context.Background(), SignalShort, s)
	if res.Status != StatusSuccess {
		t.Fatalf("result=%+v", res)
	}
	assertCalls(t, b.Calls(), "close AAA", "buy BBB 1")
	if !s.CashBalance().Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("cash=%s want 1500", s.CashBalance())
	}
}

func TestCloseSignalNoPositionLeavesCash(t *testing.T) {
	b := &fakeBroker{
		buy:   func(*strategy.Strategy, string, int64) (broker.Fill, error) { t.Fatalf("unexpected buy"); return broker.Fill{}, nil },
		close: func(*strategy.Strategy, string) (broker.Fill, error) { return accepted(), nil },
	}
	e, sl := newEngine(b)
	s := newStrategy(t, "flat_book", 1000)

	res := e.Execute(context.Background(), SignalClose, s)
	if res.Status != StatusSuccess {
		t.Fatalf("result=%+v", res)
	}
	if calls := b.Calls(); len(calls) != 2 {
		t.Fatalf("calls=%v", calls)
	}
	if !s.CashBalance().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("cash=%s", s.CashBalance())
	}
	if len(sl.d) != 0 {
		t.Fatalf("pauses=%v want none", sl.d)
	}
}

func TestCloseFillWithoutQuantityBooksNothing(t *testing.T) {
	b := &fakeBroker{
		buy:   func(*strategy.Strategy, string, int64) (broker.Fill, error) { t.Fatalf("unexpected buy"); return broker.Fill{}, nil },
		close: func(*strategy.Strategy, string) (broker.Fill, error) { return filled("12"), nil },
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "half_fill", 1000)

	if res := e.Execute(context.Background(), SignalClose, s); res.Status != StatusSuccess {
		t.Fatalf("result=%+v", res)
	}
	if calls := b.Calls(); len(calls) != 2 {
		t.Fatalf("calls=%v want one close per symbol", calls)
	}
	if !s.CashBalance().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("cash=%s", s.CashBalance())
	}
}

func TestCloseRetriesAreBounded(t *testing.T) {
	b := &fakeBroker{
		buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) { return filled("1000"), nil },
		close: func(*strategy.Strategy, string) (broker.Fill, error) {
			return broker.Fill{}, errTransient
		},
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "stuck_close", 2000)

	res := e.Execute(context.Background(), SignalLong, s)
	if res.Status != StatusSuccess {
		t.Fatalf("result=%+v", res)
	}
	assertCalls(t, b.Calls(),
		"close BBB", "close BBB", "close BBB", "close BBB", "close BBB",
		"buy AAA 1", "buy AAA 1",
	)
}

func TestCloseStopsOnMissingEndpoint(t *testing.T) {
	b := &fakeBroker{
		buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) { return broker.Fill{}, broker.ErrNoEndpoint },
		close: func(*strategy.Strategy, string) (broker.Fill, error) {
			return broker.Fill{}, broker.ErrNoEndpoint
		},
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "unrouted", 1000)

	e.Execute(context.Background(), SignalLong, s)
	assertCalls(t, b.Calls(), "close BBB", "buy AAA 1")
}

func TestMultiPlanSellsInOrderThenBuysAllCash(t *testing.T) {
	b := &fakeBroker{
		buy: func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
			if qty > 1 {
				return broker.Fill{}, errTransient
			}
			return filled("20"), nil
		},
		close: func(s *strategy.Strategy, symbol string) (broker.Fill, error) { return closedAt("10", "10"), nil },
	}
	e, sl := newEngine(b)
	s := newStrategy(t, "rotation", 0)

	res := e.ExecutePlan(context.Background(), MultiPlan("D", []string{"A", "B", "C"}), s)
	if res.Status != StatusSuccess || res.Signal != "sell:A,B,C buy:D" {
		t.Fatalf("result=%+v", res)
	}
	// all-cash buys never retry the sized order
	assertCalls(t, b.Calls(), "close A", "close B", "close C", "buy D 1", "buy D 14")
	if !s.CashBalance().Equal(decimal.NewFromInt(280)) {
		t.Fatalf("cash=%s want 280", s.CashBalance())
	}
	want := []time.Duration{time.Second, time.Second, 3 * time.Second}
	if len(sl.d) != len(want) {
		t.Fatalf("pauses=%v want %v", sl.d, want)
	}
	for i := range want {
		if sl.d[i] != want[i] {
			t.Fatalf("pauses=%v want %v", sl.d, want)
		}
	}
}

func TestPanicReleasesGuard(t *testing.T) {
	b := &fakeBroker{
		buy: func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
			if qty > 1 {
				panic("broker exploded")
			}
			return filled("10"), nil
		},
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "panicky", 1000)

	res := e.Execute(context.Background(), SignalLong, s)
	if res.Status != StatusError || res.Reason == "" {
		t.Fatalf("result=%+v", res)
	}
	if s.IsProcessing() {
		t.Fatalf("guard still held after panic")
	}
	// the probe completed before the panic and stays recorded
	if n := len(s.APICalls()); n != 1 {
		t.Fatalf("history=%d want 1", n)
	}
}

func TestPanicInConcurrentCloseIsReported(t *testing.T) {
	b := &fakeBroker{
		buy: func(*strategy.Strategy, string, int64) (broker.Fill, error) { return filled("1"), nil },
		close: func(s *strategy.Strategy, symbol string) (broker.Fill, error) {
			if symbol == "BBB" {
				panic("close exploded")
			}
			return accepted(), nil
		},
	}
	e, _ := newEngine(b)
	s := newStrategy(t, "panic_close", 1000)

	res := e.Execute(context.Background(), SignalClose, s)
	if res.Status != StatusError {
		t.Fatalf("result=%+v", res)
	}
	if s.IsProcessing() {
		t.Fatalf("guard still held")
	}
}

func TestUnknownSignalDoesNotStartCooldown(t *testing.T) {
	b := &fakeBroker{}
	e, _ := newEngine(b)
	s := newStrategy(t, "confused", 1000)

	res := e.Execute(context.Background(), Signal("hold"), s)
	if res.Status != StatusError {
		t.Fatalf("result=%+v", res)
	}
	if e.Cooldown.IsActive(s) {
		t.Fatalf("cooldown started for unknown signal")
	}
	if s.IsProcessing() {
		t.Fatalf("guard still held")
	}
}

func TestBroadcastIsolatesStrategies(t *testing.T) {
	b := &fakeBroker{
		buy: func(s *strategy.Strategy, symbol string, qty int64) (broker.Fill, error) {
			if s.Name() == "bad_one" {
				panic("boom")
			}
			return filled("10"), nil
		},
	}
	e, _ := newEngine(b)
	busy := newStrategy(t, "busy_one", 1000)
	if !busy.TryBeginProcessing() {
		t.Fatalf("guard")
	}
	items := []*strategy.Strategy{
		newStrategy(t, "good_one", 1000),
		newStrategy(t, "bad_one", 1000),
		busy,
	}

	results := e.Broadcast(context.Background(), SignalLong, items)
	if len(results) != 3 {
		t.Fatalf("results=%d", len(results))
	}
	want := []Status{StatusSuccess, StatusError, StatusIgnored}
	for i, r := range results {
		if r.Strategy != items[i].Name() || r.Result.Status != want[i] {
			t.Fatalf("result[%d]=%+v want %s", i, r, want[i])
		}
	}
}

func TestSleepInterruptionAbortsPlan(t *testing.T) {
	b := &fakeBroker{
		buy:   func(*strategy.Strategy, string, int64) (broker.Fill, error) { return filled("10"), nil },
		close: func(*strategy.Strategy, string) (broker.Fill, error) { return accepted(), nil },
	}
	e, _ := newEngine(b)
	e.Sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }
	s := newStrategy(t, "interrupted", 1000)

	res := e.ExecutePlan(context.Background(), MultiPlan("D", []string{"A", "B"}), s)
	if res.Status != StatusError || res.Reason != context.Canceled.Error() {
		t.Fatalf("result=%+v", res)
	}
	assertCalls(t, b.Calls(), "close A")
	if s.IsProcessing() {
		t.Fatalf("guard still held")
	}
}
