// Package metrics holds the Prometheus collectors updated by the broker
// client and the execution engine:
//
//	tradehook_broker_calls_total{action,outcome}       broker attempts (filled|accepted|rejected|transient)
//	tradehook_executions_total{status}                 signals handled (success|ignored|error|cooldown)
//	tradehook_legs_total{kind,outcome}                 buy/close legs (ok|failed|no_position|...)
//	tradehook_cash_balance{owner,strategy}             ledger balance after each fill
//	tradehook_execution_seconds                        wall time of one signal's plan
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type Metrics struct {
	BrokerCalls   *prometheus.CounterVec
	Executions    *prometheus.CounterVec
	Legs          *prometheus.CounterVec
	CashBalance   *prometheus.GaugeVec
	ExecutionTime prometheus.Histogram
}

// New builds the collectors and registers them on reg when it is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BrokerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradehook_broker_calls_total",
				Help: "Broker HTTP attempts by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradehook_executions_total",
				Help: "Signals handled by the engine",
			},
			[]string{"status"},
		),
		Legs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradehook_legs_total",
				Help: "Buy and close legs by outcome",
			},
			[]string{"kind", "outcome"},
		),
		CashBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradehook_cash_balance",
				Help: "Ledger cash balance per strategy",
			},
			[]string{"owner", "strategy"},
		),
		ExecutionTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradehook_execution_seconds",
				Help:    "Wall time spent executing one signal plan",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.BrokerCalls, m.Executions, m.Legs, m.CashBalance, m.ExecutionTime)
	}
	return m
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide collectors registered on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer)
	})
	return defaultM
}

func (m *Metrics) BrokerCall(action, outcome string) {
	if m == nil {
		return
	}
	m.BrokerCalls.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Execution(status string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status).Inc()
}

func (m *Metrics) Leg(kind, outcome string) {
	if m == nil {
		return
	}
	m.Legs.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Cash(owner, strategy string, balance decimal.Decimal) {
	if m == nil {
		return
	}
	m.CashBalance.WithLabelValues(owner, strategy).Set(balance.InexactFloat64())
}

func (m *Metrics) ObserveExecution(seconds float64) {
	if m == nil {
		return
	}
	m.ExecutionTime.Observe(seconds)
}

// ForgetStrategy drops the per-strategy series of a deleted strategy.
func (m *Metrics) ForgetStrategy(owner, strategy string) {
	if m == nil {
		return
	}
	m.CashBalance.DeleteLabelValues(owner, strategy)
}

// ForgetOwner drops every per-strategy series of a deleted owner.
func (m *Metrics) ForgetOwner(owner string) {
	if m == nil {
		return
	}
	m.CashBalance.DeletePartialMatch(prometheus.Labels{"owner": owner})
}
