// Package metrics содержит коллекторы Prometheus сервиса покупок.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "purchasekit"

// Metrics — набор коллекторов. Регистрируется в переданном реестре.
type Metrics struct {
	registry *prometheus.Registry

	transactionsApplied  *prometheus.CounterVec
	verificationFailures *prometheus.CounterVec
	swallowedErrors      *prometheus.CounterVec
	purchaseAttempts     *prometheus.CounterVec
	purchasedTiers       prometheus.Gauge
	loadDuration         prometheus.Histogram
}

// New создаёт коллекторы и регистрирует их в новом реестре вместе со стандартными
// коллекторами процесса и Go runtime.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_applied_total",
				Help:      "Transactions applied to the purchased tier set by action",
			},
			[]string{"action"},
		),
		verificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_failures_total",
				Help:      "Transactions that failed signature verification by source",
			},
			[]string{"source"},
		),
		swallowedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swallowed_errors_total",
				Help:      "Errors logged and reported to diagnostics instead of the caller, by source",
			},
			[]string{"source"},
		),
		purchaseAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_attempts_total",
				Help:      "Purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		purchasedTiers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "purchased_tiers",
			Help:      "Number of tiers currently in the purchased set",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time from start until products and existing transactions are loaded",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.transactionsApplied,
		m.verificationFailures,
		m.swallowedErrors,
		m.purchaseAttempts,
		m.purchasedTiers,
		m.loadDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry возвращает реестр для тестов и дополнительных коллекторов.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TransactionApplied учитывает изменение набора тарифов.
func (m *Metrics) TransactionApplied(action string) {
	m.transactionsApplied.WithLabelValues(action).Inc()
}

// VerificationFailed учитывает транзакцию с непроверенной подписью.
func (m *Metrics) VerificationFailed(source string) {
	m.verificationFailures.WithLabelValues(source).Inc()
}

// ErrorSwallowed учитывает любую ошибку, ушедшую в диагностику.
func (m *Metrics) ErrorSwallowed(source string) {
	m.swallowedErrors.WithLabelValues(source).Inc()
}

// PurchaseAttempt учитывает исход покупки.
func (m *Metrics) PurchaseAttempt(outcome string) {
	m.purchaseAttempts.WithLabelValues(outcome).Inc()
}

// SetPurchasedTiers задаёт размер набора купленных тарифов.
func (m *Metrics) SetPurchasedTiers(n int) {
	m.purchasedTiers.Set(float64(n))
}

// ObserveLoad записывает длительность стартовой загрузки.
func (m *Metrics) ObserveLoad(d time.Duration) {
	m.loadDuration.Observe(d.Seconds())
}
