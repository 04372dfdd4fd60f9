package cart

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelOp     = "op"
	labelResult = "result"
)

type Metrics struct {
	Mutations *prometheus.CounterVec
	Storage   *prometheus.HistogramVec
	Items     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_mutations_total",
				Help: "Cart mutations by operation and result",
			},
			[]string{labelOp, labelResult},
		),
		Storage: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cart_storage_seconds",
				Help: "Cart storage call latency",
			},
			[]string{labelOp},
		),
		Items: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cart_items",
				Help: "Distinct items in the published cart",
			},
		),
	}

	reg.MustRegister(m.Mutations, m.Storage, m.Items)
	return m
}

func (m *Metrics) mutation(op, result string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeStorage(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.Storage.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) setItems(n int) {
	if m == nil {
		return
	}
	m.Items.Set(float64(n))
}
