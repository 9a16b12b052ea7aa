package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"license-verifier/internal/license"
)

// Metrics 校验结果计数，按动作和结果分组
type Metrics struct {
	Registry      *prometheus.Registry
	verifications *prometheus.CounterVec
	active        prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "license",
			Name:      "verifications_total",
			Help:      "License verifications by action and result.",
		}, []string{"action", "result"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "license",
			Name:      "active",
			Help:      "1 when the stored license passed its last check.",
		}),
	}
	m.Registry.MustRegister(m.verifications, m.active)
	return m
}

// Observe records one verification outcome. Safe on a nil receiver.
func (m *Metrics) Observe(action string, code license.Code) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(action, code.String()).Inc()
}

// SetActive 更新当前许可证是否有效
func (m *Metrics) SetActive(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.active.Set(1)
		return
	}
	m.active.Set(0)
}
