package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "buzzerd"

// MustRegisterGauge creates and registers a gauge.
// Panics on registration failure.
func MustRegisterGauge(subSystem, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subSystem,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(g)
	return g
}

// MustRegisterGaugeVec creates and registers a gauge vector with given label names.
// Panics on registration failure.
func MustRegisterGaugeVec(subSystem, name, help string, labelNames ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subSystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(g)
	return g
}

// MustRegisterCounter creates and registers a counter.
// Panics on registration failure.
func MustRegisterCounter(subSystem, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subSystem,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(c)
	return c
}

// MustRegisterCounterVec creates and registers a counter vector with given label names.
// Panics on registration failure.
func MustRegisterCounterVec(subSystem, name, help string, labelNames ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subSystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(c)
	return c
}
