// Package metrics provides Prometheus metrics collection for Dinex.
package metrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector owns the process Prometheus registry and the license metrics
// recorded by the API layer and the maintenance sweeper.
type Collector struct {
	registry *prometheus.Registry
	logger   zerolog.Logger

	validations   *prometheus.CounterVec
	created       prometheus.Counter
	expiredActive prometheus.Gauge
}

// NewCollector creates a Collector with a dedicated registry.
func NewCollector(logger zerolog.Logger) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		logger:   logger.With().Str("component", "metrics").Logger(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dinex_license_validations_total",
			Help: "License validation attempts by outcome.",
		}, []string{"outcome"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dinex_licenses_created_total",
			Help: "Licenses issued since process start.",
		}),
		expiredActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dinex_licenses_expired_active",
			Help: "Active licenses whose expiry date has passed, per the last sweep.",
		}),
	}

	registry.MustRegister(c.validations, c.created, c.expiredActive)
	return c
}

// RecordValidation counts one validation attempt under its outcome label.
func (c *Collector) RecordValidation(outcome string) {
	c.validations.WithLabelValues(outcome).Inc()
}

// RecordCreated counts one issued license.
func (c *Collector) RecordCreated() {
	c.created.Inc()
}

// SetExpiredActive records the expired-but-active license count from a sweep.
func (c *Collector) SetExpiredActive(n int) {
	c.expiredActive.Set(float64(n))
}

// Handler returns the HTTP handler serving the registry in exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: promhttpLogger{c.logger},
	})
}

// promhttpLogger adapts zerolog to promhttp's error logger.
type promhttpLogger struct {
	logger zerolog.Logger
}

func (l promhttpLogger) Println(v ...interface{}) {
	l.logger.Error().Msg("metrics handler: " + strings.TrimSpace(fmt.Sprintln(v...)))
}
