// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package webhook

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_guard_callbacks_total",
			Help: "Total number of provider callbacks by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "remote_guard_callback_duration_seconds",
			Help: "Callback handling duration in seconds.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		},
		[]string{"provider"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_guard_rate_limited_total",
			Help: "Total number of callbacks refused by the rate limiter.",
		},
		[]string{"provider"},
	)

	metricsRegistry = prometheus.NewRegistry()
)

func init() {
	metricsRegistry.MustRegister(
		callbacksTotal,
		callbackDuration,
		rateLimitedTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// recordCallback records one handled callback for Prometheus metrics.
func recordCallback(provider, outcome string, duration time.Duration) {
	callbacksTotal.With(prometheus.Labels{"provider": provider, "outcome": outcome}).Inc()
	callbackDuration.With(prometheus.Labels{"provider": provider}).Observe(duration.Seconds())
}

// recordRateLimited counts a refused callback.
func recordRateLimited(provider string) {
	rateLimitedTotal.With(prometheus.Labels{"provider": provider}).Inc()
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}
