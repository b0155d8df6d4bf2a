// Copyright (c) 2025 Berik Ashimov

package main

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"routeplan/internal/allocator"
	"routeplan/internal/design"
)

// planMetrics counts plan builds and what they produced.
type planMetrics struct {
	gatherer prometheus.Gatherer

	builds   *prometheus.CounterVec
	blocks   *prometheus.CounterVec
	routes   prometheus.Counter
	duration prometheus.Histogram
}

func newPlanMetrics(reg *prometheus.Registry) (*planMetrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	builds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeplan_plans_built_total",
		Help: "Plan builds, labeled by result.",
	}, []string{"result"}), "routeplan_plans_built_total")
	if err != nil {
		return nil, err
	}
	blocks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routeplan_blocks_allocated_total",
		Help: "Allocated address blocks, labeled by kind.",
	}, []string{"kind"}), "routeplan_blocks_allocated_total")
	if err != nil {
		return nil, err
	}
	routes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routeplan_routes_emitted_total",
		Help: "Static routes emitted across all routers.",
	}), "routeplan_routes_emitted_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "routeplan_build_duration_seconds",
		Help:    "Time to allocate and synthesize one plan.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "routeplan_build_duration_seconds")
	if err != nil {
		return nil, err
	}
	return &planMetrics{
		gatherer: reg,
		builds:   builds,
		blocks:   blocks,
		routes:   routes,
		duration: duration,
	}, nil
}

func (m *planMetrics) observe(plan *design.Plan, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(buildResult(err)).Inc()
	m.duration.Observe(elapsed.Seconds())
	if err != nil || plan == nil {
		return
	}
	m.blocks.WithLabelValues("lan").Add(float64(len(plan.LANs)))
	m.blocks.WithLabelValues("link").Add(float64(len(plan.Links)))
	m.blocks.WithLabelValues("uplink").Add(float64(len(plan.Uplinks)))
	m.routes.Add(float64(len(plan.Routes)))
}

func (m *planMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func buildResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, design.ErrInvalidDesign), errors.Is(err, allocator.ErrInvalidPrefix):
		return "invalid"
	case errors.Is(err, allocator.ErrAddressSpaceExhausted):
		return "exhausted"
	}
	return "error"
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
