// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes test loop counters in Prometheus format.
//
// A nil *Registry is valid and records nothing, so callers never need to
// check whether metrics were enabled.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for runs.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeAborted = "aborted"
	OutcomeError   = "error"
)

// Registry holds all test loop metrics.
type Registry struct {
	reg *prometheus.Registry

	// Scheduler metrics
	RerunsTriggered prometheus.Counter
	EventsDebounced prometheus.Counter
	EventsDropped   prometheus.Counter

	// Run metrics
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
	Tests       *prometheus.CounterVec
	FailureSet  prometheus.Gauge
}

// New creates a Registry backed by its own prometheus registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.RerunsTriggered = factory.NewCounter(prometheus.CounterOpts{
		Name: "testloop_reruns_triggered_total",
		Help: "Source changes accepted as rerun triggers",
	})

	r.EventsDebounced = factory.NewCounter(prometheus.CounterOpts{
		Name: "testloop_events_debounced_total",
		Help: "Rerun triggers discarded inside the debounce window",
	})

	r.EventsDropped = factory.NewCounter(prometheus.CounterOpts{
		Name: "testloop_watch_events_dropped_total",
		Help: "File system events dropped because the event queue was full",
	})

	r.Runs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "testloop_runs_total",
		Help: "Completed run cycles by outcome",
	}, []string{"outcome"})

	r.RunDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "testloop_run_duration_seconds",
		Help:    "Wall time of run cycles",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	r.Tests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "testloop_tests_total",
		Help: "Executed tests by result",
	}, []string{"result"})

	r.FailureSet = factory.NewGauge(prometheus.GaugeOpts{
		Name: "testloop_failure_set_size",
		Help: "Number of tests carried into the next run",
	})

	return r
}

// Gatherer returns the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RerunTriggered records an accepted rerun trigger.
func (r *Registry) RerunTriggered() {
	if r == nil {
		return
	}
	r.RerunsTriggered.Inc()
}

// EventDebounced records a trigger discarded by the debouncer.
func (r *Registry) EventDebounced() {
	if r == nil {
		return
	}
	r.EventsDebounced.Inc()
}

// EventDropped records a watcher event lost to a full queue.
func (r *Registry) EventDropped() {
	if r == nil {
		return
	}
	r.EventsDropped.Inc()
}

// ObserveRun records one finished run cycle.
func (r *Registry) ObserveRun(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Runs.WithLabelValues(outcome).Inc()
	r.RunDuration.Observe(elapsed.Seconds())
}

// ObserveTests adds per-result test counts.
func (r *Registry) ObserveTests(passed, failed, errored, skipped int) {
	if r == nil {
		return
	}
	r.Tests.WithLabelValues("passed").Add(float64(passed))
	r.Tests.WithLabelValues("failed").Add(float64(failed))
	r.Tests.WithLabelValues("error").Add(float64(errored))
	r.Tests.WithLabelValues("skipped").Add(float64(skipped))
}

// SetFailureSetSize publishes the size of the current failure set.
func (r *Registry) SetFailureSetSize(n int) {
	if r == nil {
		return
	}
	r.FailureSet.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return r.serve(ctx, ln)
}

func (r *Registry) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
