// Package metrics exposes Prometheus metrics for sandbox executions and
// command results. All metrics use the challengebox namespace.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
)

// Metrics holds the challengebox collectors.
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveSandboxes   prometheus.Gauge
	CaseOutcomesTotal *prometheus.CounterVec
	CommandsTotal     *prometheus.CounterVec
}

// New creates and registers the metrics on reg. Returns nil if reg is nil;
// every method is safe to call on a nil *Metrics.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "challengebox",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total sandbox executions by image and status (ok, exit_error, timeout, error).",
		}, []string{"image", "status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "challengebox",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution wall time in seconds by image.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"image"}),

		ActiveSandboxes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "challengebox",
			Subsystem: "sandbox",
			Name:      "active",
			Help:      "Number of sandbox environments currently running.",
		}),

		CaseOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "challengebox",
			Subsystem: "harness",
			Name:      "case_outcomes_total",
			Help:      "Total test case outcomes by language and kind.",
		}, []string{"language", "kind"}),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "challengebox",
			Name:      "commands_total",
			Help:      "Total engine commands by command and exit kind.",
		}, []string{"command", "kind"}),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ActiveSandboxes,
		m.CaseOutcomesTotal,
		m.CommandsTotal,
	)

	return m
}

// ObserveCase counts one test case outcome.
func (m *Metrics) ObserveCase(language, kind string) {
	if m == nil {
		return
	}
	m.CaseOutcomesTotal.WithLabelValues(language, kind).Inc()
}

// ObserveCommand counts one engine command and the kind of its error.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, errkind.Of(err).String()).Inc()
}

// InstrumentedExecutor records metrics around every execution of the
// wrapped executor.
type InstrumentedExecutor struct {
	next    sandbox.Executor
	metrics *Metrics
}

// Instrument wraps next. It returns next unchanged when m is nil.
func Instrument(next sandbox.Executor, m *Metrics) sandbox.Executor {
	if m == nil {
		return next
	}
	return &InstrumentedExecutor{next: next, metrics: m}
}

// Execute implements sandbox.Executor.
func (e *InstrumentedExecutor) Execute(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
	e.metrics.ActiveSandboxes.Inc()
	defer e.metrics.ActiveSandboxes.Dec()

	res, err := e.next.Execute(ctx, req)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case res.TimedOut:
		status = "timeout"
	case res.ExitCode != 0:
		status = "exit_error"
	}
	e.metrics.ExecutionsTotal.WithLabelValues(req.Image, status).Inc()
	if err == nil {
		e.metrics.ExecutionDuration.WithLabelValues(req.Image).Observe(res.Duration.Seconds())
	}
	return res, err
}

// Reap forwards to the wrapped executor when it is a sandbox.Reaper.
func (e *InstrumentedExecutor) Reap(ctx context.Context) (int, error) {
	if r, ok := e.next.(sandbox.Reaper); ok {
		return r.Reap(ctx)
	}
	return 0, nil
}
