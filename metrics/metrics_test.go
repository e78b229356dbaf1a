package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
	"github.com/isdmx/challengebox/sandbox/sandboxtest"
)

func TestNewNilRegistry(t *testing.T) {
	m := New(nil)
	assert.Nil(t, m)
	m.ObserveCase("python", "pass")
	m.ObserveCommand("test", nil)

	exec := sandboxtest.New(sandboxtest.Static(sandbox.ExecutionResult{}))
	assert.Same(t, exec, Instrument(exec, m))
}

func TestInstrumentedExecutor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	results := []sandbox.ExecutionResult{
		{Duration: 10 * time.Millisecond},
		{ExitCode: 1},
		{TimedOut: true, ExitCode: -1},
	}
	var call int
	inner := sandboxtest.New(func(context.Context, sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
		if call >= len(results) {
			return sandbox.ExecutionResult{}, errors.New("engine gone")
		}
		res := results[call]
		call++
		return res, nil
	})
	exec := Instrument(inner, m)

	req := sandbox.ExecuteRequest{Image: "challengebox/python:3.12"}
	for i := 0; i < 4; i++ {
		_, _ = exec.Execute(context.Background(), req)
	}

	assert.Equal(t, 1.0, value(t, m.ExecutionsTotal.WithLabelValues(req.Image, "ok")))
	assert.Equal(t, 1.0, value(t, m.ExecutionsTotal.WithLabelValues(req.Image, "exit_error")))
	assert.Equal(t, 1.0, value(t, m.ExecutionsTotal.WithLabelValues(req.Image, "timeout")))
	assert.Equal(t, 1.0, value(t, m.ExecutionsTotal.WithLabelValues(req.Image, "error")))
	assert.Zero(t, value(t, m.ActiveSandboxes))

	reaper, ok := exec.(sandbox.Reaper)
	require.True(t, ok)
	n, err := reaper.Reap(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCase("go", "mismatch")
	m.ObserveCase("go", "mismatch")
	m.ObserveCommand("test", errkind.ErrBuild)
	m.ObserveCommand("test", nil)

	assert.Equal(t, 2.0, value(t, m.CaseOutcomesTotal.WithLabelValues("go", "mismatch")))
	assert.Equal(t, 1.0, value(t, m.CommandsTotal.WithLabelValues("test", "build")))
	assert.Equal(t, 1.0, value(t, m.CommandsTotal.WithLabelValues("test", "none")))
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}
