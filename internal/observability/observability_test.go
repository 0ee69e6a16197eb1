package observability

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(log.New(&buf, "", 0), false)

	logger.Debug("hidden")
	logger.Info("connected", Field{Key: "url", Value: "ws://x"})
	logger.Error("dial failed", Field{Key: "attempt", Value: 3})

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "INFO connected url=ws://x")
	require.Contains(t, out, "ERROR dial failed attempt=3")
}

func TestStdLoggerDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(log.New(&buf, "", 0), true)

	logger.Debug("verbose", Field{Key: "n", Value: 1})
	require.Contains(t, buf.String(), "DEBUG verbose n=1")
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewStdLogger(log.New(&buf, "", 0), false))
	SetLogger(nil)
	Log().Info("dropped")
	require.Empty(t, buf.String())
}

func TestAggregateErrorsNil(t *testing.T) {
	require.NoError(t, AggregateErrors("apply", nil))
	require.NoError(t, AggregateErrors("apply", []error{nil, nil}))
}

func TestAggregateErrorsJoins(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	err := AggregateErrors("apply", []error{first, nil, second})
	require.Error(t, err)
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
	require.Contains(t, err.Error(), "apply")
}

func TestTelemetryDefaultsToNoop(t *testing.T) {
	SetMetrics(nil)
	require.NotPanics(t, func() {
		Telemetry().IncCounter("x", 1, nil)
		Telemetry().ObserveHistogram("x", 1, map[string]string{"k": "v"})
		Telemetry().SetGauge("x", 1, nil)
	})
}
