package aquos

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aquos_dispatch_total",
		Help: "Commands sent to a television, by outcome",
	}, []string{
		"device",
		"result", // success|transport_error|encode_error|uninitialized
	})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aquos_dispatch_duration_seconds",
		Help:    "Round trip of one command, excluding the post-command pause",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"device"})

	discoveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aquos_discovery_failures_total",
		Help: "Failed startup discovery steps",
	}, []string{"device", "stage"})

	macroRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aquos_macro_runs_total",
		Help: "Macro executions, by outcome",
	}, []string{"device", "macro", "result"})
)

func observeDispatch(device string, started time.Time, err error) {
	result := "success"
	switch {
	case err == nil:
		dispatchDuration.WithLabelValues(device).Observe(time.Since(started).Seconds())
	case errors.Is(err, ErrUninitialized):
		result = "uninitialized"
	case errors.Is(err, ErrTransport):
		result = "transport_error"
		dispatchDuration.WithLabelValues(device).Observe(time.Since(started).Seconds())
	default:
		result = "encode_error"
	}
	dispatchTotal.WithLabelValues(device, result).Inc()
}

func observeDiscoveryFailure(device string, stage DiscoveryStage) {
	discoveryFailures.WithLabelValues(device, string(stage)).Inc()
}

func observeMacro(device, name string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	macroRuns.WithLabelValues(device, name, result).Inc()
}
