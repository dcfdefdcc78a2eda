package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/castai/kimportgen/pkg/decl"
)

type RunStatus string

const (
	RunStatusOK       RunStatus = "ok"
	RunStatusError    RunStatus = "error"
	RunStatusCanceled RunStatus = "canceled"
)

type timeSinceFunc func(t time.Time) time.Duration

// Used to override time sensitive properties in tests.
var timeSinceFn = timeSinceFunc(func(t time.Time) time.Duration {
	return time.Since(t)
})

// Registry holds only the generator's own collectors, so the text file export carries
// no Go runtime series.
var Registry = prometheus.NewRegistry()

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kimportgen_runs_total",
		Help: "Counter tracking generator runs and statuses",
	}, []string{"command", "status"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kimportgen_run_duration_seconds",
		Help:    "Histogram tracking run durations in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"command"})

	declarationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kimportgen_declarations_total",
		Help: "Counter tracking header declarations by kind",
	}, []string{"kind"})

	unknownImports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kimportgen_unknown_imports",
		Help: "Import slots without a header declaration in the last run",
	})

	filesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kimportgen_files_written_total",
		Help: "Counter tracking generated files",
	})

	logMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kimportgen_log_messages_total",
		Help: "Counter tracking warning and error log lines",
	}, []string{"level"})
)

func init() {
	Registry.MustRegister(
		runsTotal,
		runDuration,
		declarationsTotal,
		unknownImports,
		filesWrittenTotal,
		logMessagesTotal,
	)
}

func runStatus(err error) RunStatus {
	switch {
	case err == nil:
		return RunStatusOK
	case errors.Is(err, context.Canceled):
		return RunStatusCanceled
	}
	return RunStatusError
}

func IncRunsTotal(command string, err error) {
	runsTotal.WithLabelValues(command, string(runStatus(err))).Inc()
}

func ObserveRunDuration(command string, start time.Time) {
	dur := timeSinceFn(start)
	runDuration.WithLabelValues(command).Observe(dur.Seconds())
}

func AddDeclarations(kind decl.Kind, n int) {
	declarationsTotal.WithLabelValues(kind.String()).Add(float64(n))
}

func SetUnknownImports(n int) {
	unknownImports.Set(float64(n))
}

func AddFilesWritten(n int) {
	filesWrittenTotal.Add(float64(n))
}

// ObserveLogRecord is a logging hook counting lines per level.
func ObserveLogRecord(_ context.Context, record slog.Record) {
	logMessagesTotal.WithLabelValues(strings.ToLower(record.Level.String())).Inc()
}

// WriteTextfile dumps the registry in the Prometheus text format, for node exporter style collection.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
