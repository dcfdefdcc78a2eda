package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/castai/kimportgen/config"
	"github.com/castai/kimportgen/metrics"
	"github.com/castai/kimportgen/pkg/cheader"
	"github.com/castai/kimportgen/pkg/decl"
	"github.com/castai/kimportgen/pkg/deffile"
	"github.com/castai/kimportgen/pkg/emit"
	"github.com/castai/kimportgen/pkg/logging"
	"github.com/castai/kimportgen/pkg/ordinals"
	"github.com/castai/kimportgen/pkg/reconcile"
	"github.com/castai/kimportgen/pkg/report"
)

func New(cfg config.Config, version config.Version, fs afero.Fs, stdout, stderr io.Writer) *App {
	if err := config.Validate(cfg); err != nil {
		panic(err.Error())
	}
	return &App{cfg: cfg, version: version, fs: fs, stdout: stdout, stderr: stderr}
}

type App struct {
	cfg     config.Config
	version config.Version

	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

// Result is everything a run produced.
type Result struct {
	Table    *reconcile.ImportTable
	Report   *reconcile.Report
	Manifest *emit.Manifest
}

// Run reads both inputs, reconciles them, writes the generated sources and prints the report.
func (a *App) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		metrics.IncRunsTotal("generate", err)
		metrics.ObserveRunDuration("generate", start)
		if mErr := a.writeMetrics(); mErr != nil && err == nil {
			err = mErr
		}
	}()

	log := a.newLogger(ctx)
	log.Infof("running kimportgen generate, version=%s, header=%s, def=%s", a.version.Version, a.cfg.HeaderFile, a.cfg.DefFile)

	res, err := a.reconcile(ctx, log)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	emitLog := log.WithField("stage", "emit")
	manifest, emitErr := emit.Emit(a.fs, a.cfg.OutputDir, res.Table, emit.Options{
		MacroPrefix: a.cfg.Emit.MacroPrefix,
		StructName:  a.cfg.Emit.StructName,
		ClassName:   a.cfg.Emit.ClassName,
	})
	if emitErr == nil {
		res.Manifest = manifest
		metrics.AddFilesWritten(len(manifest.Files))
		emitLog.Infof("wrote %d files to %s", len(manifest.Files), manifest.Dir)
	}

	// The report is written even when emission fails, without the output section.
	reportErr := a.writeReport(res)
	if emitErr != nil {
		return fmt.Errorf("emitting %s: %w", a.cfg.OutputDir, emitErr)
	}
	if reportErr != nil {
		return reportErr
	}

	if dropped := log.Dropped(); dropped > 0 {
		log.Warnf("log rate limit dropped %d lines", dropped)
	}
	return nil
}

// Table reconciles the inputs and lists the import table without writing any sources.
func (a *App) Table(ctx context.Context, withUnknown bool) (err error) {
	start := time.Now()
	defer func() {
		metrics.IncRunsTotal("table", err)
		metrics.ObserveRunDuration("table", start)
		if mErr := a.writeMetrics(); mErr != nil && err == nil {
			err = mErr
		}
	}()

	log := a.newLogger(ctx)
	res, err := a.reconcile(ctx, log)
	if err != nil {
		return err
	}

	if err := report.WriteTable(a.stdout, res.Table, withUnknown); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	return nil
}

func (a *App) newLogger(ctx context.Context) *logging.Logger {
	logCfg := &logging.Config{
		Ctx:    ctx,
		Output: a.stderr,
		Level:  logging.MustParseLevel(a.cfg.Log.Level),
		Hook: logging.HookConfig{
			HookFunc: metrics.ObserveLogRecord,
			MinLevel: slog.LevelWarn,
		},
	}
	if a.cfg.Log.RateInterval > 0 {
		logCfg.RateLimiter = logging.RateLimiterConfig{
			Limit: rate.Every(a.cfg.Log.RateInterval),
			Burst: a.cfg.Log.RateBurst,
		}
	}
	return logging.New(logCfg)
}

func (a *App) reconcile(ctx context.Context, log *logging.Logger) (*Result, error) {
	defLog := log.WithField("stage", "def")
	table, err := a.readOrdinals()
	if err != nil {
		return nil, err
	}
	defLog.Debugf("ordinal table has %d slots, %d named, %d holes", table.Len(), table.Names(), len(table.Holes()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headerLog := log.WithField("stage", "header")
	funcs, vars, err := a.readDeclarations()
	if err != nil {
		return nil, err
	}
	metrics.AddDeclarations(decl.KindFunction, len(funcs))
	metrics.AddDeclarations(decl.KindVariable, len(vars))
	headerLog.Debugf("found %d functions and %d variables", len(funcs), len(vars))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reconcileLog := log.WithField("stage", "reconcile")
	it, rep, err := reconcile.Reconcile(table, funcs, vars)
	if err != nil {
		return nil, err
	}
	metrics.SetUnknownImports(len(rep.UnknownImportIDs))
	for _, d := range rep.Diagnostics {
		reconcileLog.Debugf("%s: %s", d.Severity, d.Message)
	}
	if n := len(rep.UnknownImportIDs); n > 0 {
		reconcileLog.Warnf("%d of %d import slots have no declaration", n, it.Len())
	}

	return &Result{Table: it, Report: rep}, nil
}

func (a *App) readOrdinals() (*ordinals.Table, error) {
	f, err := a.fs.Open(a.cfg.DefFile)
	if err != nil {
		return nil, fmt.Errorf("opening def file: %w", err)
	}
	defer f.Close()

	raw, err := deffile.Read(f)
	if err != nil {
		return nil, err
	}

	table, err := ordinals.Build(raw, ordinals.WithMaxOrdinal(a.cfg.MaxOrdinal))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.DefFile, err)
	}
	return table, nil
}

func (a *App) readDeclarations() ([]*decl.Function, []*decl.Variable, error) {
	opts := cheader.DefaultOptions()
	opts.ExportMacro = a.cfg.ExportMacro
	if a.cfg.Defines != "" {
		if err := opts.ApplyDefines(a.cfg.Defines); err != nil {
			return nil, nil, err
		}
	}

	f, err := a.fs.Open(a.cfg.HeaderFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening header file: %w", err)
	}
	defer f.Close()

	unit, err := cheader.Parse(f, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", a.cfg.HeaderFile, err)
	}

	funcs, vars, err := decl.Extract(unit)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", a.cfg.HeaderFile, err)
	}
	return funcs, vars, nil
}

func (a *App) writeReport(res *Result) (err error) {
	format, err := report.ParseFormat(a.cfg.Report.Format)
	if err != nil {
		return err
	}

	out := a.stdout
	if a.cfg.Report.File != "" {
		f, createErr := a.fs.Create(a.cfg.Report.File)
		if createErr != nil {
			return fmt.Errorf("creating report file: %w", createErr)
		}
		defer func() {
			if cErr := f.Close(); cErr != nil && err == nil {
				err = fmt.Errorf("closing report file: %w", cErr)
			}
		}()
		out = f
	}

	if err := report.Write(out, format, res.Report, res.Manifest); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func (a *App) writeMetrics() error {
	if a.cfg.MetricsFile == "" {
		return nil
	}
	return metrics.WriteTextfile(a.cfg.MetricsFile)
}
