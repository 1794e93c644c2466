package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/checkoutrace/internal/checkout"
	"github.com/torosent/checkoutrace/internal/config"
	"github.com/torosent/checkoutrace/internal/dashboard"
	"github.com/torosent/checkoutrace/internal/logging"
	"github.com/torosent/checkoutrace/internal/metrics"
	"github.com/torosent/checkoutrace/internal/output"
	"github.com/torosent/checkoutrace/internal/runner"
	"github.com/torosent/checkoutrace/internal/threshold"
	"github.com/torosent/checkoutrace/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// runLoad executes the active scenarios against cfg.BaseURL and writes the
// end-of-run report to stdout. Diagnostics go to stderr through zap.
func runLoad(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	runID := output.NewRunID()
	provider, err := tracing.Init(ctx, cfg.Tracing, traceTarget(cfg, runID))
	if err != nil {
		return err
	}
	defer shutdownTracing(provider, logger)

	collector := metrics.NewCollector()
	for _, name := range checkout.RateNames() {
		collector.RegisterRate(name)
	}
	recorders := []metrics.Recorder{collector}
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPromExporter()
		stop, err := serveMetrics(cfg.MetricsAddr, prom.Handler(), logger)
		if err != nil {
			return err
		}
		defer stop()
		recorders = append(recorders, prom)
	}
	rec := metrics.Tee(recorders...)

	driver, err := checkout.NewDriver(cfg, rec, logger, checkout.WithTracing(provider))
	if err != nil {
		return err
	}

	var requester runner.Requester = driver
	if cfg.LogErrors {
		requester = runner.WithLogging(requester, logging.NewFailureLogger(logger))
	}

	opts := runner.Options{
		Requester:    requester,
		ArrivalModel: toRunnerArrivalModel(cfg.ArrivalModel),
		Hooks:        recorderHooks(rec),
	}
	scenarios := toRunnerScenarios(cfg.ActiveScenarios())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startedAt := time.Now()
	rc := driver.Setup(runCtx)

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, runInfo(cfg), cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, progressInterval, stdout)
		progress.Start()
	}

	collector.Start()
	results, runErr := runner.RunScenarios(runCtx, scenarios, opts)
	elapsed := collector.Elapsed()

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}

	driver.Teardown(rc)

	stats := collector.Stats(elapsed)
	evaluated := threshold.NewEvaluator(thresholds).Evaluate(stats)
	summary := output.NewSummary(runID, startedAt, cfg.BaseURL, cfg.ProductID, stats, results, evaluated)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, summary); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, summary)
	}
	if err := output.WriteSummaryFile(cfg.SummaryExport, summary); err != nil {
		return err
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if !summary.ThresholdsPassed {
		return errThresholdsFailed
	}
	return nil
}

// idempotencyReport is the JSON shape of the idempotency command.
type idempotencyReport struct {
	Target    string `json:"target"`
	ProductID string `json:"product_id"`
	Statuses  []int  `json:"statuses"`
	Accepted  int    `json:"accepted"`
}

// runIdempotency sends cfg.IdempotencyAttempts identical checkouts and
// prints how many of them the service accepted.
func runIdempotency(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := tracing.Init(ctx, cfg.Tracing, traceTarget(cfg, output.NewRunID()))
	if err != nil {
		return err
	}
	defer shutdownTracing(provider, logger)

	driver, err := checkout.NewDriver(cfg, nil, logger, checkout.WithTracing(provider))
	if err != nil {
		return err
	}

	statuses := driver.IdempotencyTest(ctx)
	report := idempotencyReport{
		Target:    cfg.BaseURL,
		ProductID: cfg.ProductID,
		Statuses:  statuses,
	}
	for _, s := range statuses {
		if s == http.StatusOK {
			report.Accepted++
		}
	}

	if cfg.JSONOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(stdout, "--- Idempotency Results ---")
		fmt.Fprintf(stdout, "Target:    %s\n", report.Target)
		fmt.Fprintf(stdout, "Product:   %s\n", report.ProductID)
		fmt.Fprintf(stdout, "Attempts:  %d\n", len(report.Statuses))
		fmt.Fprintf(stdout, "Accepted:  %d\n", report.Accepted)
		if report.Accepted > 1 {
			fmt.Fprintln(stdout, "Identical checkouts produced more than one order.")
		}
	}
	return ctx.Err()
}

// serveMetrics exposes h at /metrics on addr until the returned stop
// function is called.
func serveMetrics(addr string, h http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving Prometheus metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func traceTarget(cfg *config.Config, runID string) tracing.Target {
	return tracing.Target{
		BaseURL:   cfg.BaseURL,
		ProductID: cfg.ProductID,
		UserID:    cfg.UserID,
		RunID:     runID,
	}
}

func shutdownTracing(p *tracing.Provider, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

// recorderHooks feeds runner scheduling events into rec.
func recorderHooks(rec metrics.Recorder) runner.Hooks {
	return runner.Hooks{
		OnIteration: rec.RecordIteration,
		OnDropped:   rec.RecordDroppedIteration,
		OnVUs:       rec.SetActiveVUs,
	}
}

func runInfo(cfg *config.Config) dashboard.RunInfo {
	names := make([]string, 0, len(cfg.Scenarios))
	for _, sc := range cfg.ActiveScenarios() {
		names = append(names, sc.Name)
	}
	return dashboard.RunInfo{
		BaseURL:      cfg.BaseURL,
		ProductID:    cfg.ProductID,
		Scenarios:    names,
		ArrivalModel: string(cfg.ArrivalModel),
		Timeout:      cfg.Timeout,
		Pacing:       cfg.Pacing,
		ConfigFile:   cfg.ConfigFile,
	}
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func toRunnerScenarios(scenarios []config.Scenario) []runner.Scenario {
	if len(scenarios) == 0 {
		return nil
	}
	result := make([]runner.Scenario, len(scenarios))
	for i, sc := range scenarios {
		result[i] = runner.Scenario{
			Name:            sc.Name,
			Executor:        runner.Executor(sc.Executor),
			Rate:            sc.Rate,
			TimeUnit:        sc.TimeUnit,
			StartRate:       sc.StartRate,
			Stages:          toRunnerStages(sc.Stages),
			Duration:        sc.Duration,
			PreAllocatedVUs: sc.PreAllocatedVUs,
			MaxVUs:          sc.MaxVUs,
			StartTime:       sc.StartTime,
			GracefulStop:    sc.GracefulStop,
		}
	}
	return result
}

func toRunnerStages(stages []config.Stage) []runner.Stage {
	if len(stages) == 0 {
		return nil
	}
	result := make([]runner.Stage, len(stages))
	for i, s := range stages {
		result[i] = runner.Stage{
			Duration: s.Duration,
			Target:   s.Target,
		}
	}
	return result
}
