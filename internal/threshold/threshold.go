package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/checkoutrace/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "race_condition_failures"
	Aggregate string  // e.g., "p95", "avg", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Expr      string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Expr:      t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: error: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Expr:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.4g %s %g", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var (
	thresholdPattern  = regexp.MustCompile(`^([a-z_][a-z0-9_]*):([a-z0-9()]+)\s*(<=|>=|==|<|>)\s*([0-9]*\.?[0-9]+)$`)
	percentileAliases = regexp.MustCompile(`^p\((\d+)\)$`)
)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "http_req_duration:p95 < 500"       (latency percentile in ms, p(95) also accepted)
// - "http_req_duration:avg < 200"       (average latency in ms)
// - "http_req_failed:rate < 0.1"        (failure rate as decimal)
// - "http_reqs:count > 100"             (request count)
// - "checks:rate > 0.9"                 (check pass rate)
// - "race_condition_failures:rate < 0.05" (any boolean rate metric)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'http_req_duration:p95 < 500')", s)
	}

	metric := matches[1]
	aggregate := normalizeAggregate(matches[2])
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	allowed := aggregatesFor(metric)
	if !contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", matches[2], metric, strings.Join(allowed, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func normalizeAggregate(aggregate string) string {
	if m := percentileAliases.FindStringSubmatch(aggregate); m != nil {
		aggregate = "p" + m[1]
	}
	switch aggregate {
	case "med":
		return "p50"
	case "mean":
		return "avg"
	}
	return aggregate
}

func aggregatesFor(metric string) []string {
	switch metric {
	case "http_req_duration":
		return []string{"p50", "p90", "p95", "p99", "avg", "min", "max"}
	case "http_req_failed", "http_reqs", "http_requests", "iterations":
		return []string{"rate", "count"}
	case "checks":
		return []string{"rate"}
	case "dropped_iterations":
		return []string{"count"}
	default:
		return []string{"rate", "count", "total"}
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case "http_req_duration":
		return extractLatencyMetric(t.Aggregate, stats)
	case "http_req_failed":
		return extractFailureMetric(t.Aggregate, stats)
	case "http_reqs", "http_requests":
		return extractRequestMetric(t.Aggregate, stats)
	case "checks":
		return stats.ChecksPassRate, nil
	case "iterations":
		if t.Aggregate == "count" {
			return float64(stats.Iterations), nil
		}
		return stats.IterationsPerSec, nil
	case "dropped_iterations":
		return float64(stats.DroppedIterations), nil
	default:
		return extractRateMetric(t, stats)
	}
}

func extractLatencyMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p95":
		return stats.P95LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "avg":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_duration", aggregate)
	}
}

func extractFailureMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(stats.Failures), nil
	case "rate":
		if stats.Total == 0 {
			return 0, nil
		}
		return float64(stats.Failures) / float64(stats.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_failed (use 'count' or 'rate')", aggregate)
	}
}

func extractRequestMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(stats.Total), nil
	case "rate":
		return stats.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_reqs (use 'count' or 'rate')", aggregate)
	}
}

func extractRateMetric(t Threshold, stats metrics.Stats) (float64, error) {
	rate, ok := stats.Rates[t.Metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
	switch t.Aggregate {
	case "rate":
		return rate.Rate, nil
	case "count":
		return float64(rate.Trues), nil
	case "total":
		return float64(rate.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
