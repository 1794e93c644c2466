package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/checkoutrace/internal/metrics"
	"github.com/torosent/checkoutrace/internal/runner"
	"github.com/torosent/checkoutrace/internal/threshold"
)

// ScenarioSummary is the runner's view of one scenario.
type ScenarioSummary struct {
	Name       string  `json:"name"`
	Expected   int64   `json:"expected_iterations"`
	Iterations int64   `json:"iterations"`
	Errors     int64   `json:"errors"`
	Dropped    int64   `json:"dropped_iterations"`
	PeakVUs    int     `json:"peak_vus"`
	DurationMs float64 `json:"duration_ms"`
}

// Summary is everything reported at the end of a run.
type Summary struct {
	RunID            string             `json:"run_id"`
	StartedAt        time.Time          `json:"started_at"`
	Target           string             `json:"target"`
	ProductID        string             `json:"product_id"`
	Stats            metrics.Stats      `json:"metrics"`
	Scenarios        []ScenarioSummary  `json:"scenarios,omitempty"`
	Thresholds       []threshold.Result `json:"thresholds,omitempty"`
	ThresholdsPassed bool               `json:"thresholds_passed"`
}

// NewRunID returns a lexically sortable identifier for a run.
func NewRunID() string {
	return ulid.Make().String()
}

// NewSummary assembles a Summary from the pieces a run produces.
func NewSummary(runID string, startedAt time.Time, target, productID string, stats metrics.Stats, results []runner.Result, thresholds []threshold.Result) Summary {
	s := Summary{
		RunID:            runID,
		StartedAt:        startedAt,
		Target:           target,
		ProductID:        productID,
		Stats:            stats,
		Thresholds:       thresholds,
		ThresholdsPassed: threshold.AllPassed(thresholds),
	}
	for _, r := range results {
		s.Scenarios = append(s.Scenarios, ScenarioSummary{
			Name:       r.Scenario,
			Expected:   r.Expected,
			Iterations: r.Iterations,
			Errors:     r.Errors,
			Dropped:    r.Dropped,
			PeakVUs:    r.PeakVUs,
			DurationMs: float64(r.Duration) / float64(time.Millisecond),
		})
	}
	return s
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s Summary) {
	stats := s.Stats
	fmt.Fprintln(w, "\n--- Checkout Race Results ---")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", s.RunID)
	}
	if s.Target != "" {
		fmt.Fprintf(w, "Target:            %s\n", s.Target)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintf(w, "Iterations:        %d (%.2f/s)\n", stats.Iterations, stats.IterationsPerSec)
	fmt.Fprintf(w, "Dropped:           %d\n", stats.DroppedIterations)

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.Rates) > 0 {
		fmt.Fprintln(w, "\nOutcome Rates:")
		for _, name := range metrics.SortedRateNames(stats.Rates) {
			r := stats.Rates[name]
			fmt.Fprintf(w, "  %-26s %6.2f%% (%d/%d)\n", name+":", r.Rate*100, r.Trues, r.Total)
		}
	}

	if len(stats.Checks) > 0 {
		fmt.Fprintln(w, "\nChecks:")
		for _, c := range stats.Checks {
			mark := "✓"
			if c.Fails > 0 {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s: %d passed, %d failed\n", mark, c.Name, c.Passes, c.Fails)
		}
		fmt.Fprintf(w, "  Pass rate: %.2f%%\n", stats.ChecksPassRate*100)
	}

	if len(s.Scenarios) > 0 {
		fmt.Fprintln(w, "\nScenarios:")
		for _, sc := range s.Scenarios {
			fmt.Fprintf(w, "  - %s: iterations=%d/%d, errors=%d, dropped=%d, peak_vus=%d, duration=%s\n",
				sc.Name, sc.Iterations, sc.Expected, sc.Errors, sc.Dropped, sc.PeakVUs,
				time.Duration(sc.DurationMs*float64(time.Millisecond)).Round(time.Millisecond))
		}
	}

	if len(stats.StatusBuckets) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, stats.StatusBuckets, "  ")
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, name := range sortedKeys(stats.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", name, stats.Errors[name])
		}
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range s.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
		if s.ThresholdsPassed {
			fmt.Fprintln(w, "  All thresholds passed")
		} else {
			fmt.Fprintln(w, "  Some thresholds failed")
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func writeStatusBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		scenario := row.Scenario
		if scenario == "" {
			scenario = "-"
		}
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, scenario, row.Code, row.Count)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
