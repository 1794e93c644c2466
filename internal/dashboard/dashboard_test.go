package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/checkoutrace/internal/checkout"
	"github.com/torosent/checkoutrace/internal/metrics"
)

func TestOutcomeCounts(t *testing.T) {
	rates := map[string]metrics.RateStats{
		checkout.RateSuccessfulCheckouts:   {Trues: 40, Total: 100},
		checkout.RateStockExhausted:        {Trues: 55, Total: 100},
		checkout.RateRaceConditionFailures: {Trues: 5, Total: 100},
	}
	got := outcomeCounts(rates)
	want := []float64{40, 55, 5}
	if len(got) != len(want) {
		t.Fatalf("outcomeCounts() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outcomeCounts()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(outcomeLabels()) != len(got) {
		t.Errorf("labels and data disagree: %v vs %v", outcomeLabels(), got)
	}
}

func TestOutcomeCountsMissingRates(t *testing.T) {
	got := outcomeCounts(nil)
	for i, v := range got {
		if v != 0 {
			t.Errorf("outcomeCounts(nil)[%d] = %v", i, v)
		}
	}
}

func TestFormatOutcomeText(t *testing.T) {
	stats := metrics.Stats{
		Rates: map[string]metrics.RateStats{
			checkout.RateSuccessfulCheckouts:   {Trues: 1, Total: 4, Rate: 0.25},
			checkout.RateRaceConditionFailures: {Trues: 2, Total: 4, Rate: 0.5},
		},
		Checks:         []metrics.CheckStats{{Name: "status is 200", Passes: 1, Fails: 3}},
		ChecksPassRate: 0.25,
	}
	text := formatOutcomeText(stats)
	for _, want := range []string{"successful_checkouts:", "25.00%", "(2/4)", "[50.00%](fg:red)", "checks:"} {
		if !strings.Contains(text, want) {
			t.Errorf("outcome text lacks %q: %s", want, text)
		}
	}
	if strings.Contains(text, checkout.RateStockExhausted) {
		t.Error("absent rate should not be listed")
	}

	if got := formatOutcomeText(metrics.Stats{}); !strings.Contains(got, "No outcomes yet") {
		t.Errorf("empty text = %q", got)
	}
}

func TestFormatScenarioRows(t *testing.T) {
	rows := formatScenarioRows(map[string]metrics.ScenarioStats{
		"race_condition_test": {Requests: 100, Failures: 3, Iterations: 100, ActiveVUs: 12, PeakVUs: 20},
		"burst_test":          {Requests: 50, Iterations: 52, DroppedIterations: 2, PeakVUs: 100},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !strings.Contains(rows[0], "burst_test") || !strings.Contains(rows[0], "Dropped 2") {
		t.Errorf("row 0 = %s", rows[0])
	}
	if !strings.Contains(rows[1], "race_condition_test") || !strings.Contains(rows[1], "VUs 12 (peak 20)") {
		t.Errorf("row 1 = %s", rows[1])
	}

	if empty := formatScenarioRows(nil); len(empty) != 1 || !strings.Contains(empty[0], "No scenario data") {
		t.Errorf("empty rows = %v", empty)
	}
}

func TestFormatStatusListRows(t *testing.T) {
	rows := formatStatusListRows(map[string]map[string]int{
		"race_condition_test": {"200": 3, "500": 1},
		"burst_test":          {"400": 2},
	})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %v", rows)
	}
	if !strings.Contains(rows[0], "race_condition_test 200") || !strings.Contains(rows[0], "fg:green") {
		t.Errorf("row 0 = %s", rows[0])
	}
	if !strings.Contains(rows[1], "burst_test 400") || !strings.Contains(rows[1], "fg:yellow") {
		t.Errorf("row 1 = %s", rows[1])
	}
	if !strings.Contains(rows[2], "fg:red") {
		t.Errorf("row 2 = %s", rows[2])
	}
}

func TestFormatStatusListRowsCapped(t *testing.T) {
	codes := map[string]int{}
	for i := 0; i < 15; i++ {
		codes[string(rune('a'+i))] = i + 1
	}
	if rows := formatStatusListRows(map[string]map[string]int{"s": codes}); len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
}

func TestUpdateWidgets(t *testing.T) {
	d := &Dashboard{
		latencySparkle: widgets.NewSparklineGroup(widgets.NewSparkline()),
		latencyPara:    widgets.NewParagraph(),
		rpsGauge:       widgets.NewGauge(),
		outcomeChart:   widgets.NewBarChart(),
		outcomePara:    widgets.NewParagraph(),
		scenarioList:   widgets.NewList(),
		statusList:     widgets.NewList(),
		summaryPara:    widgets.NewParagraph(),
		info:           RunInfo{BaseURL: "http://localhost:8080", ProductID: "p-1", Scenarios: []string{"race_condition_test"}},
	}

	collector := metrics.NewCollector()
	collector.RecordRequest(20*time.Millisecond, nil, &metrics.RequestMetadata{Scenario: "race_condition_test", StatusCode: 200})
	collector.AddRate("race_condition_test", checkout.RateSuccessfulCheckouts, true)
	collector.RecordIteration("race_condition_test", nil)

	d.update(collector.Stats(time.Second), time.Second)

	if len(d.latencyHistory) != 1 {
		t.Errorf("latency history = %v", d.latencyHistory)
	}
	if d.outcomeChart.Data[0] != 1 {
		t.Errorf("outcome chart = %v", d.outcomeChart.Data)
	}
	if !strings.Contains(d.summaryPara.Text, "Target: http://localhost:8080/checkout") {
		t.Errorf("summary = %s", d.summaryPara.Text)
	}
	if !strings.Contains(d.rpsGauge.Label, "RPS") {
		t.Errorf("gauge label = %s", d.rpsGauge.Label)
	}
	if len(d.scenarioList.Rows) != 1 || !strings.Contains(d.scenarioList.Rows[0], "race_condition_test") {
		t.Errorf("scenario rows = %v", d.scenarioList.Rows)
	}
}

func TestFormatRunParams(t *testing.T) {
	tests := []struct {
		name     string
		info     RunInfo
		contains []string
		excludes []string
	}{
		{
			name:     "defaults",
			info:     RunInfo{Scenarios: []string{"race_condition_test", "burst_test"}, ArrivalModel: "uniform", Timeout: 10 * time.Second, Pacing: 100 * time.Millisecond},
			contains: []string{"Scenarios: race_condition_test, burst_test", "Timeout: 10s", "Pacing: 100ms"},
			excludes: []string{"Arrival:", "Config:"},
		},
		{
			name:     "poisson with config",
			info:     RunInfo{ArrivalModel: "poisson", ConfigFile: "race.yaml"},
			contains: []string{"Arrival: poisson", "Config: race.yaml"},
		},
		{
			name: "empty",
			info: RunInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRunParams(tt.info)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("formatRunParams() = %q, missing %q", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("formatRunParams() = %q, should not contain %q", got, bad)
				}
			}
			if len(tt.contains) == 0 && got != "" {
				t.Errorf("formatRunParams() = %q, want empty", got)
			}
		})
	}
}
