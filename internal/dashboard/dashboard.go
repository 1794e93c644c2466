// Package dashboard renders a live terminal view of a checkout race run.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/checkoutrace/internal/checkout"
	"github.com/torosent/checkoutrace/internal/metrics"
)

// RunInfo holds the run parameters shown in the header.
type RunInfo struct {
	BaseURL      string
	ProductID    string
	Scenarios    []string
	ArrivalModel string
	Timeout      time.Duration
	Pacing       time.Duration
	ConfigFile   string
}

// Dashboard renders a live terminal UI for run metrics.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	outcomeChart   *widgets.BarChart
	outcomePara    *widgets.Paragraph
	scenarioList   *widgets.List
	statusList     *widgets.List
	summaryPara    *widgets.Paragraph
	latencyHistory []float64
	startTime      time.Time
	testDuration   time.Duration
	info           RunInfo
}

// New initialises the terminal and builds the widgets. shutdownFunc runs
// when the user presses q or Ctrl+C.
func New(collector *metrics.Collector, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		info:           info,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP95: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.outcomeChart = widgets.NewBarChart()
	d.outcomeChart.Title = "Outcomes"
	d.outcomeChart.Labels = outcomeLabels()
	d.outcomeChart.Data = make([]float64, len(outcomeLabels()))
	d.outcomeChart.BarWidth = 9
	d.outcomeChart.BarColors = []ui.Color{ui.ColorGreen, ui.ColorYellow, ui.ColorRed}
	d.outcomeChart.NumStyles = []ui.Style{ui.NewStyle(ui.ColorBlack)}
	d.outcomeChart.BorderStyle.Fg = ui.ColorCyan

	d.outcomePara = widgets.NewParagraph()
	d.outcomePara.Title = "Outcome Rates"
	d.outcomePara.Text = "Waiting for data..."
	d.outcomePara.BorderStyle.Fg = ui.ColorCyan

	d.scenarioList = widgets.NewList()
	d.scenarioList.Title = "Scenarios"
	d.scenarioList.Rows = []string{"Awaiting data"}
	d.scenarioList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.scenarioList.BorderStyle.Fg = ui.ColorCyan

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Buckets"
	d.statusList.Rows = []string{"No responses yet"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Checkout Race"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.12,
			ui.NewCol(1.0, d.rpsGauge),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.5, d.outcomeChart),
			ui.NewCol(0.5, d.outcomePara),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.26,
			ui.NewCol(0.6, d.scenarioList),
			ui.NewCol(0.4, d.statusList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.testDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// GetFinalStats returns the final statistics after the dashboard has stopped.
func (d *Dashboard) GetFinalStats() metrics.Stats {
	return d.collector.Stats(d.testDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			elapsed := time.Since(d.startTime)
			d.update(d.collector.Stats(elapsed), elapsed)
			d.render()
		}
	}
}

// update refreshes every widget from a stats snapshot.
func (d *Dashboard) update(stats metrics.Stats, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stats.Total > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.MeanLatencyMs)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	currentRPS := stats.RequestsPerSec
	maxRPS := 100.0
	if currentRPS > maxRPS {
		maxRPS = currentRPS
	}
	d.rpsGauge.Percent = int((currentRPS / maxRPS) * 100)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS | %.1f iterations/s", currentRPS, stats.IterationsPerSec)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s/checkout | Product: %s\n%s\nElapsed: %s | Requests: %d | Failed: %d | Dropped iterations: %d",
		d.info.BaseURL,
		d.info.ProductID,
		formatRunParams(d.info),
		elapsed.Round(time.Second),
		stats.Total,
		stats.Failures,
		stats.DroppedIterations,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP95:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P95LatencyMs,
		stats.P99LatencyMs,
	)

	d.outcomeChart.Data = outcomeCounts(stats.Rates)
	d.outcomePara.Text = formatOutcomeText(stats)
	d.scenarioList.Rows = formatScenarioRows(stats.Scenarios)
	d.statusList.Rows = formatStatusListRows(stats.StatusBuckets)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func outcomeLabels() []string {
	return []string{"success", "no stock", "race"}
}

// outcomeCounts returns the true counts of the three outcome rates in
// label order.
func outcomeCounts(rates map[string]metrics.RateStats) []float64 {
	names := checkout.RateNames()
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = float64(rates[name].Trues)
	}
	return out
}

func formatOutcomeText(stats metrics.Stats) string {
	lines := make([]string, 0, 5)
	for _, name := range checkout.RateNames() {
		r, ok := stats.Rates[name]
		if !ok {
			continue
		}
		color := "green"
		if name == checkout.RateRaceConditionFailures && r.Trues > 0 {
			color = "red"
		}
		lines = append(lines, fmt.Sprintf("[%s:](fg:white) [%.2f%%](fg:%s) (%d/%d)", name, r.Rate*100, color, r.Trues, r.Total))
	}
	if len(stats.Checks) > 0 {
		lines = append(lines, fmt.Sprintf("[checks:](fg:white) %.2f%% passed", stats.ChecksPassRate*100))
	}
	if len(lines) == 0 {
		return "[No outcomes yet](fg:green)"
	}
	return strings.Join(lines, "\n")
}

func formatScenarioRows(scenarios map[string]metrics.ScenarioStats) []string {
	if len(scenarios) == 0 {
		return []string{"[No scenario data](fg:green)"}
	}
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]string, 0, len(names))
	for _, name := range names {
		s := scenarios[name]
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) | Req %d | Err %d | Iter %d | Dropped %d | VUs %d (peak %d)",
			name, s.Requests, s.Failures, s.Iterations, s.DroppedIterations, s.ActiveVUs, s.PeakVUs))
	}
	return rows
}

func formatStatusListRows(buckets map[string]map[string]int) []string {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		return []string{"[No responses yet](fg:green)"}
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		color := "red"
		if row.Code == "200" {
			color = "green"
		} else if row.Code == "400" {
			color = "yellow"
		}
		formatted = append(formatted, fmt.Sprintf("[%s %s](fg:%s) %d", row.Scenario, row.Code, color, row.Count))
	}
	return formatted
}

// formatRunParams formats the run configuration for the header.
func formatRunParams(info RunInfo) string {
	var parts []string

	if len(info.Scenarios) > 0 {
		parts = append(parts, fmt.Sprintf("Scenarios: %s", strings.Join(info.Scenarios, ", ")))
	}

	// Arrival model (only show if non-default)
	if info.ArrivalModel != "" && info.ArrivalModel != "uniform" {
		parts = append(parts, fmt.Sprintf("Arrival: %s", info.ArrivalModel))
	}

	if info.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", info.Timeout))
	}

	if info.Pacing > 0 {
		parts = append(parts, fmt.Sprintf("Pacing: %s", info.Pacing))
	}

	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
