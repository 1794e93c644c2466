package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records per-request metrics in a thread-safe manner.
type Collector struct {
	mu            sync.Mutex
	hist          *hdrhistogram.Histogram
	successes     int64
	failures      int64
	minLatency    time.Duration
	maxLatency    time.Duration
	sumLatency    time.Duration
	errorsByType  map[string]int64
	statusBuckets map[string]map[string]int
	scenarios     map[string]*scenarioCounters
	checks        map[string]*checkCounters
	checkOrder    []string
	rates         rateSet
	start         time.Time
}

type scenarioCounters struct {
	requests   int64
	failures   int64
	iterations int64
	errors     int64
	dropped    int64
	activeVUs  int
	peakVUs    int
}

type checkCounters struct {
	passes int64
	fails  int64
}

// ScenarioStats summarises one scenario.
type ScenarioStats struct {
	Requests          int64 `json:"requests"`
	Failures          int64 `json:"failures"`
	Iterations        int64 `json:"iterations"`
	IterationErrors   int64 `json:"iteration_errors"`
	DroppedIterations int64 `json:"dropped_iterations"`
	ActiveVUs         int   `json:"active_vus"`
	PeakVUs           int   `json:"peak_vus"`
}

// CheckStats summarises one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P95Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms"`

	Iterations        int64                     `json:"iterations"`
	IterationsPerSec  float64                   `json:"iterations_per_sec"`
	DroppedIterations int64                     `json:"dropped_iterations"`
	Errors            map[string]int            `json:"errors,omitempty"`
	StatusBuckets     map[string]map[string]int `json:"status_buckets,omitempty"`
	Scenarios         map[string]ScenarioStats  `json:"scenarios,omitempty"`
	Rates             map[string]RateStats      `json:"rates,omitempty"`
	Checks            []CheckStats              `json:"checks,omitempty"`
	ChecksPassRate    float64                   `json:"checks_pass_rate"`
}

// NewCollector returns an empty collector with its start time set to now.
func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:          h,
		errorsByType:  make(map[string]int64),
		statusBuckets: make(map[string]map[string]int),
		scenarios:     make(map[string]*scenarioCounters),
		checks:        make(map[string]*checkCounters),
		start:         time.Now(),
	}
}

// Start marks the beginning of the measured run.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RegisterRate makes a rate visible in Stats before its first sample.
func (c *Collector) RegisterRate(name string) {
	c.rates.get(name)
}

// RecordRequest records a single request's latency and outcome.
// A request fails when err is set or the status is outside 200-399.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	status := 0
	scenario := ""
	if meta != nil {
		status = meta.StatusCode
		scenario = meta.Scenario
	}
	failed := err != nil || status < 200 || status >= 400

	if failed {
		c.failures++
		if err != nil {
			c.errorsByType[FriendlyErrorName(fmt.Sprintf("%T", err))]++
		}
	} else {
		c.successes++
	}

	codes, ok := c.statusBuckets[scenario]
	if !ok {
		codes = make(map[string]int)
		c.statusBuckets[scenario] = codes
	}
	codes[statusLabel(status)]++

	sc := c.scenarioLocked(scenario)
	sc.requests++
	if failed {
		sc.failures++
	}
}

// AddRate adds one sample to the named rate.
func (c *Collector) AddRate(_ string, name string, value bool) {
	c.rates.get(name).Add(value)
}

// RecordCheck records the result of a named check.
func (c *Collector) RecordCheck(_ string, name string, pass bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc, ok := c.checks[name]
	if !ok {
		cc = &checkCounters{}
		c.checks[name] = cc
		c.checkOrder = append(c.checkOrder, name)
	}
	if pass {
		cc.passes++
	} else {
		cc.fails++
	}
}

// RecordIteration counts one completed iteration.
func (c *Collector) RecordIteration(scenario string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.scenarioLocked(scenario)
	sc.iterations++
	if err != nil {
		sc.errors++
	}
}

// RecordDroppedIteration counts an arrival that found no free virtual user.
func (c *Collector) RecordDroppedIteration(scenario string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenarioLocked(scenario).dropped++
}

// SetActiveVUs records the current virtual user count of a scenario.
func (c *Collector) SetActiveVUs(scenario string, active int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.scenarioLocked(scenario)
	sc.activeVUs = active
	if active > sc.peakVUs {
		sc.peakVUs = active
	}
}

func (c *Collector) scenarioLocked(name string) *scenarioCounters {
	sc, ok := c.scenarios[name]
	if !ok {
		sc = &scenarioCounters{}
		c.scenarios[name] = sc
	}
	return sc
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P95Latency = time.Duration(c.hist.ValueAtQuantile(95)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P95LatencyMs = toMillis(stats.P95Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	if len(c.statusBuckets) > 0 {
		stats.StatusBuckets = make(map[string]map[string]int, len(c.statusBuckets))
		for scenario, codes := range c.statusBuckets {
			copied := make(map[string]int, len(codes))
			for code, n := range codes {
				copied[code] = n
			}
			stats.StatusBuckets[scenario] = copied
		}
	}

	if len(c.scenarios) > 0 {
		stats.Scenarios = make(map[string]ScenarioStats, len(c.scenarios))
		for name, sc := range c.scenarios {
			stats.Scenarios[name] = ScenarioStats{
				Requests:          sc.requests,
				Failures:          sc.failures,
				Iterations:        sc.iterations,
				IterationErrors:   sc.errors,
				DroppedIterations: sc.dropped,
				ActiveVUs:         sc.activeVUs,
				PeakVUs:           sc.peakVUs,
			}
			stats.Iterations += sc.iterations
			stats.DroppedIterations += sc.dropped
		}
	}
	if elapsed > 0 && stats.Iterations > 0 {
		stats.IterationsPerSec = float64(stats.Iterations) / elapsed.Seconds()
	}

	var passes, checksTotal int64
	for _, name := range c.checkOrder {
		cc := c.checks[name]
		stats.Checks = append(stats.Checks, CheckStats{Name: name, Passes: cc.passes, Fails: cc.fails})
		passes += cc.passes
		checksTotal += cc.passes + cc.fails
	}
	if checksTotal > 0 {
		stats.ChecksPassRate = float64(passes) / float64(checksTotal)
	}

	stats.Rates = c.rates.snapshot()

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
