package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/checkoutrace/internal/checkout"
	"github.com/torosent/checkoutrace/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			stats := p.collector.Stats(time.Since(p.start))
			fmt.Fprint(p.writer, "\r"+ProgressLine(stats))
		case <-p.done:
			return
		}
	}
}

// ProgressLine renders the one-line live status, followed by the true counts
// of the outcome rates that have been registered.
func ProgressLine(stats metrics.Stats) string {
	line := fmt.Sprintf("Requests: %d | Successes: %d | Failures: %d | RPS: %.1f | Iterations: %d | Dropped: %d",
		stats.Total, stats.Successes, stats.Failures, stats.RequestsPerSec, stats.Iterations, stats.DroppedIterations)
	for _, r := range highlightRates {
		if rs, ok := stats.Rates[r.name]; ok {
			line += fmt.Sprintf(" | %s: %d", r.label, rs.Trues)
		}
	}
	return line
}

var highlightRates = []struct {
	name  string
	label string
}{
	{checkout.RateSuccessfulCheckouts, "Checkouts"},
	{checkout.RateStockExhausted, "Stock exhausted"},
	{checkout.RateRaceConditionFailures, "Race failures"},
}
