package runner

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures the execution summary of one scenario. Expected is the
// iteration count the scenario's rate plan asks for; a shortfall against
// Iterations means arrivals were dropped or the run was cut short.
type Result struct {
	Scenario   string
	Expected   int64
	Iterations int64
	Errors     int64
	Dropped    int64
	PeakVUs    int
	Duration   time.Duration
}

// Runner executes a single arrival-rate scenario.
type Runner struct {
	sc      Scenario
	opt     Options
	plan    *patternPlan
	arrival arrivalController

	iterations atomic.Int64
	errs       atomic.Int64
	dropped    atomic.Int64

	vuMu    sync.Mutex
	vus     int
	peakVUs int
}

func New(sc Scenario, opt Options) *Runner {
	sc.normalize()
	opt.normalize()
	plan := compilePatternPlan(sc)
	arrival := newArrivalController(opt, plan)
	return &Runner{sc: sc, opt: opt, plan: plan, arrival: arrival}
}

// Run schedules iterations until the scenario's plan is exhausted or ctx is
// cancelled, then waits up to the graceful stop for in-flight iterations.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	name := r.sc.Name

	iterCtx, cancelIterations := context.WithCancel(withScenario(ctx, name))
	defer cancelIterations()

	schedCtx, cancelSchedule := context.WithTimeout(ctx, r.plan.totalDuration())
	defer cancelSchedule()

	go r.runPatternController(schedCtx, start)

	work := make(chan struct{})
	var wg sync.WaitGroup
	spawn := func(first bool) {
		wg.Add(1)
		r.addVU(1)
		go func() {
			defer wg.Done()
			defer r.addVU(-1)
			if first {
				r.iterate(iterCtx)
			}
			for range work {
				r.iterate(iterCtx)
			}
		}()
	}

	for i := 0; i < r.sc.PreAllocatedVUs; i++ {
		spawn(false)
	}

	// Scheduler: hands each arrival to an idle VU, grows the pool up to
	// MaxVUs, and drops the arrival once the pool is exhausted.
	for r.plan != nil {
		if err := r.arrival.Wait(schedCtx); err != nil {
			break
		}
		if schedCtx.Err() != nil {
			break
		}
		select {
		case work <- struct{}{}:
			continue
		default:
		}
		if r.allocatedVUs() < r.sc.MaxVUs {
			spawn(true)
			continue
		}
		r.dropped.Add(1)
		if r.opt.Hooks.OnDropped != nil {
			r.opt.Hooks.OnDropped(name)
		}
	}
	close(work)

	r.drain(&wg, cancelIterations)

	r.vuMu.Lock()
	peak := r.peakVUs
	r.vuMu.Unlock()

	return Result{
		Scenario:   name,
		Expected:   int64(math.Round(r.plan.expectedIterations())),
		Iterations: r.iterations.Load(),
		Errors:     r.errs.Load(),
		Dropped:    r.dropped.Load(),
		PeakVUs:    peak,
		Duration:   time.Since(start),
	}
}

func (r *Runner) iterate(ctx context.Context) {
	var err error
	if r.opt.Requester != nil {
		err = r.opt.Requester.Do(ctx)
	}
	r.iterations.Add(1)
	if err != nil {
		r.errs.Add(1)
	}
	if r.opt.Hooks.OnIteration != nil {
		r.opt.Hooks.OnIteration(r.sc.Name, err)
	}
}

func (r *Runner) drain(wg *sync.WaitGroup, cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if r.sc.GracefulStop < 0 {
		cancel()
		<-done
		return
	}

	timer := time.NewTimer(r.sc.GracefulStop)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		cancel()
		<-done
	}
}

func (r *Runner) addVU(delta int) {
	r.vuMu.Lock()
	r.vus += delta
	if r.vus > r.peakVUs {
		r.peakVUs = r.vus
	}
	active := r.vus
	r.vuMu.Unlock()

	if r.opt.Hooks.OnVUs != nil {
		r.opt.Hooks.OnVUs(r.sc.Name, active)
	}
}

func (r *Runner) allocatedVUs() int {
	r.vuMu.Lock()
	defer r.vuMu.Unlock()
	return r.vus
}

func (r *Runner) runPatternController(ctx context.Context, start time.Time) {
	if r.plan == nil || r.arrival == nil {
		return
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rate, ok := r.plan.rateAt(time.Since(start))
			if !ok {
				return
			}
			r.arrival.SetRate(rate)
		}
	}
}
