package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/checkoutrace/internal/runner"
)

// fakeRequester simulates an iteration with fixed latency.
type fakeRequester struct {
	latency time.Duration
	calls   *int64
	fail    bool
}

func (f *fakeRequester) Do(ctx context.Context) error {
	if f.calls != nil {
		atomic.AddInt64(f.calls, 1)
	}
	select {
	case <-time.After(f.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if f.fail {
		return errors.New("iteration failed")
	}
	return nil
}

func constant(rate int, d time.Duration, pre, max int) runner.Scenario {
	return runner.Scenario{
		Name:            "constant",
		Executor:        runner.ExecutorConstantArrivalRate,
		Rate:            rate,
		TimeUnit:        time.Second,
		Duration:        d,
		PreAllocatedVUs: pre,
		MaxVUs:          max,
	}
}

func TestConstantArrivalRateHonorsRate(t *testing.T) {
	var calls int64
	r := runner.New(constant(100, 500*time.Millisecond, 5, 10), runner.Options{
		Requester: &fakeRequester{latency: time.Millisecond, calls: &calls},
	})
	res := r.Run(context.Background())

	if res.Iterations < 35 || res.Iterations > 60 {
		t.Fatalf("expected about 50 iterations at 100/s for 500ms, got %d", res.Iterations)
	}
	if res.Iterations != atomic.LoadInt64(&calls) {
		t.Fatalf("iterations %d != requester calls %d", res.Iterations, calls)
	}
	if res.Dropped != 0 {
		t.Fatalf("fast iterations should never be dropped, got %d", res.Dropped)
	}
	if res.Scenario != "constant" {
		t.Fatalf("scenario = %q", res.Scenario)
	}
	if res.Expected != 50 {
		t.Fatalf("expected iterations = %d, want 50", res.Expected)
	}
}

func TestDroppedIterationsWhenPoolExhausted(t *testing.T) {
	var calls int64
	r := runner.New(constant(100, 300*time.Millisecond, 1, 2), runner.Options{
		Requester: &fakeRequester{latency: 250 * time.Millisecond, calls: &calls},
	})
	res := r.Run(context.Background())

	if res.PeakVUs != 2 {
		t.Fatalf("peak VUs = %d, want 2", res.PeakVUs)
	}
	if res.Iterations > 6 {
		t.Fatalf("two busy VUs cannot complete %d iterations in 300ms", res.Iterations)
	}
	if res.Dropped < 10 {
		t.Fatalf("expected most arrivals dropped, got %d", res.Dropped)
	}
}

func TestVUPoolGrowsOnDemand(t *testing.T) {
	r := runner.New(constant(100, 200*time.Millisecond, 0, 50), runner.Options{
		Requester: &fakeRequester{latency: 50 * time.Millisecond},
	})
	res := r.Run(context.Background())

	if res.Dropped != 0 {
		t.Fatalf("pool below its cap should not drop, dropped %d", res.Dropped)
	}
	if res.PeakVUs < 3 || res.PeakVUs > 50 {
		t.Fatalf("peak VUs = %d, expected the pool to grow past 3", res.PeakVUs)
	}
}

func TestGracefulStopCancelsInFlight(t *testing.T) {
	sc := constant(20, 100*time.Millisecond, 1, 5)
	sc.GracefulStop = 50 * time.Millisecond

	r := runner.New(sc, runner.Options{
		Requester: runner.RequesterFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	})

	start := time.Now()
	res := r.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("run took %s, graceful stop should have bounded it", elapsed)
	}
	if res.Iterations == 0 || res.Errors != res.Iterations {
		t.Fatalf("every blocked iteration should end cancelled: %+v", res)
	}
}

func TestGracefulStopLetsIterationsFinish(t *testing.T) {
	var finished atomic.Int64
	sc := constant(10, 50*time.Millisecond, 1, 1)
	sc.GracefulStop = time.Second

	r := runner.New(sc, runner.Options{
		Requester: runner.RequesterFunc(func(ctx context.Context) error {
			select {
			case <-time.After(150 * time.Millisecond):
				finished.Add(1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
	})
	res := r.Run(context.Background())
	if res.Errors != 0 || finished.Load() != res.Iterations {
		t.Fatalf("iterations should complete within the graceful window: %+v finished=%d", res, finished.Load())
	}
}

func TestHooksAndScenarioContext(t *testing.T) {
	var (
		mu         sync.Mutex
		seen       = map[string]int{}
		iterations int64
		dropped    int64
		lastVUs    int
		maxVUs     int
	)
	opts := runner.Options{
		Requester: runner.RequesterFunc(func(ctx context.Context) error {
			mu.Lock()
			seen[runner.ScenarioFromContext(ctx)]++
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			return errors.New("boom")
		}),
		Hooks: runner.Hooks{
			OnIteration: func(scenario string, err error) {
				if scenario == "hooked" && err != nil {
					atomic.AddInt64(&iterations, 1)
				}
			},
			OnDropped: func(string) { atomic.AddInt64(&dropped, 1) },
			OnVUs: func(_ string, active int) {
				mu.Lock()
				lastVUs = active
				if active > maxVUs {
					maxVUs = active
				}
				mu.Unlock()
			},
		},
	}
	sc := constant(100, 200*time.Millisecond, 1, 2)
	sc.Name = "hooked"

	res := runner.New(sc, opts).Run(context.Background())

	if atomic.LoadInt64(&iterations) != res.Iterations || res.Errors != res.Iterations {
		t.Fatalf("OnIteration calls %d, result %+v", iterations, res)
	}
	if atomic.LoadInt64(&dropped) != res.Dropped {
		t.Fatalf("OnDropped calls %d, result dropped %d", dropped, res.Dropped)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen["hooked"] != int(res.Iterations) || len(seen) != 1 {
		t.Fatalf("scenario name not propagated: %v", seen)
	}
	if lastVUs != 0 || maxVUs != res.PeakVUs {
		t.Fatalf("OnVUs last=%d max=%d peak=%d", lastVUs, maxVUs, res.PeakVUs)
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := runner.New(constant(50, 10*time.Second, 2, 2), runner.Options{
		Requester: &fakeRequester{latency: time.Millisecond},
	}).Run(ctx)
	if time.Since(start) > 2*time.Second {
		t.Fatal("runner ignored context cancellation")
	}
	if res.Iterations == 0 {
		t.Fatal("expected a few iterations before cancellation")
	}
}

func TestPoissonArrivalModel(t *testing.T) {
	var calls int64
	res := runner.New(constant(100, 300*time.Millisecond, 2, 4), runner.Options{
		ArrivalModel:   runner.ArrivalModelPoisson,
		PoissonSampler: func() float64 { return 1 },
		Requester:      &fakeRequester{latency: time.Millisecond, calls: &calls},
	}).Run(context.Background())

	if res.Iterations < 10 || res.Iterations > 35 {
		t.Fatalf("expected about 30 poisson arrivals, got %d", res.Iterations)
	}
}

func TestRunScenariosStartOffsets(t *testing.T) {
	var (
		mu    sync.Mutex
		first = map[string]time.Duration{}
	)
	start := time.Now()
	opts := runner.Options{
		Requester: runner.RequesterFunc(func(ctx context.Context) error {
			name := runner.ScenarioFromContext(ctx)
			mu.Lock()
			if _, ok := first[name]; !ok {
				first[name] = time.Since(start)
			}
			mu.Unlock()
			return nil
		}),
	}

	early := constant(50, 100*time.Millisecond, 1, 2)
	early.Name = "early"
	late := constant(50, 100*time.Millisecond, 1, 2)
	late.Name = "late"
	late.StartTime = 200 * time.Millisecond

	results, err := runner.RunScenarios(context.Background(), []runner.Scenario{early, late}, opts)
	if err != nil {
		t.Fatalf("RunScenarios: %v", err)
	}
	if len(results) != 2 || results[0].Scenario != "early" || results[1].Scenario != "late" {
		t.Fatalf("results out of order: %+v", results)
	}
	for _, r := range results {
		if r.Iterations == 0 {
			t.Fatalf("scenario %s ran no iterations", r.Scenario)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if first["early"] > 100*time.Millisecond {
		t.Fatalf("early scenario started late: %s", first["early"])
	}
	if first["late"] < 200*time.Millisecond {
		t.Fatalf("late scenario started before its offset: %s", first["late"])
	}
}

func TestRunScenariosCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	sc := constant(10, time.Second, 1, 1)
	sc.Name = "never"
	sc.StartTime = 5 * time.Second

	results, err := runner.RunScenarios(ctx, []runner.Scenario{sc}, runner.Options{
		Requester: &fakeRequester{latency: time.Millisecond},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if results[0].Scenario != "never" || results[0].Iterations != 0 {
		t.Fatalf("unexpected result %+v", results[0])
	}
}
