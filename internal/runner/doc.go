// Package runner provides the arrival-rate execution engine for checkoutrace.
//
// The runner package schedules iterations independently of how long each one
// takes, with support for:
//   - Constant and ramping arrival-rate executors
//   - A bounded virtual user (VU) pool that grows on demand up to MaxVUs
//   - Dropped-iteration accounting when every VU is busy
//   - Graceful stop for iterations still in flight when scheduling ends
//   - Multiple arrival models (uniform, Poisson)
//   - Several scenarios with start offsets running side by side
//
// # Basic Usage
//
// Describe a scenario and hand it a requester:
//
//	sc := runner.Scenario{
//		Name:            "race_condition_test",
//		Executor:        runner.ExecutorConstantArrivalRate,
//		Rate:            50,
//		TimeUnit:        time.Second,
//		Duration:        30 * time.Second,
//		PreAllocatedVUs: 100,
//		MaxVUs:          200,
//	}
//	result := runner.New(sc, runner.Options{Requester: driver}).Run(ctx)
//
// [RunScenarios] runs a list of scenarios concurrently, each after its
// StartTime offset, and returns one [Result] per scenario.
//
// # Requester Interface
//
// The [Requester] interface defines what a runner executes:
//
//	type Requester interface {
//		Do(ctx context.Context) error
//	}
//
// The context passed to Do carries the scenario name, see [ScenarioFromContext].
//
// # Stages
//
// A ramping scenario moves linearly from StartRate (or the previous stage's
// target) to each [Stage] target over the stage duration. Rates are expressed
// per TimeUnit.
//
// # Middleware
//
//   - [WithLogging]: Log iteration failures
//
// # Error Handling
//
// The [HTTPError] type provides structured error information for HTTP requests:
//
//	var httpErr *runner.HTTPError
//	if errors.As(err, &httpErr) {
//		fmt.Printf("Status: %d, Body: %s\n", httpErr.StatusCode, httpErr.Body)
//	}
package runner
