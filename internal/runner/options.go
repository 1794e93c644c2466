package runner

import (
	"context"
	"time"
)

// Requester abstracts executing a single iteration.
// Implementations should return an error for failed iterations.
type Requester interface {
	Do(ctx context.Context) error
}

// RequesterFunc adapts a plain function to Requester.
type RequesterFunc func(ctx context.Context) error

func (f RequesterFunc) Do(ctx context.Context) error { return f(ctx) }

type Executor string

const (
	ExecutorConstantArrivalRate Executor = "constant-arrival-rate"
	ExecutorRampingArrivalRate  Executor = "ramping-arrival-rate"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// DefaultGracefulStop bounds how long in-flight iterations may run after a
// scenario stops scheduling.
const DefaultGracefulStop = 30 * time.Second

// Stage moves the arrival rate linearly to Target over Duration.
type Stage struct {
	Duration time.Duration
	Target   int
}

// Scenario describes one arrival-rate workload. Rates are iterations per TimeUnit.
type Scenario struct {
	Name            string
	Executor        Executor
	Rate            int
	TimeUnit        time.Duration
	StartRate       int
	Stages          []Stage
	Duration        time.Duration
	PreAllocatedVUs int
	MaxVUs          int
	StartTime       time.Duration
	// GracefulStop of 0 means DefaultGracefulStop; negative cancels in-flight
	// iterations as soon as scheduling ends.
	GracefulStop time.Duration
}

// TotalDuration is the scheduling window of the scenario, excluding its start offset.
func (s Scenario) TotalDuration() time.Duration {
	if s.Executor == ExecutorRampingArrivalRate {
		var total time.Duration
		for _, st := range s.Stages {
			if st.Duration > 0 {
				total += st.Duration
			}
		}
		return total
	}
	return s.Duration
}

// Hooks receive scheduling events. Every field is optional and may be
// called from many goroutines at once.
type Hooks struct {
	OnIteration func(scenario string, err error)
	OnDropped   func(scenario string)
	OnVUs       func(scenario string, active int)
}

// Options configure how scenarios are executed.
type Options struct {
	Requester      Requester      // iteration executor (required)
	ArrivalModel   ArrivalModel   // uniform (default) or poisson
	PoissonSampler func() float64 // optional injection for tests
	RandomSeed     int64
	Hooks          Hooks
}

func (s *Scenario) normalize() {
	if s.TimeUnit <= 0 {
		s.TimeUnit = time.Second
	}
	if s.PreAllocatedVUs < 0 {
		s.PreAllocatedVUs = 0
	}
	if s.MaxVUs < s.PreAllocatedVUs {
		s.MaxVUs = s.PreAllocatedVUs
	}
	if s.MaxVUs < 1 {
		s.MaxVUs = 1
	}
	if s.GracefulStop == 0 {
		s.GracefulStop = DefaultGracefulStop
	}
	if s.Executor == "" {
		s.Executor = ExecutorConstantArrivalRate
	}
}

func (o *Options) normalize() {
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
}
