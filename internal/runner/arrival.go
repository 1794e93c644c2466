package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idlePoll is how often a paused controller (rate 0) checks for a new rate.
const idlePoll = 50 * time.Millisecond

type arrivalController interface {
	Wait(ctx context.Context) error
	SetRate(perSecond float64)
}

func newArrivalController(opt Options, plan *patternPlan) arrivalController {
	baseRate := 0.0
	if r, ok := plan.rateAt(0); ok {
		baseRate = r
	}

	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		sampler := opt.PoissonSampler
		if sampler == nil {
			seeded := rand.New(rand.NewSource(opt.RandomSeed))
			sampler = seeded.ExpFloat64
		}
		ctrl := &poissonArrival{sample: sampler}
		ctrl.SetRate(baseRate)
		return ctrl
	default:
		return &uniformArrival{rate: baseRate, limiter: rate.NewLimiter(rate.Limit(baseRate), 1)}
	}
}

// uniformArrival delegates pacing to a rate.Limiter with a burst of one, so
// arrivals are evenly spaced.
type uniformArrival struct {
	mu      sync.Mutex
	rate    float64
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	for {
		if u.current() > 0 {
			return u.limiter.Wait(ctx)
		}
		if err := sleepCtx(ctx, idlePoll); err != nil {
			return err
		}
	}
}

func (u *uniformArrival) SetRate(perSecond float64) {
	if perSecond < 0 {
		perSecond = 0
	}
	u.mu.Lock()
	u.rate = perSecond
	u.mu.Unlock()
	// The limiter keeps its last positive limit while paused.
	if perSecond > 0 {
		u.limiter.SetLimit(rate.Limit(perSecond))
	}
}

func (u *uniformArrival) current() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rate
}

// poissonArrival samples exponential inter-arrival times to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	for {
		delay, ok := p.nextDelay()
		if !ok {
			if err := sleepCtx(ctx, idlePoll); err != nil {
				return err
			}
			continue
		}
		if delay <= 0 {
			return ctx.Err()
		}
		return sleepCtx(ctx, delay)
	}
}

func (p *poissonArrival) SetRate(perSecond float64) {
	if perSecond < 0 {
		perSecond = 0
	}
	p.mu.Lock()
	p.rate = perSecond
	p.mu.Unlock()
}

func (p *poissonArrival) nextDelay() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate <= 0 || p.sample == nil {
		return 0, false
	}

	value := p.sample()
	delay := float64(time.Second) * value / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
