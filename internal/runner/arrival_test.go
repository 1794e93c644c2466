package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(200)
	delay, ok := ctrl.nextDelay()
	if !ok {
		t.Fatal("expected a delay for a positive rate")
	}
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(0.000001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestPoissonArrivalPausesAtZeroRate(t *testing.T) {
	ctrl := &poissonArrival{sample: func() float64 { return 1 }}
	ctrl.SetRate(0)
	if _, ok := ctrl.nextDelay(); ok {
		t.Fatal("zero rate should not produce a delay")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := ctrl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while paused, got %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatal("paused controller returned before the context expired")
	}
}

func TestUniformArrivalSpacesEvenly(t *testing.T) {
	ctrl := newArrivalController(Options{ArrivalModel: ArrivalModelUniform}, &patternPlan{
		segments: []patternSegment{{duration: time.Minute, fromRate: 100, toRate: 100}},
		duration: time.Minute,
	})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 11; i++ {
		if err := ctrl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	// First arrival is immediate, the next ten are 10ms apart.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("11 arrivals at 100/s took %s, expected about 100ms", elapsed)
	}
}

func TestUniformArrivalResumesAfterPause(t *testing.T) {
	ctrl := newArrivalController(Options{}, nil).(*uniformArrival)
	if ctrl.current() != 0 {
		t.Fatalf("controller without a plan should start paused, rate %f", ctrl.current())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatal("paused controller should not release an arrival")
	}

	ctrl.SetRate(1000)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := ctrl.Wait(ctx2); err != nil {
		t.Fatalf("resumed controller: %v", err)
	}
}
