package runner

import (
	"math"
	"time"
)

// patternPlan is a scenario compiled into per-second rate segments.
type patternPlan struct {
	segments []patternSegment
	duration time.Duration
	maxRate  float64
}

type patternSegment struct {
	start    time.Duration
	duration time.Duration
	fromRate float64
	toRate   float64
}

func compilePatternPlan(sc Scenario) *patternPlan {
	unit := sc.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	perSecond := func(n int) float64 {
		if n <= 0 {
			return 0
		}
		return float64(n) / unit.Seconds()
	}

	plan := &patternPlan{}
	switch sc.Executor {
	case ExecutorRampingArrivalRate:
		var offset time.Duration
		previous := perSecond(sc.StartRate)
		for _, stage := range sc.Stages {
			target := perSecond(stage.Target)
			if stage.Duration <= 0 {
				previous = target
				continue
			}
			plan.appendSegment(patternSegment{
				start:    offset,
				duration: stage.Duration,
				fromRate: previous,
				toRate:   target,
			})
			offset += stage.Duration
			previous = target
		}
		plan.duration = offset
	default:
		if sc.Duration > 0 {
			r := perSecond(sc.Rate)
			plan.appendSegment(patternSegment{duration: sc.Duration, fromRate: r, toRate: r})
			plan.duration = sc.Duration
		}
	}

	if len(plan.segments) == 0 {
		return nil
	}
	return plan
}

func (p *patternPlan) appendSegment(seg patternSegment) {
	p.segments = append(p.segments, seg)
	p.maxRate = math.Max(p.maxRate, math.Max(seg.fromRate, seg.toRate))
}

func (p *patternPlan) rateAt(elapsed time.Duration) (float64, bool) {
	if p == nil || len(p.segments) == 0 {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		if elapsed < seg.start {
			continue
		}
		end := seg.start + seg.duration
		if elapsed >= end {
			continue
		}
		if seg.fromRate == seg.toRate {
			return seg.fromRate, true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
		return seg.fromRate + (seg.toRate-seg.fromRate)*progress, true
	}
	return 0, false
}

// expectedIterations integrates the plan, i.e. the iteration count a perfect
// scheduler would start.
func (p *patternPlan) expectedIterations() float64 {
	if p == nil {
		return 0
	}
	var total float64
	for _, seg := range p.segments {
		total += (seg.fromRate + seg.toRate) / 2 * seg.duration.Seconds()
	}
	return total
}

func (p *patternPlan) totalDuration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}
