package metrics

import "time"

// RequestMetadata tags a recorded HTTP request.
type RequestMetadata struct {
	Scenario   string
	StatusCode int // 0 when no response was received
}

// Recorder receives per-iteration observations.
type Recorder interface {
	RecordRequest(latency time.Duration, err error, meta *RequestMetadata)
	AddRate(scenario, name string, value bool)
	RecordCheck(scenario, name string, pass bool)
	RecordIteration(scenario string, err error)
	RecordDroppedIteration(scenario string)
	SetActiveVUs(scenario string, active int)
}

type teeRecorder []Recorder

// Tee fans every observation out to all non-nil recorders, in order.
func Tee(recorders ...Recorder) Recorder {
	out := make(teeRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (t teeRecorder) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	for _, r := range t {
		r.RecordRequest(latency, err, meta)
	}
}

func (t teeRecorder) AddRate(scenario, name string, value bool) {
	for _, r := range t {
		r.AddRate(scenario, name, value)
	}
}

func (t teeRecorder) RecordCheck(scenario, name string, pass bool) {
	for _, r := range t {
		r.RecordCheck(scenario, name, pass)
	}
}

func (t teeRecorder) RecordIteration(scenario string, err error) {
	for _, r := range t {
		r.RecordIteration(scenario, err)
	}
}

func (t teeRecorder) RecordDroppedIteration(scenario string) {
	for _, r := range t {
		r.RecordDroppedIteration(scenario)
	}
}

func (t teeRecorder) SetActiveVUs(scenario string, active int) {
	for _, r := range t {
		r.SetActiveVUs(scenario, active)
	}
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) RecordRequest(time.Duration, error, *RequestMetadata) {}
func (discard) AddRate(string, string, bool)                         {}
func (discard) RecordCheck(string, string, bool)                     {}
func (discard) RecordIteration(string, error)                        {}
func (discard) RecordDroppedIteration(string)                        {}
func (discard) SetActiveVUs(string, int)                             {}
