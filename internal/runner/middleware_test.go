package runner

import (
	"context"
	"errors"
	"testing"
)

type recordingLogger struct {
	scenarios []string
	errs      []error
}

func (l *recordingLogger) LogFailure(scenario string, err error) {
	l.scenarios = append(l.scenarios, scenario)
	l.errs = append(l.errs, err)
}

func TestWithLoggingLogsFailuresOnly(t *testing.T) {
	logger := &recordingLogger{}
	failure := &HTTPError{StatusCode: 500, Body: "oops"}
	calls := 0
	req := WithLogging(RequesterFunc(func(context.Context) error {
		calls++
		if calls == 2 {
			return failure
		}
		return nil
	}), logger)

	ctx := withScenario(context.Background(), "race_condition_test")
	_ = req.Do(ctx)
	err := req.Do(ctx)

	if !errors.Is(err, failure) {
		t.Fatalf("error not passed through: %v", err)
	}
	if len(logger.errs) != 1 || logger.scenarios[0] != "race_condition_test" {
		t.Fatalf("logger saw %v %v", logger.scenarios, logger.errs)
	}
}

func TestWithLoggingNilLogger(t *testing.T) {
	inner := RequesterFunc(func(context.Context) error { return nil })
	if got := WithLogging(inner, nil); got == nil {
		t.Fatal("expected inner requester back")
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{StatusCode: 503, Body: "unavailable"}
	if err.Error() != "HTTP 503: unavailable" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestScenarioFromContext(t *testing.T) {
	if got := ScenarioFromContext(context.Background()); got != "" {
		t.Fatalf("empty context returned %q", got)
	}
	if got := ScenarioFromContext(withScenario(context.Background(), "burst_test")); got != "burst_test" {
		t.Fatalf("got %q", got)
	}
}
