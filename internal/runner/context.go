package runner

import "context"

type scenarioKey struct{}

func withScenario(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, scenarioKey{}, name)
}

// ScenarioFromContext returns the name of the scenario driving the current
// iteration, or "" outside of a Runner.
func ScenarioFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(scenarioKey{}).(string)
	return name
}
