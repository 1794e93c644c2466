package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/torosent/checkoutrace/internal/threshold"
)

const (
	DefaultBaseURL       = "http://localhost:8080"
	DefaultProductID     = "8a6624d3-916a-480c-94ab-21b2dc9925d7"
	DefaultUserID        = "38fca0ee-e9d4-4ace-8a0d-e0a966813b74"
	DefaultExpectedStock = 100

	defaultTimeout = 10 * time.Second
	defaultPacing  = 100 * time.Millisecond
)

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

type Config struct {
	BaseURL             string        `mapstructure:"base_url" yaml:"base_url"`
	ProductID           string        `mapstructure:"product_id" yaml:"product_id"`
	UserID              string        `mapstructure:"user_id" yaml:"user_id"`
	ExpectedStock       int           `mapstructure:"expected_stock" yaml:"expected_stock"`
	Quantity            int           `mapstructure:"quantity" yaml:"quantity"`
	IdempotencyQuantity int           `mapstructure:"idempotency_quantity" yaml:"idempotency_quantity"`
	IdempotencyAttempts int           `mapstructure:"idempotency_attempts" yaml:"idempotency_attempts"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Pacing              time.Duration `mapstructure:"pacing" yaml:"pacing"`
	Scenarios           []Scenario    `mapstructure:"scenarios" yaml:"scenarios"`
	ScenarioFilter      []string      `mapstructure:"-" yaml:"-"`
	Thresholds          []string      `mapstructure:"thresholds" yaml:"thresholds"`
	ArrivalModel        ArrivalModel  `mapstructure:"arrival_model" yaml:"arrival_model"`
	JSONOutput          bool          `mapstructure:"json_output" yaml:"json_output"`
	Dashboard           bool          `mapstructure:"dashboard" yaml:"dashboard"`
	LogErrors           bool          `mapstructure:"log_errors" yaml:"log_errors"`
	LogLevel            string        `mapstructure:"log_level" yaml:"log_level"`
	SummaryExport       string        `mapstructure:"summary_export" yaml:"summary_export,omitempty"`
	MetricsAddr         string        `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
	Tracing             TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	ConfigFile          string        `mapstructure:"-" yaml:"-"`
}

// Stage moves the arrival rate to Target over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Target   int           `mapstructure:"target" yaml:"target"`
}

// Scenario is the declarative shape of one traffic pattern.
type Scenario struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	Executor        Executor      `mapstructure:"executor" yaml:"executor"`
	Rate            int           `mapstructure:"rate" yaml:"rate,omitempty"`
	TimeUnit        time.Duration `mapstructure:"time_unit" yaml:"time_unit"`
	StartRate       int           `mapstructure:"start_rate" yaml:"start_rate,omitempty"`
	Stages          []Stage       `mapstructure:"stages" yaml:"stages,omitempty"`
	Duration        time.Duration `mapstructure:"duration" yaml:"duration,omitempty"`
	PreAllocatedVUs int           `mapstructure:"pre_allocated_vus" yaml:"pre_allocated_vus"`
	MaxVUs          int           `mapstructure:"max_vus" yaml:"max_vus"`
	StartTime       time.Duration `mapstructure:"start_time" yaml:"start_time"`
	GracefulStop    time.Duration `mapstructure:"graceful_stop" yaml:"graceful_stop,omitempty"`
}

// TotalDuration is the scheduling window of the scenario, excluding its start offset.
func (s Scenario) TotalDuration() time.Duration {
	if s.Executor == ExecutorRampingArrivalRate {
		var total time.Duration
		for _, st := range s.Stages {
			total += st.Duration
		}
		return total
	}
	return s.Duration
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure,omitempty"`
	Propagate   *bool   `mapstructure:"propagate" yaml:"propagate,omitempty"`
}

// Enabled reports whether an OTLP endpoint is configured, either directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// DefaultScenarios returns the race and burst scenarios.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:            "race_condition_test",
			Executor:        ExecutorConstantArrivalRate,
			Rate:            50,
			TimeUnit:        time.Second,
			Duration:        30 * time.Second,
			PreAllocatedVUs: 100,
			MaxVUs:          200,
		},
		{
			Name:      "burst_test",
			Executor:  ExecutorRampingArrivalRate,
			StartRate: 10,
			TimeUnit:  time.Second,
			Stages: []Stage{
				{Duration: 10 * time.Second, Target: 10},
				{Duration: 5 * time.Second, Target: 100},
				{Duration: 10 * time.Second, Target: 100},
				{Duration: 5 * time.Second, Target: 10},
			},
			PreAllocatedVUs: 50,
			MaxVUs:          100,
			StartTime:       35 * time.Second,
		},
	}
}

// DefaultThresholds returns the pass/fail criteria applied when none are configured.
func DefaultThresholds() []string {
	return []string{
		"http_req_duration:p(95) < 500",
		"http_req_failed:rate < 0.1",
		"race_condition_failures:rate < 0.05",
	}
}

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		BaseURL:             DefaultBaseURL,
		ProductID:           DefaultProductID,
		UserID:              DefaultUserID,
		ExpectedStock:       DefaultExpectedStock,
		Quantity:            1,
		IdempotencyQuantity: 5,
		IdempotencyAttempts: 5,
		Timeout:             defaultTimeout,
		Pacing:              defaultPacing,
		Scenarios:           DefaultScenarios(),
		Thresholds:          DefaultThresholds(),
		ArrivalModel:        ArrivalModelUniform,
		LogLevel:            "info",
		Tracing:             TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// ActiveScenarios returns the scenarios selected by ScenarioFilter, or all of
// them when no filter is set.
func (c Config) ActiveScenarios() []Scenario {
	if len(c.ScenarioFilter) == 0 {
		return append([]Scenario(nil), c.Scenarios...)
	}
	wanted := make(map[string]bool, len(c.ScenarioFilter))
	for _, name := range c.ScenarioFilter {
		wanted[strings.TrimSpace(name)] = true
	}
	var out []Scenario
	for _, sc := range c.Scenarios {
		if wanted[sc.Name] {
			out = append(out, sc)
		}
	}
	return out
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if u, err := url.Parse(strings.TrimSpace(c.BaseURL)); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if _, err := uuid.Parse(c.ProductID); err != nil {
		issues = append(issues, fmt.Sprintf("product_id %q is not a UUID", c.ProductID))
	}
	if _, err := uuid.Parse(c.UserID); err != nil {
		issues = append(issues, fmt.Sprintf("user_id %q is not a UUID", c.UserID))
	}
	if c.ExpectedStock < 0 {
		issues = append(issues, "expected_stock must be >= 0")
	}
	if c.Quantity < 1 {
		issues = append(issues, "quantity must be >= 1")
	}
	if c.IdempotencyQuantity < 1 {
		issues = append(issues, "idempotency_quantity must be >= 1")
	}
	if c.IdempotencyAttempts < 1 {
		issues = append(issues, "idempotency_attempts must be >= 1")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Pacing < 0 {
		issues = append(issues, "pacing must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	switch c.ArrivalModel {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.ArrivalModel))
	}

	issues = append(issues, validateScenarios(c.Scenarios, c.ScenarioFilter)...)

	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// Warnings returns advisory messages about the configuration.
func (c Config) Warnings() []string {
	var warnings []string
	for _, sc := range c.Scenarios {
		peak := sc.Rate
		if sc.Executor == ExecutorRampingArrivalRate {
			peak = sc.StartRate
			for _, st := range sc.Stages {
				if st.Target > peak {
					peak = st.Target
				}
			}
		}
		if sc.TimeUnit > 0 {
			perSecond := float64(peak) / sc.TimeUnit.Seconds()
			if perSecond > 1000 {
				warnings = append(warnings, fmt.Sprintf("High arrival rate configured for %s (%.0f/s). Ensure you have authorization to test the target system.", sc.Name, perSecond))
			}
		}
		if sc.MaxVUs > 500 {
			warnings = append(warnings, fmt.Sprintf("High VU ceiling configured for %s (%d VUs). Ensure you have authorization to test the target system.", sc.Name, sc.MaxVUs))
		}
	}
	if c.Tracing.Enabled() && c.Tracing.Insecure {
		warnings = append(warnings, "OTLP exporter TLS is disabled (tracing.insecure: true).")
	}
	return warnings
}

func validateScenarios(scenarios []Scenario, filter []string) []string {
	var issues []string
	if len(scenarios) == 0 {
		issues = append(issues, "at least one scenario is required")
	}

	seen := map[string]int{}
	for idx, sc := range scenarios {
		label := fmt.Sprintf("scenarios[%d]", idx)
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			issues = append(issues, label+": name is required")
		} else {
			label = fmt.Sprintf("scenarios[%s]", name)
			if prev, ok := seen[name]; ok {
				issues = append(issues, fmt.Sprintf("%s: duplicate name also defined at index %d", label, prev))
			} else {
				seen[name] = idx
			}
		}

		switch sc.Executor {
		case ExecutorConstantArrivalRate:
			if sc.Rate < 0 {
				issues = append(issues, label+": rate must be >= 0")
			}
			if sc.Duration <= 0 {
				issues = append(issues, label+": duration must be > 0 for constant-arrival-rate")
			}
		case ExecutorRampingArrivalRate:
			if sc.StartRate < 0 {
				issues = append(issues, label+": start_rate must be >= 0")
			}
			if len(sc.Stages) == 0 {
				issues = append(issues, label+": stages are required for ramping-arrival-rate")
			}
			for stageIdx, st := range sc.Stages {
				if st.Duration < 0 {
					issues = append(issues, fmt.Sprintf("%s.stages[%d]: duration must be >= 0", label, stageIdx))
				}
				if st.Target < 0 {
					issues = append(issues, fmt.Sprintf("%s.stages[%d]: target must be >= 0", label, stageIdx))
				}
			}
			if len(sc.Stages) > 0 && sc.TotalDuration() <= 0 {
				issues = append(issues, label+": stages must add up to a positive duration")
			}
		default:
			issues = append(issues, fmt.Sprintf("%s: unsupported executor %q", label, sc.Executor))
		}

		if sc.TimeUnit < 0 {
			issues = append(issues, label+": time_unit must be >= 0")
		}
		if sc.PreAllocatedVUs < 0 {
			issues = append(issues, label+": pre_allocated_vus must be >= 0")
		}
		if sc.MaxVUs < 1 {
			issues = append(issues, label+": max_vus must be >= 1")
		}
		if sc.MaxVUs < sc.PreAllocatedVUs {
			issues = append(issues, label+": max_vus must be >= pre_allocated_vus")
		}
		if sc.StartTime < 0 {
			issues = append(issues, label+": start_time must be >= 0")
		}
	}

	var unknown []string
	for _, name := range filter {
		if _, ok := seen[strings.TrimSpace(name)]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		issues = append(issues, fmt.Sprintf("unknown scenario(s) selected: %s", strings.Join(unknown, ", ")))
	}

	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
