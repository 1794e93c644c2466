package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "CHECKOUTRACE"

// envKeys are the settings that may be supplied through CHECKOUTRACE_* variables.
var envKeys = []string{
	"base_url",
	"product_id",
	"user_id",
	"expected_stock",
	"quantity",
	"timeout",
	"pacing",
	"arrival_model",
	"log_level",
	"log_errors",
	"json_output",
	"summary_export",
	"metrics_addr",
	"thresholds",
}

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFlags builds a Config from an already parsed flag set. Values are
// layered as flags over environment over config file over defaults.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(flagSet); err != nil {
		return nil, err
	}

	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.ArrivalModel = ArrivalModel(strings.ToLower(strings.TrimSpace(string(cfg.ArrivalModel))))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, nil
}

// loadDotEnv exports the variables of a .env file without overriding the
// real environment. A missing default .env is ignored.
func loadDotEnv(flagSet *pflag.FlagSet) error {
	path := ".env"
	explicit := false
	if f := flagSet.Lookup("env-file"); f != nil {
		path = strings.TrimSpace(f.Value.String())
		explicit = f.Changed
	}
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// applyConfigSettings applies settings from a config file or the environment
// to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "base_url", "baseurl", "base-url", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "product_id", "productid", "product-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("product_id: %w", err)
		}
		cfg.ProductID = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "user_id", "userid", "user-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("user_id: %w", err)
		}
		cfg.UserID = strings.TrimSpace(val)
	}

	intSettings := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"expected_stock", "expectedstock", "expected-stock"}, &cfg.ExpectedStock},
		{[]string{"quantity"}, &cfg.Quantity},
		{[]string{"idempotency_quantity", "idempotencyquantity", "idempotency-quantity"}, &cfg.IdempotencyQuantity},
		{[]string{"idempotency_attempts", "idempotencyattempts", "idempotency-attempts"}, &cfg.IdempotencyAttempts},
	}
	for _, s := range intSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "pacing", "sleep"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("pacing: %w", err)
		}
		cfg.Pacing = dur
	}

	boolSettings := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"json_output", "jsonoutput", "json-output"}, &cfg.JSONOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"log_errors", "logerrors", "log-errors"}, &cfg.LogErrors},
	}
	for _, s := range boolSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	stringSettings := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"log_level", "loglevel", "log-level"}, &cfg.LogLevel},
		{[]string{"summary_export", "summaryexport", "summary-export"}, &cfg.SummaryExport},
		{[]string{"metrics_addr", "metricsaddr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, s := range stringSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "arrival_model", "arrivalmodel", "arrival-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		if val != "" {
			cfg.ArrivalModel = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		// A single string may hold several expressions separated by ';'.
		if str, isString := raw.(string); isString {
			raw = splitNonEmpty(str, ";")
		}
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "scenarios"); ok {
		scenarios, err := parseScenarios(raw)
		if err != nil {
			return fmt.Errorf("scenarios: %w", err)
		}
		cfg.Scenarios = scenarios
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracing(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

// parseScenarios accepts either a list of scenarios with a name field or a
// map keyed by scenario name.
func parseScenarios(value interface{}) ([]Scenario, error) {
	if value == nil {
		return nil, nil
	}

	if named, err := toStringKeyMap(value); err == nil {
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names)

		scenarios := make([]Scenario, 0, len(names))
		for _, name := range names {
			entry, err := toStringKeyMap(named[name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			sc, err := buildScenario(entry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if sc.Name == "" {
				sc.Name = name
			}
			scenarios = append(scenarios, sc)
		}
		sort.SliceStable(scenarios, func(i, j int) bool {
			return scenarios[i].StartTime < scenarios[j].StartTime
		})
		return scenarios, nil
	}

	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	scenarios := make([]Scenario, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		sc, err := buildScenario(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func buildScenario(settings map[string]interface{}) (Scenario, error) {
	sc := Scenario{TimeUnit: time.Second}

	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return Scenario{}, fmt.Errorf("name: %w", err)
		}
		sc.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "executor"); ok {
		val, err := asString(raw)
		if err != nil {
			return Scenario{}, fmt.Errorf("executor: %w", err)
		}
		sc.Executor = Executor(strings.ToLower(strings.TrimSpace(val)))
	}

	ints := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"rate"}, &sc.Rate},
		{[]string{"start_rate", "startrate", "start-rate"}, &sc.StartRate},
		{[]string{"pre_allocated_vus", "preallocatedvus", "pre-allocated-vus"}, &sc.PreAllocatedVUs},
		{[]string{"max_vus", "maxvus", "max-vus"}, &sc.MaxVUs},
	}
	for _, s := range ints {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return Scenario{}, fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	durationFields := []struct {
		keys []string
		set  func(v interface{}) error
	}{
		{[]string{"time_unit", "timeunit", "time-unit"}, func(v interface{}) error { d, err := asDuration(v); sc.TimeUnit = d; return err }},
		{[]string{"duration"}, func(v interface{}) error { d, err := asDuration(v); sc.Duration = d; return err }},
		{[]string{"start_time", "starttime", "start-time"}, func(v interface{}) error { d, err := asDuration(v); sc.StartTime = d; return err }},
		{[]string{"graceful_stop", "gracefulstop", "graceful-stop"}, func(v interface{}) error { d, err := asDuration(v); sc.GracefulStop = d; return err }},
	}
	for _, f := range durationFields {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			if err := f.set(raw); err != nil {
				return Scenario{}, fmt.Errorf("%s: %w", f.keys[0], err)
			}
		}
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return Scenario{}, fmt.Errorf("stages: %w", err)
		}
		sc.Stages = stages
	}

	return sc, nil
}

func parseStages(value interface{}) ([]Stage, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var st Stage
		if raw, ok := lookupSetting(entry, "duration"); ok {
			d, err := asDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: duration: %w", idx, err)
			}
			st.Duration = d
		}
		if raw, ok := lookupSetting(entry, "target"); ok {
			n, err := asInt(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: target: %w", idx, err)
			}
			st.Target = n
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func applyTracing(t *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
